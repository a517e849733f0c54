package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/raptorgraph-backend/internal/config"
	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/httpx"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
	"github.com/yungbote/raptorgraph-backend/internal/platform/openai"
	"github.com/yungbote/raptorgraph-backend/internal/platform/ratelimit"
)

// Gateway produces embedding vectors. EmbedDocuments is for corpus text
// (chunks, summaries); EmbedQuery is for user queries. Outputs are ordered
// exactly like inputs and either all vectors are returned or the call fails.
type Gateway interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

const queryCacheTTL = 24 * time.Hour

type service struct {
	log       *logger.Logger
	client    openai.Client
	model     string
	inputType string
	dimension int
	batchSize int
	limiter   *ratelimit.IntervalLimiter
	gate      *ratelimit.Gate
	cache     *redis.Client
}

// New wires the gateway from config. cache may be nil; when present, query
// embeddings are served read-through from redis.
func New(log *logger.Logger, client openai.Client, cfg config.EmbeddingConfig, cache *redis.Client) Gateway {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 1024
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 4
	}
	return &service{
		log:       log.With("service", "EmbedderGateway"),
		client:    client,
		model:     cfg.Model,
		inputType: cfg.InputType,
		dimension: dim,
		batchSize: batch,
		limiter:   ratelimit.NewInterval(cfg.RPMLimit),
		gate:      ratelimit.NewGate(conc),
		cache:     cache,
	}
}

func (s *service) Dimension() int { return s.dimension }

func (s *service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, 0, len(texts))
	// Batches go out sequentially so the interval limiter paces the provider.
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := s.embedBatch(ctx, texts[start:end], s.inputType)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (s *service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.cachedQuery(ctx, text); ok {
		return vec, nil
	}
	vecs, err := s.embedBatch(ctx, []string{text}, "query")
	if err != nil {
		return nil, err
	}
	s.storeQuery(ctx, text, vecs[0])
	return vecs[0], nil
}

func (s *service) embedBatch(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, cancelled(err)
	}
	defer s.gate.Release()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, cancelled(err)
	}

	vecs, err := s.client.Embed(ctx, s.model, texts, inputType)
	if err != nil {
		return nil, s.classify(err)
	}
	if len(vecs) != len(texts) {
		return nil, apierr.New(apierr.KindEmbedding, "count_mismatch", "provider returned wrong number of vectors").
			WithContext(map[string]any{"requested": len(texts), "returned": len(vecs)})
	}
	for i, v := range vecs {
		if len(v) != s.dimension {
			return nil, apierr.New(apierr.KindEmbedding, "dimension_mismatch", "provider returned wrong vector dimension").
				WithContext(map[string]any{"index": i, "expected": s.dimension, "got": len(v)})
		}
		for _, f := range v {
			if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
				return nil, apierr.New(apierr.KindEmbedding, "non_finite_vector", "provider returned a non-finite vector component").
					WithContext(map[string]any{"index": i})
			}
		}
	}
	return vecs, nil
}

func (s *service) classify(err error) error {
	if ctxErr := cancelledOrNil(err); ctxErr != nil {
		return ctxErr
	}
	status := openai.StatusOf(err)
	switch {
	case httpx.IsPermanentAuthStatus(status):
		return apierr.Wrap(apierr.KindConfiguration, "permanent_auth", "embedding provider rejected the credential", err)
	case status == 429:
		return apierr.Wrap(apierr.KindRateLimit, "rate_limited", "embedding provider rate limit exhausted after retries", err)
	default:
		return apierr.Wrap(apierr.KindEmbedding, "provider_error", "embedding request failed", err)
	}
}

func (s *service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "raptor:qemb:" + s.model + ":" + hex.EncodeToString(sum[:])
}

func (s *service) cachedQuery(ctx context.Context, text string) ([]float32, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) != s.dimension {
		return nil, false
	}
	return vec, true
}

func (s *service) storeQuery(ctx context.Context, text string, vec []float32) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(text), raw, queryCacheTTL).Err(); err != nil {
		s.log.Debug("query embedding cache write failed", "error", err)
	}
}

func cancelled(err error) error {
	return apierr.Wrap(apierr.KindCancelled, "cancelled", "embedding call cancelled", err)
}

func cancelledOrNil(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apierr.Wrap(apierr.KindCancelled, "cancelled", "embedding call cancelled", err)
	}
	return nil
}
