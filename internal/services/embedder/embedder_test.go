package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yungbote/raptorgraph-backend/internal/config"
	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
	"github.com/yungbote/raptorgraph-backend/internal/platform/openai"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newGateway(t *testing.T, baseURL string, dim int) Gateway {
	t.Helper()
	client, err := openai.NewClient(testLogger(t), openai.Options{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Timeout:     5 * time.Second,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return New(testLogger(t), client, config.EmbeddingConfig{
		Model:     "test-embed",
		Dimension: dim,
		BatchSize: 2,
	}, nil)
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func vectorFor(dim int, seed float32) []float64 {
	v := make([]float64, dim)
	v[0] = float64(seed)
	return v
}

func TestEmbedDocumentsPreservesInputOrderAcrossBatches(t *testing.T) {
	dim := 4
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req embedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// Return data in reverse order; the index field is authoritative.
		type datum struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]datum, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, datum{Embedding: vectorFor(dim, float32(len(req.Input[i]))), Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	gw := newGateway(t, srv.URL, dim)
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := gw.EmbedDocuments(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(len(texts[i])) {
			t.Fatalf("vector %d out of order: got seed %v want %d", i, v[0], len(texts[i]))
		}
	}
	// Batch size 2 over 5 inputs.
	if calls != 3 {
		t.Fatalf("expected 3 batches, got %d", calls)
	}
}

func TestEmbedFailsPermanentlyOnAuthStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	gw := newGateway(t, srv.URL, 4)
	_, err := gw.EmbedQuery(context.Background(), "who")
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindConfiguration {
		t.Fatalf("expected configuration kind, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("401 must not be retried, got %d calls", calls)
	}
}

func TestEmbedClassifiesExhaustedRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gw := newGateway(t, srv.URL, 4)
	_, err := gw.EmbedQuery(context.Background(), "busy")
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindRateLimit {
		t.Fatalf("expected rate_limit kind, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("429 should be retried up to max attempts, got %d calls", calls)
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"embedding": vectorFor(3, 1), "index": 0},
		}})
	}))
	defer srv.Close()

	gw := newGateway(t, srv.URL, 4)
	_, err := gw.EmbedQuery(context.Background(), "short vector")
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindEmbedding || ae.Code != "dimension_mismatch" {
		t.Fatalf("expected embedding/dimension_mismatch, got %v", err)
	}
}

func TestEmbedRetriesTransientServerError(t *testing.T) {
	dim := 4
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"embedding": vectorFor(dim, 7), "index": 0},
		}})
	}))
	defer srv.Close()

	gw := newGateway(t, srv.URL, dim)
	vec, err := gw.EmbedQuery(context.Background(), "flaky upstream")
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if vec[0] != 7 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

// staticClient returns canned vectors without any transport. JSON cannot
// carry NaN or Inf, so non-finite faults are injected at the client boundary.
type staticClient struct {
	vecs [][]float32
}

func (c *staticClient) Embed(context.Context, string, []string, string) ([][]float32, error) {
	return c.vecs, nil
}

func (c *staticClient) ChatComplete(context.Context, openai.ChatRequest) (string, error) {
	return "", nil
}

func TestEmbedRejectsNonFiniteComponents(t *testing.T) {
	for _, bad := range []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))} {
		v := make([]float32, 4)
		v[2] = bad
		gw := New(testLogger(t), &staticClient{vecs: [][]float32{v}}, config.EmbeddingConfig{
			Model:     "test-embed",
			Dimension: 4,
		}, nil)

		_, err := gw.EmbedQuery(context.Background(), "poisoned")
		var ae *apierr.Error
		if !errors.As(err, &ae) || ae.Kind != apierr.KindEmbedding || ae.Code != "non_finite_vector" {
			t.Fatalf("expected embedding/non_finite_vector for %v, got %v", bad, err)
		}
	}
}
