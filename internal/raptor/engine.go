package raptor

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
	"github.com/yungbote/raptorgraph-backend/internal/platform/tokens"
	"github.com/yungbote/raptorgraph-backend/internal/services/embedder"
	"github.com/yungbote/raptorgraph-backend/internal/services/reranker"
	"github.com/yungbote/raptorgraph-backend/internal/services/summarizer"
)

// Retrieval modes.
const (
	ModeCollapsed = "collapsed"
	ModeTraversal = "traversal"
)

// Query normalization thresholds, in estimated tokens.
const (
	querySoftTokens = 60
	queryHardTokens = 300
)

const (
	defaultTopK    = 8
	maxTopK        = 200
	defaultExpandK = 5
)

// RetrieveRequest is the engine's public query contract.
type RetrieveRequest struct {
	DatasetID     string `json:"dataset_id"`
	Query         string `json:"query"`
	Mode          string `json:"mode"`
	TopK          int    `json:"top_k"`
	ExpandK       int    `json:"expand_k"`
	LevelsCap     int    `json:"levels_cap"`
	UseReranker   bool   `json:"use_reranker"`
	RerankerModel string `json:"reranker_model"`
}

// RetrievedChunk is one ranked leaf chunk.
type RetrievedChunk struct {
	ChunkID  string  `json:"chunk_id"`
	DocID    string  `json:"doc_id"`
	Index    int     `json:"index"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// RetrieveResponse mirrors the HTTP shape: status 200 with chunks (possibly
// empty) on success; failures surface as errors and are translated by the
// HTTP layer.
type RetrieveResponse struct {
	Status int              `json:"status"`
	Chunks []RetrievedChunk `json:"chunks"`
}

// Engine answers retrieval queries over built trees in two modes: collapsed
// (rank summary nodes directly, expand the best to leaves) and traversal
// (walk down from the latest root, pruning each level).
type Engine struct {
	log        *logger.Logger
	store      SearchStore
	embedder   embedder.Gateway
	summarizer summarizer.Gateway
	rerankers  *reranker.Registry
}

func NewEngine(log *logger.Logger, store SearchStore, emb embedder.Gateway, sum summarizer.Gateway, rerankers *reranker.Registry) *Engine {
	return &Engine{
		log:        log.With("component", "RetrievalEngine"),
		store:      store,
		embedder:   emb,
		summarizer: sum,
		rerankers:  rerankers,
	}
}

func (e *Engine) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	if strings.TrimSpace(req.DatasetID) == "" {
		return nil, apierr.New(apierr.KindValidation, "empty_dataset_id", "dataset_id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, apierr.New(apierr.KindValidation, "empty_query", "query is required")
	}
	mode := strings.TrimSpace(strings.ToLower(req.Mode))
	if mode == "" {
		mode = ModeCollapsed
	}
	if mode != ModeCollapsed && mode != ModeTraversal {
		return nil, apierr.New(apierr.KindValidation, "invalid_mode", "mode must be collapsed or traversal").
			WithContext(map[string]any{"mode": req.Mode})
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		return nil, apierr.New(apierr.KindValidation, "invalid_top_k", "top_k must be within 1..200").
			WithContext(map[string]any{"top_k": req.TopK})
	}
	expandK := req.ExpandK
	if expandK <= 0 {
		expandK = defaultExpandK
	}

	query, err := e.normalizeQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	qvec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(qvec) != e.embedder.Dimension() {
		return nil, apierr.New(apierr.KindEmbedding, "dimension_mismatch", "query vector has wrong dimension").
			WithContext(map[string]any{"expected": e.embedder.Dimension(), "got": len(qvec)})
	}

	var candidateChunkIDs []string
	switch mode {
	case ModeCollapsed:
		candidateChunkIDs, err = e.collapsedCandidates(ctx, req.DatasetID, qvec, expandK)
	case ModeTraversal:
		candidateChunkIDs, err = e.traversalCandidates(ctx, req.DatasetID, qvec, topK, req.LevelsCap)
	}
	if err != nil {
		return nil, err
	}
	if len(candidateChunkIDs) == 0 {
		return &RetrieveResponse{Status: http.StatusOK, Chunks: []RetrievedChunk{}}, nil
	}

	ranked, err := e.rankChunks(ctx, req.DatasetID, candidateChunkIDs, qvec, topK)
	if err != nil {
		return nil, err
	}

	if req.UseReranker && len(ranked) > 1 {
		ranked, err = e.rerank(ctx, req.RerankerModel, query, ranked)
		if err != nil {
			return nil, err
		}
	}

	return &RetrieveResponse{Status: http.StatusOK, Chunks: ranked}, nil
}

// normalizeQuery applies the soft/hard token thresholds: identity under
// soft, rewrite between soft and hard, reject above hard.
func (e *Engine) normalizeQuery(ctx context.Context, query string) (string, error) {
	count := tokens.Estimate(query)
	switch {
	case count > queryHardTokens:
		return "", apierr.New(apierr.KindQueryTooLong, "query_too_long", "query exceeds the hard token threshold").
			WithContext(map[string]any{"tokens": count, "hard_limit": queryHardTokens})
	case count > querySoftTokens:
		rewritten, err := e.summarizer.RewriteQuery(ctx, query)
		if err != nil {
			return "", err
		}
		return rewritten, nil
	default:
		return query, nil
	}
}

func (e *Engine) collapsedCandidates(ctx context.Context, datasetID string, qvec []float32, expandK int) ([]string, error) {
	hits, err := e.store.SearchNodes(ctx, datasetID, []string{rag.NodeKindSummary, rag.NodeKindRoot}, qvec, expandK)
	if err != nil {
		return nil, persistence(err, "node_search")
	}
	if len(hits) == 0 {
		return nil, nil
	}
	nodeIDs := make([]string, len(hits))
	for i, h := range hits {
		nodeIDs[i] = h.NodeID
	}
	chunkIDs, err := e.store.LinkedChunkIDs(ctx, nodeIDs)
	if err != nil {
		return nil, persistence(err, "link_gather")
	}
	return chunkIDs, nil
}

func (e *Engine) traversalCandidates(ctx context.Context, datasetID string, qvec []float32, perLevelK, levelsCap int) ([]string, error) {
	root, err := e.store.LatestRoot(ctx, datasetID)
	if err != nil {
		return nil, persistence(err, "root_lookup")
	}
	if root == nil {
		return nil, nil
	}

	frontier := []string{root.ID}
	level := 0
	for {
		if levelsCap > 0 && level >= levelsCap {
			break
		}
		children, err := e.store.ChildIDs(ctx, frontier)
		if err != nil {
			return nil, persistence(err, "frontier_expand")
		}
		if len(children) == 0 {
			break
		}
		ranked, err := e.store.DistancesForOwners(ctx, datasetID, rag.OwnerKindTreeNode, children, qvec)
		if err != nil {
			return nil, persistence(err, "frontier_rank")
		}
		if len(ranked) == 0 {
			break
		}
		keep := perLevelK
		if keep > len(ranked) {
			keep = len(ranked)
		}
		frontier = frontier[:0]
		for _, r := range ranked[:keep] {
			frontier = append(frontier, r.OwnerID)
		}
		level++
	}

	chunkIDs, err := e.store.LinkedChunkIDs(ctx, frontier)
	if err != nil {
		return nil, persistence(err, "link_gather")
	}
	return chunkIDs, nil
}

// rankChunks orders candidates by cosine distance to the query and loads the
// winning chunk rows.
func (e *Engine) rankChunks(ctx context.Context, datasetID string, chunkIDs []string, qvec []float32, topK int) ([]RetrievedChunk, error) {
	ranked, err := e.store.DistancesForOwners(ctx, datasetID, rag.OwnerKindChunk, chunkIDs, qvec)
	if err != nil {
		return nil, persistence(err, "chunk_rank")
	}
	if len(ranked) == 0 {
		return []RetrievedChunk{}, nil
	}
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}

	ids := make([]string, len(ranked))
	distances := make(map[string]float64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.OwnerID
		distances[r.OwnerID] = r.Distance
	}

	rows, err := e.store.ChunksByIDs(ctx, ids)
	if err != nil {
		return nil, persistence(err, "chunk_load")
	}
	byID := make(map[string]*rag.Chunk, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}

	out := make([]RetrievedChunk, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, RetrievedChunk{
			ChunkID:  c.ID,
			DocID:    c.DocID,
			Index:    c.Idx,
			Text:     c.Text,
			Distance: distances[id],
		})
	}
	return out, nil
}

func (e *Engine) rerank(ctx context.Context, model, query string, chunks []RetrievedChunk) ([]RetrievedChunk, error) {
	fn, err := e.rerankers.Resolve(model)
	if err != nil {
		return nil, err
	}
	candidates := make([]reranker.Candidate, len(chunks))
	byID := make(map[string]RetrievedChunk, len(chunks))
	for i, c := range chunks {
		candidates[i] = reranker.Candidate{ChunkID: c.ChunkID, Text: c.Text, Distance: c.Distance}
		byID[c.ChunkID] = c
	}
	reordered, err := fn(ctx, query, candidates)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstream, "rerank_failed", "reranker call failed", err).
			WithContext(map[string]any{"model": model})
	}
	out := make([]RetrievedChunk, 0, len(reordered))
	for _, r := range reordered {
		if c, ok := byID[r.ChunkID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func persistence(err error, code string) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apierr.Wrap(apierr.KindPersistence, code, "retrieval store operation failed", err)
}
