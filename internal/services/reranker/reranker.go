package reranker

import (
	"context"
	"strings"
	"sync"

	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
)

// Candidate is a retrieval result offered to a reranker.
type Candidate struct {
	ChunkID  string
	Text     string
	Distance float64
}

// Func reorders candidates for a query. Implementations are external
// collaborators (cross-encoder services, provider rerank endpoints).
type Func func(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error)

// Registry maps normalized model names to rerank functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func normalize(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}

func (r *Registry) Register(model string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[normalize(model)] = fn
}

func (r *Registry) Resolve(model string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[normalize(model)]
	if !ok {
		return nil, apierr.New(apierr.KindValidation, "reranker_not_supported", "no reranker registered for model").
			WithContext(map[string]any{"model": model})
	}
	return fn, nil
}
