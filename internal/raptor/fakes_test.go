package raptor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	repos "github.com/yungbote/raptorgraph-backend/internal/data/repos/rag"
	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// memStore keeps a whole tree in memory and implements both the builder's
// and the engine's store boundaries.
type memStore struct {
	mu        sync.Mutex
	trees     map[string]*rag.Tree
	nodes     map[string]*rag.TreeNode
	edges     []*rag.TreeEdge
	links     []*rag.TreeNodeChunk
	vecs      map[string][]float32 // embedding owner id -> vector (tree_node owners)
	chunkVecs map[string][]float32
	chunks    map[string]*rag.Chunk

	failPersistAtLevel int // 0 = never
	treeOrder          []string
}

func newMemStore() *memStore {
	return &memStore{
		trees:     map[string]*rag.Tree{},
		nodes:     map[string]*rag.TreeNode{},
		vecs:      map[string][]float32{},
		chunkVecs: map[string][]float32{},
		chunks:    map[string]*rag.Chunk{},
	}
}

func (m *memStore) UpsertTree(_ context.Context, tree *rag.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trees[tree.ID]; !ok {
		m.treeOrder = append(m.treeOrder, tree.ID)
	}
	m.trees[tree.ID] = tree
	return nil
}

func (m *memStore) PersistLevel(_ context.Context, nodes []*rag.TreeNode, edges []*rag.TreeEdge, links []*rag.TreeNodeChunk, embeddings []*rag.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPersistAtLevel > 0 && len(nodes) > 0 && nodes[0].Level == m.failPersistAtLevel {
		return apierr.New(apierr.KindPersistence, "forced_failure", "injected persistence failure")
	}
	for _, n := range nodes {
		if _, ok := m.nodes[n.ID]; !ok {
			m.nodes[n.ID] = n
		}
	}
	m.edges = append(m.edges, edges...)
	m.links = append(m.links, links...)
	for _, e := range embeddings {
		m.vecs[e.OwnerID] = e.V.Slice()
	}
	return nil
}

func (m *memStore) MarkRoot(_ context.Context, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[nodeID]
	if !ok {
		return apierr.New(apierr.KindPersistence, "missing_node", "mark root on unknown node")
	}
	n.Kind = rag.NodeKindRoot
	return nil
}

func (m *memStore) addChunk(id, docID string, idx int, text string, vec []float32) {
	m.chunks[id] = &rag.Chunk{ID: id, DocID: docID, Idx: idx, Text: text}
	m.chunkVecs[id] = vec
}

// SearchStore implementation.

func (m *memStore) SearchNodes(_ context.Context, datasetID string, kinds []string, query []float32, limit int) ([]repos.NodeHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kindSet := map[string]bool{}
	for _, k := range kinds {
		kindSet[k] = true
	}
	var hits []repos.NodeHit
	for id, n := range m.nodes {
		if !kindSet[n.Kind] {
			continue
		}
		tree, ok := m.trees[n.TreeID]
		if !ok || tree.DatasetID != datasetID {
			continue
		}
		vec, ok := m.vecs[id]
		if !ok {
			continue
		}
		hits = append(hits, repos.NodeHit{NodeID: id, TreeID: n.TreeID, Level: n.Level, Kind: n.Kind, Distance: cosineDistance(query, vec)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].NodeID < hits[j].NodeID
	})
	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memStore) DistancesForOwners(_ context.Context, _ string, ownerType string, ownerIDs []string, query []float32) ([]repos.OwnerDistance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	source := m.vecs
	if ownerType == rag.OwnerKindChunk {
		source = m.chunkVecs
	}
	var out []repos.OwnerDistance
	for _, id := range ownerIDs {
		vec, ok := source[id]
		if !ok {
			continue
		}
		out = append(out, repos.OwnerDistance{OwnerID: id, Distance: cosineDistance(query, vec)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].OwnerID < out[j].OwnerID
	})
	return out, nil
}

func (m *memStore) LinkedChunkIDs(_ context.Context, nodeIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idSet := map[string]bool{}
	for _, id := range nodeIDs {
		idSet[id] = true
	}
	type entry struct {
		chunkID string
		rank    int
	}
	best := map[string]int{}
	for _, l := range m.links {
		if !idSet[l.NodeID] {
			continue
		}
		if r, ok := best[l.ChunkID]; !ok || l.Rank < r {
			best[l.ChunkID] = l.Rank
		}
	}
	entries := make([]entry, 0, len(best))
	for id, r := range best {
		entries = append(entries, entry{chunkID: id, rank: r})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rank != entries[j].rank {
			return entries[i].rank < entries[j].rank
		}
		return entries[i].chunkID < entries[j].chunkID
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.chunkID
	}
	return ids, nil
}

func (m *memStore) ChildIDs(_ context.Context, parentIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idSet := map[string]bool{}
	for _, id := range parentIDs {
		idSet[id] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range m.edges {
		if idSet[e.ParentID] && !seen[e.ChildID] {
			seen[e.ChildID] = true
			out = append(out, e.ChildID)
		}
	}
	return out, nil
}

func (m *memStore) LatestRoot(_ context.Context, datasetID string) (*rag.TreeNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// treeOrder approximates created_at; the last registered tree wins.
	for i := len(m.treeOrder) - 1; i >= 0; i-- {
		tree := m.trees[m.treeOrder[i]]
		if tree.DatasetID != datasetID {
			continue
		}
		for _, n := range m.nodes {
			if n.TreeID == tree.ID && n.Kind == rag.NodeKindRoot {
				return n, nil
			}
		}
	}
	return nil, nil
}

func (m *memStore) ChunksByIDs(_ context.Context, ids []string) ([]*rag.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*rag.Chunk
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// fakeEmbedder hands out deterministic vectors and counts calls.
type fakeEmbedder struct {
	mu         sync.Mutex
	dim        int
	docCalls   int
	queryCalls int
	queryVec   []float32
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim}
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[len(t)%f.dim] = 1
		v[0] += float32(len(t)%7) * 0.1
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.queryVec != nil {
		return f.queryVec, nil
	}
	v := make([]float32, f.dim)
	v[len(text)%f.dim] = 1
	return v, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

// fakeSummarizer joins inputs; it can be told to fail after N calls.
type fakeSummarizer struct {
	mu        sync.Mutex
	calls     int
	failAfter int // 0 = never
	rewriteTo string
	rewrites  int
}

func (f *fakeSummarizer) Summarize(_ context.Context, texts []string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return "", apierr.New(apierr.KindUpstream, "forced_failure", "injected summarizer failure")
	}
	return fmt.Sprintf("summary(%s)", strings.Join(texts, "|")), nil
}

func (f *fakeSummarizer) RewriteQuery(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewrites++
	if f.rewriteTo != "" {
		return f.rewriteTo, nil
	}
	return query, nil
}
