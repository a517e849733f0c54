package raptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
	"github.com/yungbote/raptorgraph-backend/internal/platform/ratelimit"
	"github.com/yungbote/raptorgraph-backend/internal/services/embedder"
	"github.com/yungbote/raptorgraph-backend/internal/services/summarizer"
)

// BuildParams configures one tree build. Zero values take the defaults.
type BuildParams struct {
	MinK           int     `json:"min_k"`
	MaxK           int     `json:"max_k"`
	MaxTokens      int     `json:"max_tokens"`
	RPMLimit       float64 `json:"rpm_limit"`
	LLMConcurrency int     `json:"llm_concurrency"`
	MaxTreeLevels  int     `json:"max_tree_levels"`
}

func (p *BuildParams) applyDefaults() {
	if p.MinK <= 0 {
		p.MinK = 2
	}
	if p.MaxK <= 0 {
		p.MaxK = 50
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 512
	}
	if p.RPMLimit <= 0 {
		p.RPMLimit = 3
	}
	if p.LLMConcurrency <= 0 {
		p.LLMConcurrency = 3
	}
	if p.MaxTreeLevels <= 0 {
		p.MaxTreeLevels = 10
	}
}

// ChunkInput is one ordered (chunk_id, text) pair handed to Build.
type ChunkInput struct {
	ID   string
	Text string
}

// Builder persists RAPTOR trees: cluster the current layer, summarize each
// cluster, embed the summaries, commit the level, repeat until one node
// remains.
type Builder struct {
	log        *logger.Logger
	store      BuildStore
	embedder   embedder.Gateway
	summarizer summarizer.Gateway
	newLimiter func(rpm float64) *ratelimit.IntervalLimiter
}

func NewBuilder(log *logger.Logger, store BuildStore, emb embedder.Gateway, sum summarizer.Gateway) *Builder {
	return &Builder{
		log:        log.With("component", "TreeBuilder"),
		store:      store,
		embedder:   emb,
		summarizer: sum,
		newLimiter: ratelimit.NewInterval,
	}
}

// Build persists the full tree for a document and returns the tree id.
// Retries are safe: leaf ids are deterministic and inserts are
// insert-if-absent.
func (b *Builder) Build(ctx context.Context, documentID, datasetID string, chunks []ChunkInput, leafVectors [][]float32, params BuildParams) (string, error) {
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(datasetID) == "" {
		return "", apierr.New(apierr.KindValidation, "empty_identifier", "document_id and dataset_id are required")
	}
	if len(chunks) == 0 || len(chunks) != len(leafVectors) {
		return "", apierr.New(apierr.KindValidation, "input_mismatch", "chunks and leaf_vectors must be non-empty and equal length").
			WithContext(map[string]any{"chunks": len(chunks), "vectors": len(leafVectors)})
	}
	dim := len(leafVectors[0])
	for i, v := range leafVectors {
		if len(v) != dim {
			return "", apierr.New(apierr.KindValidation, "dimension_mismatch", "leaf vectors differ in dimension").
				WithContext(map[string]any{"index": i, "expected": dim, "got": len(v)})
		}
	}
	params.applyDefaults()

	treeID := documentID + "::tree"
	buildLog := b.log.With("tree_id", treeID, "dataset_id", datasetID)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", apierr.Wrap(apierr.KindPersistence, "params_encode", "encoding build params", err)
	}
	if err := b.store.UpsertTree(ctx, &rag.Tree{
		ID:        treeID,
		DocID:     documentID,
		DatasetID: datasetID,
		Params:    datatypes.JSON(paramsJSON),
	}); err != nil {
		return "", b.levelError(err, treeID, 0, apierr.KindPersistence, "tree_upsert")
	}

	// Level 0: one leaf node per chunk, linked to its own chunk.
	leafNodes := make([]*rag.TreeNode, len(chunks))
	leafLinks := make([]*rag.TreeNodeChunk, len(chunks))
	leafEmbeds := make([]*rag.Embedding, len(chunks))
	leafChunks := make(map[string][]string, len(chunks))
	currentIDs := make([]string, len(chunks))
	currentVectors := make([][]float32, len(chunks))
	currentTexts := make([]string, len(chunks))
	for i, c := range chunks {
		nodeID := fmt.Sprintf("%s::leaf::%06d", treeID, i)
		leafNodes[i] = &rag.TreeNode{ID: nodeID, TreeID: treeID, Level: 0, Kind: rag.NodeKindLeaf, Text: c.Text}
		leafLinks[i] = &rag.TreeNodeChunk{NodeID: nodeID, ChunkID: c.ID, Rank: 0}
		leafEmbeds[i] = &rag.Embedding{
			ID:        rag.EmbeddingID(rag.OwnerKindTreeNode, nodeID),
			DatasetID: datasetID,
			OwnerType: rag.OwnerKindTreeNode,
			OwnerID:   nodeID,
			V:         toVector(leafVectors[i]),
		}
		leafChunks[nodeID] = []string{c.ID}
		currentIDs[i] = nodeID
		currentVectors[i] = leafVectors[i]
		currentTexts[i] = c.Text
	}
	if err := b.store.PersistLevel(ctx, leafNodes, nil, leafLinks, leafEmbeds); err != nil {
		return "", b.levelError(err, treeID, 0, apierr.KindPersistence, "level_persist")
	}

	// One embedding batch per level; the limiter spaces the batch starts.
	embedPace := b.newLimiter(params.RPMLimit)

	level := 0
	for {
		if len(currentIDs) <= 1 {
			if err := b.store.MarkRoot(ctx, currentIDs[0]); err != nil {
				return "", b.levelError(err, treeID, level, apierr.KindPersistence, "mark_root")
			}
			buildLog.Info("tree build complete", "levels", level, "root", currentIDs[0])
			return treeID, nil
		}

		nextLevel := level + 1

		var groups [][]int
		if nextLevel >= params.MaxTreeLevels {
			// Depth cap: force one cluster so the next pass hits the root rule.
			groups = singleGroup(len(currentIDs))
		} else {
			groups, err = clusterVectors(currentVectors, params.MinK, params.MaxK)
			if err != nil {
				return "", b.levelError(err, treeID, nextLevel, apierr.KindClustering, "cluster")
			}
		}

		summaries, err := b.summarizeGroups(ctx, groups, currentTexts, params)
		if err != nil {
			return "", b.levelError(err, treeID, nextLevel, apierr.KindUpstream, "summarize")
		}

		// Respect the build's embedding budget before the batch call.
		if err := embedPace.Wait(ctx); err != nil {
			return "", b.levelError(err, treeID, nextLevel, apierr.KindCancelled, "embed_wait")
		}

		summaryVectors, err := b.embedder.EmbedDocuments(ctx, summaries)
		if err != nil {
			return "", b.levelError(err, treeID, nextLevel, apierr.KindEmbedding, "embed")
		}

		nodes := make([]*rag.TreeNode, len(groups))
		var edges []*rag.TreeEdge
		var links []*rag.TreeNodeChunk
		embeds := make([]*rag.Embedding, len(groups))
		nextIDs := make([]string, len(groups))
		for g, members := range groups {
			nodeID := fmt.Sprintf("%s::L%d::%d::%s", treeID, nextLevel, g, randomSuffix())
			nodes[g] = &rag.TreeNode{ID: nodeID, TreeID: treeID, Level: nextLevel, Kind: rag.NodeKindSummary, Text: summaries[g]}
			embeds[g] = &rag.Embedding{
				ID:        rag.EmbeddingID(rag.OwnerKindTreeNode, nodeID),
				DatasetID: datasetID,
				OwnerType: rag.OwnerKindTreeNode,
				OwnerID:   nodeID,
				V:         toVector(summaryVectors[g]),
			}
			nextIDs[g] = nodeID

			// Leaf-chunk set: order-preserving union of the children's sets.
			seen := make(map[string]struct{})
			var union []string
			for _, m := range members {
				childID := currentIDs[m]
				edges = append(edges, &rag.TreeEdge{ParentID: nodeID, ChildID: childID})
				for _, chunkID := range leafChunks[childID] {
					if _, ok := seen[chunkID]; ok {
						continue
					}
					seen[chunkID] = struct{}{}
					union = append(union, chunkID)
				}
			}
			leafChunks[nodeID] = union
			for rank, chunkID := range union {
				links = append(links, &rag.TreeNodeChunk{NodeID: nodeID, ChunkID: chunkID, Rank: rank})
			}
		}

		if err := b.store.PersistLevel(ctx, nodes, edges, links, embeds); err != nil {
			return "", b.levelError(err, treeID, nextLevel, apierr.KindPersistence, "level_persist")
		}
		buildLog.Info("level persisted", "level", nextLevel, "nodes", len(nodes))

		currentIDs = nextIDs
		currentVectors = summaryVectors
		currentTexts = summaries
		level = nextLevel
	}
}

// summarizeGroups summarizes each cluster under the concurrency bound and
// reassembles the results positionally.
func (b *Builder) summarizeGroups(ctx context.Context, groups [][]int, texts []string, params BuildParams) ([]string, error) {
	summaries := make([]string, len(groups))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(params.LLMConcurrency)
	for g, members := range groups {
		eg.Go(func() error {
			member := make([]string, len(members))
			for i, m := range members {
				member[i] = texts[m]
			}
			out, err := b.summarizer.Summarize(egCtx, member, params.MaxTokens)
			if err != nil {
				return err
			}
			summaries[g] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (b *Builder) levelError(err error, treeID string, level int, fallback apierr.Kind, code string) error {
	kv := map[string]any{"level": level, "tree_id": treeID}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae.WithContext(kv)
	}
	return apierr.Wrap(fallback, code, "tree build failed", err).WithContext(kv)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
