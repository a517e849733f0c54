package raptor

import (
	"context"

	"gorm.io/gorm"

	repos "github.com/yungbote/raptorgraph-backend/internal/data/repos/rag"
	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

// SearchStore is the retrieval engine's read boundary over the tree and
// embedding tables.
type SearchStore interface {
	SearchNodes(ctx context.Context, datasetID string, kinds []string, query []float32, limit int) ([]repos.NodeHit, error)
	DistancesForOwners(ctx context.Context, datasetID, ownerType string, ownerIDs []string, query []float32) ([]repos.OwnerDistance, error)
	LinkedChunkIDs(ctx context.Context, nodeIDs []string) ([]string, error)
	ChildIDs(ctx context.Context, parentIDs []string) ([]string, error)
	LatestRoot(ctx context.Context, datasetID string) (*rag.TreeNode, error)
	ChunksByIDs(ctx context.Context, ids []string) ([]*rag.Chunk, error)
}

type searchStore struct {
	db         *gorm.DB
	log        *logger.Logger
	nodes      repos.TreeNodeRepo
	chunks     repos.ChunkRepo
	embeddings repos.EmbeddingRepo
}

func NewSearchStore(db *gorm.DB, log *logger.Logger, nodes repos.TreeNodeRepo, chunks repos.ChunkRepo, embeddings repos.EmbeddingRepo) SearchStore {
	return &searchStore{
		db:         db,
		log:        log.With("component", "SearchStore"),
		nodes:      nodes,
		chunks:     chunks,
		embeddings: embeddings,
	}
}

func (s *searchStore) SearchNodes(ctx context.Context, datasetID string, kinds []string, query []float32, limit int) ([]repos.NodeHit, error) {
	return s.embeddings.SearchNodes(ctx, nil, datasetID, kinds, query, limit)
}

func (s *searchStore) DistancesForOwners(ctx context.Context, datasetID, ownerType string, ownerIDs []string, query []float32) ([]repos.OwnerDistance, error) {
	return s.embeddings.DistancesForOwners(ctx, nil, datasetID, ownerType, ownerIDs, query)
}

func (s *searchStore) LinkedChunkIDs(ctx context.Context, nodeIDs []string) ([]string, error) {
	return s.nodes.GetLinkedChunkIDs(ctx, nil, nodeIDs)
}

func (s *searchStore) ChildIDs(ctx context.Context, parentIDs []string) ([]string, error) {
	return s.nodes.GetChildIDs(ctx, nil, parentIDs)
}

func (s *searchStore) LatestRoot(ctx context.Context, datasetID string) (*rag.TreeNode, error) {
	return s.nodes.LatestRoot(ctx, nil, datasetID)
}

func (s *searchStore) ChunksByIDs(ctx context.Context, ids []string) ([]*rag.Chunk, error) {
	return s.chunks.GetByIDs(ctx, nil, ids)
}
