package raptor

import (
	"context"

	"gorm.io/gorm"

	repos "github.com/yungbote/raptorgraph-backend/internal/data/repos/rag"
	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

// BuildStore is the builder's persistence boundary. PersistLevel commits one
// tree level atomically; a failed level leaves earlier levels intact.
type BuildStore interface {
	UpsertTree(ctx context.Context, tree *rag.Tree) error
	PersistLevel(ctx context.Context, nodes []*rag.TreeNode, edges []*rag.TreeEdge, links []*rag.TreeNodeChunk, embeddings []*rag.Embedding) error
	MarkRoot(ctx context.Context, nodeID string) error
}

type buildStore struct {
	db         *gorm.DB
	log        *logger.Logger
	trees      repos.TreeRepo
	nodes      repos.TreeNodeRepo
	embeddings repos.EmbeddingRepo
}

func NewBuildStore(db *gorm.DB, log *logger.Logger, trees repos.TreeRepo, nodes repos.TreeNodeRepo, embeddings repos.EmbeddingRepo) BuildStore {
	return &buildStore{
		db:         db,
		log:        log.With("component", "BuildStore"),
		trees:      trees,
		nodes:      nodes,
		embeddings: embeddings,
	}
}

func (s *buildStore) UpsertTree(ctx context.Context, tree *rag.Tree) error {
	return s.trees.Upsert(ctx, nil, tree)
}

func (s *buildStore) PersistLevel(ctx context.Context, nodes []*rag.TreeNode, edges []*rag.TreeEdge, links []*rag.TreeNodeChunk, embeddings []*rag.Embedding) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.nodes.CreateNodes(ctx, tx, nodes); err != nil {
			return err
		}
		if err := s.nodes.CreateEdges(ctx, tx, edges); err != nil {
			return err
		}
		if err := s.nodes.CreateLinks(ctx, tx, links); err != nil {
			return err
		}
		return s.embeddings.Upsert(ctx, tx, embeddings)
	})
}

func (s *buildStore) MarkRoot(ctx context.Context, nodeID string) error {
	return s.nodes.UpdateKind(ctx, nil, nodeID, rag.NodeKindRoot)
}
