package rag

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

type TreeNodeRepo interface {
	CreateNodes(ctx context.Context, tx *gorm.DB, nodes []*rag.TreeNode) error
	CreateEdges(ctx context.Context, tx *gorm.DB, edges []*rag.TreeEdge) error
	CreateLinks(ctx context.Context, tx *gorm.DB, links []*rag.TreeNodeChunk) error
	UpdateKind(ctx context.Context, tx *gorm.DB, nodeID, kind string) error
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*rag.TreeNode, error)
	GetChildIDs(ctx context.Context, tx *gorm.DB, parentIDs []string) ([]string, error)
	GetLinkedChunkIDs(ctx context.Context, tx *gorm.DB, nodeIDs []string) ([]string, error)
	LatestRoot(ctx context.Context, tx *gorm.DB, datasetID string) (*rag.TreeNode, error)
}

type treeNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTreeNodeRepo(db *gorm.DB, baseLog *logger.Logger) TreeNodeRepo {
	return &treeNodeRepo{db: db, log: baseLog.With("repo", "TreeNodeRepo")}
}

func (r *treeNodeRepo) CreateNodes(ctx context.Context, tx *gorm.DB, nodes []*rag.TreeNode) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(nodes) == 0 {
		return nil
	}

	const batchSize = 100

	// Insert-if-absent so a retried build does not duplicate leaves.
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(nodes, batchSize).Error
}

func (r *treeNodeRepo) CreateEdges(ctx context.Context, tx *gorm.DB, edges []*rag.TreeEdge) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(edges) == 0 {
		return nil
	}

	const batchSize = 500

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(edges, batchSize).Error
}

func (r *treeNodeRepo) CreateLinks(ctx context.Context, tx *gorm.DB, links []*rag.TreeNodeChunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(links) == 0 {
		return nil
	}

	const batchSize = 500

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(links, batchSize).Error
}

func (r *treeNodeRepo) UpdateKind(ctx context.Context, tx *gorm.DB, nodeID, kind string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&rag.TreeNode{}).
		Where("id = ?", nodeID).
		Update("kind", kind).Error
}

func (r *treeNodeRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*rag.TreeNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*rag.TreeNode
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *treeNodeRepo) GetChildIDs(ctx context.Context, tx *gorm.DB, parentIDs []string) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []string
	if len(parentIDs) == 0 {
		return ids, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&rag.TreeEdge{}).
		Where("parent_id IN ?", parentIDs).
		Distinct().
		Pluck("child_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// GetLinkedChunkIDs returns the deduplicated leaf-chunk ids under nodeIDs,
// ordered by link rank.
func (r *treeNodeRepo) GetLinkedChunkIDs(ctx context.Context, tx *gorm.DB, nodeIDs []string) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		ChunkID string
	}
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&rag.TreeNodeChunk{}).
		Select("chunk_id, MIN(rank) AS min_rank").
		Where("node_id IN ?", nodeIDs).
		Group("chunk_id").
		Order("min_rank ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ChunkID)
	}
	return ids, nil
}

// LatestRoot picks the most recently built root in the dataset, tie-broken
// lexicographically by tree id.
func (r *treeNodeRepo) LatestRoot(ctx context.Context, tx *gorm.DB, datasetID string) (*rag.TreeNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var node rag.TreeNode
	err := transaction.WithContext(ctx).
		Joins("JOIN trees ON trees.id = tree_nodes.tree_id").
		Where("trees.dataset_id = ? AND tree_nodes.kind = ?", datasetID, rag.NodeKindRoot).
		Order("trees.created_at DESC, trees.id ASC").
		First(&node).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &node, nil
}
