package rag

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

// NodeHit is a tree node scored by cosine distance to a query vector.
type NodeHit struct {
	NodeID   string
	TreeID   string
	Level    int
	Kind     string
	Distance float64
}

// OwnerDistance scores an arbitrary embedding owner against a query vector.
type OwnerDistance struct {
	OwnerID  string
	Distance float64
}

type EmbeddingRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, embeddings []*rag.Embedding) error
	GetByOwners(ctx context.Context, tx *gorm.DB, ownerType string, ownerIDs []string) ([]*rag.Embedding, error)
	SearchNodes(ctx context.Context, tx *gorm.DB, datasetID string, kinds []string, query []float32, limit int) ([]NodeHit, error)
	DistancesForOwners(ctx context.Context, tx *gorm.DB, datasetID, ownerType string, ownerIDs []string, query []float32) ([]OwnerDistance, error)
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: baseLog.With("repo", "EmbeddingRepo")}
}

func (r *embeddingRepo) Upsert(ctx context.Context, tx *gorm.DB, embeddings []*rag.Embedding) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(embeddings) == 0 {
		return nil
	}

	const batchSize = 200

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"dataset_id", "v"}),
		}).
		CreateInBatches(embeddings, batchSize).Error
}

func (r *embeddingRepo) GetByOwners(ctx context.Context, tx *gorm.DB, ownerType string, ownerIDs []string) ([]*rag.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	var rows []*rag.Embedding
	err := transaction.WithContext(ctx).
		Where("owner_type = ? AND owner_id IN ?", ownerType, ownerIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SearchNodes runs an approximate nearest-neighbor scan over tree-node
// embeddings, cosine distance ascending.
func (r *embeddingRepo) SearchNodes(ctx context.Context, tx *gorm.DB, datasetID string, kinds []string, query []float32, limit int) ([]NodeHit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(query)
	var hits []NodeHit
	err := transaction.WithContext(ctx).Raw(`
		SELECT tn.id AS node_id,
		       tn.tree_id,
		       tn.level,
		       tn.kind,
		       e.v <=> ? AS distance
		FROM embeddings e
		JOIN tree_nodes tn ON tn.id = e.owner_id
		WHERE e.dataset_id = ?
		  AND e.owner_type = ?
		  AND tn.kind IN ?
		ORDER BY e.v <=> ?
		LIMIT ?`,
		vec, datasetID, rag.OwnerKindTreeNode, kinds, vec, limit,
	).Scan(&hits).Error
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// DistancesForOwners scores a fixed candidate set against the query vector,
// cosine distance ascending. Owners without a stored embedding are omitted.
func (r *embeddingRepo) DistancesForOwners(ctx context.Context, tx *gorm.DB, datasetID, ownerType string, ownerIDs []string, query []float32) ([]OwnerDistance, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ownerIDs) == 0 || len(query) == 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(query)
	var rows []OwnerDistance
	err := transaction.WithContext(ctx).Raw(`
		SELECT e.owner_id,
		       e.v <=> ? AS distance
		FROM embeddings e
		WHERE e.dataset_id = ?
		  AND e.owner_type = ?
		  AND e.owner_id IN ?
		ORDER BY e.v <=> ?`,
		vec, datasetID, ownerType, ownerIDs, vec,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
