package rag

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, doc *rag.Document) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*rag.Document, error)
	ListByDatasetID(ctx context.Context, tx *gorm.DB, datasetID string) ([]*rag.Document, error)
	DeleteByDatasetID(ctx context.Context, tx *gorm.DB, datasetID string) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Upsert(ctx context.Context, tx *gorm.DB, doc *rag.Document) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"dataset_id", "source", "checksum", "metadata", "updated_at"}),
		}).
		Create(doc).Error
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*rag.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var doc rag.Document
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) ListByDatasetID(ctx context.Context, tx *gorm.DB, datasetID string) ([]*rag.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*rag.Document
	if err := transaction.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteByDatasetID removes a dataset's documents; chunks, trees, nodes,
// edges and links go with them through the FK cascade chain. Embeddings have
// no FK, so they are swept in the same transaction.
func (r *documentRepo) DeleteByDatasetID(ctx context.Context, tx *gorm.DB, datasetID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var deleted int64
	err := transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		if err := inner.Where("dataset_id = ?", datasetID).Delete(&rag.Embedding{}).Error; err != nil {
			return err
		}
		res := inner.Where("dataset_id = ?", datasetID).Delete(&rag.Document{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}
