package rag

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

type ChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*rag.Chunk) error
	GetByDocID(ctx context.Context, tx *gorm.DB, docID string) ([]*rag.Chunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*rag.Chunk, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*rag.Chunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return nil
	}

	// Keep batches small because Text is large
	const batchSize = 100

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(chunks, batchSize).Error
}

func (r *chunkRepo) GetByDocID(ctx context.Context, tx *gorm.DB, docID string) ([]*rag.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*rag.Chunk
	if err := transaction.WithContext(ctx).
		Where("doc_id = ?", docID).
		Order("idx ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) ([]*rag.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*rag.Chunk
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
