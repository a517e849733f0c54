package rag

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

type TreeRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, tree *rag.Tree) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*rag.Tree, error)
}

type treeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTreeRepo(db *gorm.DB, baseLog *logger.Logger) TreeRepo {
	return &treeRepo{db: db, log: baseLog.With("repo", "TreeRepo")}
}

func (r *treeRepo) Upsert(ctx context.Context, tx *gorm.DB, tree *rag.Tree) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if tree == nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"params"}),
		}).
		Create(tree).Error
}

func (r *treeRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*rag.Tree, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var tree rag.Tree
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&tree).Error; err != nil {
		return nil, err
	}
	return &tree, nil
}
