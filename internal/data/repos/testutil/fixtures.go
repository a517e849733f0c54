package testutil

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, id, datasetID string) *rag.Document {
	tb.Helper()
	doc := &rag.Document{
		ID:        id,
		DatasetID: datasetID,
		Source:    "fixture",
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedTree(tb testing.TB, ctx context.Context, tx *gorm.DB, docID, datasetID string) *rag.Tree {
	tb.Helper()
	tree := &rag.Tree{
		ID:        docID + "::tree",
		DocID:     docID,
		DatasetID: datasetID,
	}
	if err := tx.WithContext(ctx).Create(tree).Error; err != nil {
		tb.Fatalf("seed tree: %v", err)
	}
	return tree
}

func SeedChunks(tb testing.TB, ctx context.Context, tx *gorm.DB, docID string, texts ...string) []*rag.Chunk {
	tb.Helper()
	chunks := make([]*rag.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &rag.Chunk{
			ID:    fmt.Sprintf("%s::chunk::%06d", docID, i),
			DocID: docID,
			Idx:   i,
			Text:  text,
		}
	}
	if err := tx.WithContext(ctx).Create(chunks).Error; err != nil {
		tb.Fatalf("seed chunks: %v", err)
	}
	return chunks
}
