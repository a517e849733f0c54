package raptor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/raptorgraph-backend/internal/chunker"
	repos "github.com/yungbote/raptorgraph-backend/internal/data/repos/rag"
	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
	"github.com/yungbote/raptorgraph-backend/internal/platform/tokens"
	"github.com/yungbote/raptorgraph-backend/internal/services/embedder"
)

// IngestResult reports what one document ingest persisted.
type IngestResult struct {
	DocumentID string
	ChunkIDs   []string
	Vectors    [][]float32
	Texts      []string
}

// Ingestor persists documents with their chunks and chunk embeddings. It sits
// between the chunker and the tree builder.
type Ingestor struct {
	log        *logger.Logger
	db         *gorm.DB
	splitter   *chunker.Chunker
	embedder   embedder.Gateway
	docs       repos.DocumentRepo
	chunks     repos.ChunkRepo
	embeddings repos.EmbeddingRepo
}

func NewIngestor(log *logger.Logger, db *gorm.DB, splitter *chunker.Chunker, emb embedder.Gateway, docs repos.DocumentRepo, chunks repos.ChunkRepo, embeddings repos.EmbeddingRepo) *Ingestor {
	return &Ingestor{
		log:        log.With("component", "Ingestor"),
		db:         db,
		splitter:   splitter,
		embedder:   emb,
		docs:       docs,
		chunks:     chunks,
		embeddings: embeddings,
	}
}

// IngestDocument chunks text, embeds the chunks and persists everything.
func (s *Ingestor) IngestDocument(ctx context.Context, documentID, datasetID, source, text string) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apierr.New(apierr.KindValidation, "empty_text", "ingest requires non-empty text")
	}
	pieces := s.splitter.Split(text)
	if len(pieces) == 0 {
		return nil, apierr.New(apierr.KindValidation, "empty_text", "chunker produced no chunks")
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, pieces)
	if err != nil {
		return nil, err
	}
	chunkIDs, err := s.ChunksAndEmbeddings(ctx, documentID, datasetID, source, text, pieces, vectors)
	if err != nil {
		return nil, err
	}
	return &IngestResult{DocumentID: documentID, ChunkIDs: chunkIDs, Vectors: vectors, Texts: pieces}, nil
}

// ChunksAndEmbeddings persists the document row, its ordered chunks and their
// embeddings in one transaction. Chunk ids are deterministic, so re-ingest of
// the same document is idempotent at the row level.
func (s *Ingestor) ChunksAndEmbeddings(ctx context.Context, documentID, datasetID, source, fullText string, texts []string, vectors [][]float32) ([]string, error) {
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(datasetID) == "" {
		return nil, apierr.New(apierr.KindValidation, "empty_identifier", "document_id and dataset_id are required")
	}
	if len(texts) == 0 || len(texts) != len(vectors) {
		return nil, apierr.New(apierr.KindValidation, "input_mismatch", "texts and vectors must be non-empty and equal length").
			WithContext(map[string]any{"texts": len(texts), "vectors": len(vectors)})
	}

	sum := sha256.Sum256([]byte(fullText))
	doc := &rag.Document{
		ID:        documentID,
		DatasetID: datasetID,
		Source:    source,
		Checksum:  hex.EncodeToString(sum[:]),
	}

	chunkRows := make([]*rag.Chunk, len(texts))
	embedRows := make([]*rag.Embedding, len(texts))
	chunkIDs := make([]string, len(texts))
	for i, t := range texts {
		chunkID := fmt.Sprintf("%s::chunk::%06d", documentID, i)
		chunkRows[i] = &rag.Chunk{
			ID:         chunkID,
			DocID:      documentID,
			Idx:        i,
			Text:       t,
			TokenCount: tokens.Estimate(t),
		}
		embedRows[i] = &rag.Embedding{
			ID:        rag.EmbeddingID(rag.OwnerKindChunk, chunkID),
			DatasetID: datasetID,
			OwnerType: rag.OwnerKindChunk,
			OwnerID:   chunkID,
			V:         toVector(vectors[i]),
		}
		chunkIDs[i] = chunkID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.docs.Upsert(ctx, tx, doc); err != nil {
			return err
		}
		if err := s.chunks.Create(ctx, tx, chunkRows); err != nil {
			return err
		}
		return s.embeddings.Upsert(ctx, tx, embedRows)
	})
	if err != nil {
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apierr.Wrap(apierr.KindPersistence, "ingest_persist", "persisting document ingest", err).
			WithContext(map[string]any{"document_id": documentID})
	}

	s.log.Info("document ingested", "document_id", documentID, "dataset_id", datasetID, "chunks", len(chunkIDs))
	return chunkIDs, nil
}

// ChunksForBuild loads a document's ordered chunks together with their stored
// embeddings, ready to hand to the tree builder.
func (s *Ingestor) ChunksForBuild(ctx context.Context, documentID string) ([]ChunkInput, [][]float32, error) {
	rows, err := s.chunks.GetByDocID(ctx, nil, documentID)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindPersistence, "chunk_load", "loading document chunks", err).
			WithContext(map[string]any{"document_id": documentID})
	}
	if len(rows) == 0 {
		return nil, nil, apierr.New(apierr.KindValidation, "document_not_ingested", "document has no chunks; ingest it first").
			WithContext(map[string]any{"document_id": documentID})
	}

	ownerIDs := make([]string, len(rows))
	for i, c := range rows {
		ownerIDs[i] = c.ID
	}
	stored, err := s.embeddings.GetByOwners(ctx, nil, rag.OwnerKindChunk, ownerIDs)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindPersistence, "embedding_load", "loading chunk embeddings", err).
			WithContext(map[string]any{"document_id": documentID})
	}
	byOwner := make(map[string][]float32, len(stored))
	for _, e := range stored {
		byOwner[e.OwnerID] = e.V.Slice()
	}

	chunks := make([]ChunkInput, len(rows))
	vectors := make([][]float32, len(rows))
	for i, c := range rows {
		vec, ok := byOwner[c.ID]
		if !ok {
			return nil, nil, apierr.New(apierr.KindValidation, "missing_chunk_embedding", "chunk has no stored embedding").
				WithContext(map[string]any{"chunk_id": c.ID})
		}
		chunks[i] = ChunkInput{ID: c.ID, Text: c.Text}
		vectors[i] = vec
	}
	return chunks, vectors, nil
}
