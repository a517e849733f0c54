package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/raptorgraph-backend/internal/http/response"
	"github.com/yungbote/raptorgraph-backend/internal/raptor"
)

type DocumentHandler struct {
	ingestor *raptor.Ingestor
}

func NewDocumentHandler(ingestor *raptor.Ingestor) *DocumentHandler {
	return &DocumentHandler{ingestor: ingestor}
}

// POST /v1/documents/ingest
// body: { "document_id": "...", "dataset_id": "...", "source": "...", "text": "..." }
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req struct {
		DocumentID string `json:"document_id"`
		DatasetID  string `json:"dataset_id"`
		Source     string `json:"source"`
		Text       string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.ingestor.IngestDocument(c.Request.Context(), req.DocumentID, req.DatasetID, req.Source, req.Text)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"document_id": res.DocumentID,
		"chunk_ids":   res.ChunkIDs,
		"chunks":      len(res.ChunkIDs),
	})
}
