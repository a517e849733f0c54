package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	repos "github.com/yungbote/raptorgraph-backend/internal/data/repos/rag"
	"github.com/yungbote/raptorgraph-backend/internal/http/response"
	"github.com/yungbote/raptorgraph-backend/internal/raptor"
)

type TreeHandler struct {
	builder  *raptor.Builder
	ingestor *raptor.Ingestor
	docs     repos.DocumentRepo
	defaults raptor.BuildParams
}

func NewTreeHandler(builder *raptor.Builder, ingestor *raptor.Ingestor, docs repos.DocumentRepo, defaults raptor.BuildParams) *TreeHandler {
	return &TreeHandler{builder: builder, ingestor: ingestor, docs: docs, defaults: defaults}
}

// mergeParams overlays request params onto the configured defaults; zero
// fields keep the default.
func mergeParams(defaults, req raptor.BuildParams) raptor.BuildParams {
	out := defaults
	if req.MinK > 0 {
		out.MinK = req.MinK
	}
	if req.MaxK > 0 {
		out.MaxK = req.MaxK
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.RPMLimit > 0 {
		out.RPMLimit = req.RPMLimit
	}
	if req.LLMConcurrency > 0 {
		out.LLMConcurrency = req.LLMConcurrency
	}
	if req.MaxTreeLevels > 0 {
		out.MaxTreeLevels = req.MaxTreeLevels
	}
	return out
}

// POST /v1/trees/build
// body: { "document_id": "...", "params": { "min_k": 2, ... } }
func (h *TreeHandler) Build(c *gin.Context) {
	var req struct {
		DocumentID string             `json:"document_id"`
		Params     raptor.BuildParams `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	ctx := c.Request.Context()
	doc, err := h.docs.GetByID(ctx, nil, req.DocumentID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "document_not_found", err)
		return
	}
	chunks, vectors, err := h.ingestor.ChunksForBuild(ctx, doc.ID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	treeID, err := h.builder.Build(ctx, doc.ID, doc.DatasetID, chunks, vectors, mergeParams(h.defaults, req.Params))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"tree_id":     treeID,
		"document_id": doc.ID,
		"dataset_id":  doc.DatasetID,
		"leaves":      len(chunks),
	})
}
