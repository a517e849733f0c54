package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/raptorgraph-backend/internal/http/response"
	"github.com/yungbote/raptorgraph-backend/internal/raptor"
)

type RetrievalHandler struct {
	engine *raptor.Engine
}

func NewRetrievalHandler(engine *raptor.Engine) *RetrievalHandler {
	return &RetrievalHandler{engine: engine}
}

// POST /v1/retrieve
func (h *RetrievalHandler) Retrieve(c *gin.Context) {
	var req raptor.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	resp, err := h.engine.Retrieve(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, resp)
}
