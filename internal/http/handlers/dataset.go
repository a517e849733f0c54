package handlers

import (
	"github.com/gin-gonic/gin"

	repos "github.com/yungbote/raptorgraph-backend/internal/data/repos/rag"
	"github.com/yungbote/raptorgraph-backend/internal/http/response"
)

type DatasetHandler struct {
	docs repos.DocumentRepo
}

func NewDatasetHandler(docs repos.DocumentRepo) *DatasetHandler {
	return &DatasetHandler{docs: docs}
}

// DELETE /v1/datasets/:dataset_id
func (h *DatasetHandler) Delete(c *gin.Context) {
	datasetID := c.Param("dataset_id")
	deleted, err := h.docs.DeleteByDatasetID(c.Request.Context(), nil, datasetID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"dataset_id": datasetID,
		"documents":  deleted,
	})
}
