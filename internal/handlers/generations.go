package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/store"
)

type GenerationLister interface {
	List(ctx context.Context, q store.GenerationQuery) ([]models.GenerationLog, int64, error)
}

type GenerationHandler struct {
	logs GenerationLister
}

func NewGenerationHandler(logs GenerationLister) *GenerationHandler {
	return &GenerationHandler{logs: logs}
}

// List returns the generation history, newest first.
func (h *GenerationHandler) List(c *gin.Context) {
	p := parsePagination(c)
	logs, total, err := h.logs.List(c.Request.Context(), store.GenerationQuery{
		TemplateID: c.Query("template_id"),
		ProcessoID: c.Query("processo_id"),
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(logs, total, p))
}
