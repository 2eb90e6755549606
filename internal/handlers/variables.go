package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/variables"
)

type VariablesHandler struct {
	registry *variables.Registry
}

func NewVariablesHandler(registry *variables.Registry) *VariablesHandler {
	return &VariablesHandler{registry: registry}
}

// ListGroups returns the placeholder catalog in display order.
func (h *VariablesHandler) ListGroups(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": h.registry.ListGroups()})
}
