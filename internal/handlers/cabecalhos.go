package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/services"
)

type CabecalhoHandler struct {
	cabecalhos *services.CabecalhoService
}

func NewCabecalhoHandler(cabecalhos *services.CabecalhoService) *CabecalhoHandler {
	return &CabecalhoHandler{cabecalhos: cabecalhos}
}

func (h *CabecalhoHandler) List(c *gin.Context) {
	items, err := h.cabecalhos.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *CabecalhoHandler) Get(c *gin.Context) {
	cab, err := h.cabecalhos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cab)
}

func (h *CabecalhoHandler) Create(c *gin.Context) {
	var in services.CabecalhoInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	cab, err := h.cabecalhos.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cab)
}

func (h *CabecalhoHandler) Update(c *gin.Context) {
	var in services.CabecalhoInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	cab, err := h.cabecalhos.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cab)
}

// Delete also detaches the header from every template using it.
func (h *CabecalhoHandler) Delete(c *gin.Context) {
	if err := h.cabecalhos.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
