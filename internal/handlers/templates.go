package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/flow"
	"DF-TPLGEN/internal/importer"
	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/overlay"
	"DF-TPLGEN/internal/services"
	"DF-TPLGEN/internal/store"
)

type TemplateHandler struct {
	templates *services.TemplateService
	importer  *importer.Importer
}

func NewTemplateHandler(templates *services.TemplateService, im *importer.Importer) *TemplateHandler {
	return &TemplateHandler{templates: templates, importer: im}
}

func (h *TemplateHandler) List(c *gin.Context) {
	p := parsePagination(c)
	q := store.TemplateQuery{
		Trashed:  queryBool(c, "trashed"),
		Kind:     models.TemplateKind(c.Query("kind")),
		Category: c.Query("category"),
		Search:   strings.TrimSpace(c.Query("q")),
		Limit:    p.Limit,
		Offset:   p.Offset,
	}
	if q.Kind != "" && !q.Kind.Valid() {
		badRequest(c, "unknown template kind %q", q.Kind)
		return
	}

	templates, total, err := h.templates.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(templates, total, p))
}

func (h *TemplateHandler) Get(c *gin.Context) {
	t, err := h.templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) CreateFlow(c *gin.Context) {
	var in services.FlowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	t, err := h.templates.CreateFlow(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TemplateHandler) UpdateFlow(c *gin.Context) {
	var patch services.FlowPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	t, err := h.templates.UpdateFlow(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ApplyCommands takes a JSON array of editor commands.
func (h *TemplateHandler) ApplyCommands(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "failed to read request body")
		return
	}
	cmds, err := flow.DecodeCommands(body)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInvalidInput, err, "invalid commands"))
		return
	}

	t, changed, err := h.templates.ApplyCommands(c.Request.Context(), c.Param("id"), cmds)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": t, "changed": changed})
}

type fieldsRequest struct {
	Fields          []overlay.Field `json:"fields"`
	DefaultFontSize *float64        `json:"default_font_size"`
}

func (h *TemplateHandler) UpdateFields(c *gin.Context) {
	var req fieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if req.Fields == nil {
		req.Fields = []overlay.Field{}
	}
	t, err := h.templates.UpdateOverlayFields(c.Request.Context(), c.Param("id"), req.Fields, req.DefaultFontSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ReplacePDF re-imports the source PDF of an overlay template.
func (h *TemplateHandler) ReplacePDF(c *gin.Context) {
	file, err := readUpload(c, h.importer.MaxSize())
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.importer.ImportOverlay(c.Request.Context(), file)
	if err != nil {
		respondError(c, err)
		return
	}
	t, err := h.templates.ReplaceOverlayPDF(c.Request.Context(), c.Param("id"), res)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) Trash(c *gin.Context) {
	if err := h.templates.Trash(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TemplateHandler) Restore(c *gin.Context) {
	if err := h.templates.Restore(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete removes a trashed template for good.
func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.templates.DeletePermanently(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
