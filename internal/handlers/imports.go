package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/importer"
	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/services"
)

type ImportHandler struct {
	importer  *importer.Importer
	jobs      *importer.Jobs
	templates *services.TemplateService
}

func NewImportHandler(im *importer.Importer, jobs *importer.Jobs, templates *services.TemplateService) *ImportHandler {
	return &ImportHandler{importer: im, jobs: jobs, templates: templates}
}

// FlowImportResult is the outcome of a flow import. Template is set when the
// request named the template to create.
type FlowImportResult struct {
	Import   *importer.FlowResult `json:"import"`
	Template *models.Template     `json:"template,omitempty"`
}

// ImportFlow converts an uploaded document into a flow body. With a "name"
// form field the body is stored as a new template.
func (h *ImportHandler) ImportFlow(c *gin.Context) {
	file, err := readUpload(c, h.importer.MaxSize())
	if err != nil {
		respondError(c, err)
		return
	}
	meta := formMeta(c)

	h.run(c, "flow", func(ctx context.Context) (any, error) {
		res, err := h.importer.ImportFlow(ctx, file)
		if err != nil {
			return nil, err
		}
		out := &FlowImportResult{Import: res}
		if meta.Name != "" {
			if out.Template, err = h.templates.CreateFlowFromImport(ctx, meta, res); err != nil {
				return nil, err
			}
			importer.Commit(ctx)
		}
		return out, nil
	})
}

// ImportOverlay stores an uploaded PDF as a new overlay template.
func (h *ImportHandler) ImportOverlay(c *gin.Context) {
	file, err := readUpload(c, h.importer.MaxSize())
	if err != nil {
		respondError(c, err)
		return
	}
	in := services.OverlayInput{TemplateMeta: formMeta(c)}
	if in.Name == "" {
		badRequest(c, "name is required")
		return
	}

	h.run(c, "overlay", func(ctx context.Context) (any, error) {
		res, err := h.importer.ImportOverlay(ctx, file)
		if err != nil {
			return nil, err
		}
		tpl, err := h.templates.CreateOverlay(ctx, in, res)
		if err != nil {
			return nil, err
		}
		importer.Commit(ctx)
		return tpl, nil
	})
}

// run submits the import as a job. With ?async=1 the job id is returned
// straight away; otherwise the request waits and a disconnecting client
// cancels the job.
func (h *ImportHandler) run(c *gin.Context, kind string, fn importer.JobFunc) {
	id := h.jobs.Submit(kind, fn)
	if queryBool(c, "async") {
		c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": importer.JobPending})
		return
	}

	res, err := h.jobs.Wait(c.Request.Context(), id)
	if err != nil {
		if c.Request.Context().Err() != nil {
			h.jobs.Cancel(id)
		}
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if _, created := res.(*models.Template); created {
		status = http.StatusCreated
	}
	if r, ok := res.(*FlowImportResult); ok && r.Template != nil {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *ImportHandler) Status(c *gin.Context) {
	snap, err := h.jobs.Status(c.Param("jobId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *ImportHandler) Cancel(c *gin.Context) {
	if !h.jobs.Cancel(c.Param("jobId")) {
		respondError(c, apperrors.New(apperrors.KindNotFound, "no running import job %s", c.Param("jobId")))
		return
	}
	c.Status(http.StatusNoContent)
}

func formMeta(c *gin.Context) services.TemplateMeta {
	return services.TemplateMeta{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
	}
}
