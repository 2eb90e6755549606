package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/resolver"
	"DF-TPLGEN/internal/services"
)

const (
	reportHeader = "X-Generation-Report"
	maxBatchSize = 100
)

type GenerateHandler struct {
	templates *services.TemplateService
	assembler *services.ContextAssembler
	pipeline  *services.Pipeline
}

func NewGenerateHandler(templates *services.TemplateService, assembler *services.ContextAssembler, pipeline *services.Pipeline) *GenerateHandler {
	return &GenerateHandler{templates: templates, assembler: assembler, pipeline: pipeline}
}

type GenerateRequest struct {
	ProcessoID    string `json:"processoId"`
	ClienteID     string `json:"clienteId"`
	DossieID      string `json:"dossieId"`
	FuncionarioID string `json:"funcionarioId"`
	Format        string `json:"format"`
}

func (r GenerateRequest) refs() services.Refs {
	return services.Refs{
		ProcessoID:    strings.TrimSpace(r.ProcessoID),
		ClienteID:     strings.TrimSpace(r.ClienteID),
		DossieID:      strings.TrimSpace(r.DossieID),
		FuncionarioID: strings.TrimSpace(r.FuncionarioID),
	}
}

// Generate returns the document as an attachment. What could not be filled
// in travels in the X-Generation-Report header.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: %v", err)
			return
		}
	}
	format, err := services.ParseOutputFormat(req.Format)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	tpl, err := h.templates.Use(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	gctx, refs, err := h.assembler.Assemble(ctx, req.refs())
	if err != nil {
		respondError(c, err)
		return
	}

	out, err := h.pipeline.Generate(ctx, tpl, gctx, services.GenerateOptions{Format: format, Refs: refs})
	if err != nil {
		respondError(c, err)
		return
	}

	report, err := reportValue(out.Report)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header(reportHeader, report)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename}))
	c.Data(http.StatusOK, out.ContentType, out.Document)
}

type batchRequest struct {
	Items  []GenerateRequest `json:"items"`
	Format string            `json:"format"`
}

type batchReportEntry struct {
	Filename string          `json:"filename"`
	Report   services.Report `json:"report"`
}

// GenerateBatch renders the template once per item and returns a zip with
// one document per item plus report.json.
func (h *GenerateHandler) GenerateBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if len(req.Items) == 0 || len(req.Items) > maxBatchSize {
		badRequest(c, "a batch needs between 1 and %d items", maxBatchSize)
		return
	}
	format, err := services.ParseOutputFormat(req.Format)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	tpl, err := h.templates.Use(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	contexts := make([]resolver.Context, len(req.Items))
	for i, item := range req.Items {
		if contexts[i], _, err = h.assembler.Assemble(ctx, item.refs()); err != nil {
			respondError(c, fmt.Errorf("item %d: %w", i+1, err))
			return
		}
	}

	outs, err := h.pipeline.GenerateBatch(ctx, tpl, contexts, services.GenerateOptions{Format: format})
	if err != nil {
		respondError(c, err)
		return
	}

	archive, err := zipOutputs(outs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "documentos.zip"}))
	c.Data(http.StatusOK, "application/zip", archive)
}

func zipOutputs(outs []*services.Output) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	used := make(map[string]int, len(outs))
	reports := make([]batchReportEntry, 0, len(outs))
	for _, out := range outs {
		name := uniqueName(out.Filename, used)
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write(out.Document); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
		reports = append(reports, batchReportEntry{Filename: name, Report: out.Report})
	}

	w, err := zw.Create("report.json")
	if err != nil {
		return nil, fmt.Errorf("failed to add report to archive: %w", err)
	}
	if err := json.NewEncoder(w).Encode(reports); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// uniqueName suffixes repeated filenames: a.pdf, a-2.pdf, a-3.pdf. Every
// returned name is recorded in used, so a suffix never repeats a name that
// was already handed out.
func uniqueName(name string, used map[string]int) string {
	used[name]++
	if used[name] == 1 {
		return name
	}
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i:]
	}
	for {
		candidate := fmt.Sprintf("%s-%d%s", base, used[name], ext)
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
		used[name]++
	}
}

// reportValue encodes the report as compact JSON that is safe in a header:
// non-ASCII runes are escaped.
func reportValue(r services.Report) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	var sb strings.Builder
	for _, ch := range string(raw) {
		if ch < utf8.RuneSelf {
			sb.WriteRune(ch)
			continue
		}
		if ch > 0xFFFF {
			r1, r2 := utf16Pair(ch)
			fmt.Fprintf(&sb, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&sb, `\u%04x`, ch)
	}
	return sb.String(), nil
}

func utf16Pair(r rune) (rune, rune) {
	r -= 0x10000
	return 0xD800 + (r>>10)&0x3FF, 0xDC00 + r&0x3FF
}
