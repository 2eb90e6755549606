package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/flow"
	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/overlay"
	"DF-TPLGEN/internal/processor"
	"DF-TPLGEN/internal/resolver"
	"DF-TPLGEN/internal/storage"
)

type OutputFormat string

const (
	FormatDOCX OutputFormat = "docx"
	FormatHTML OutputFormat = "html"
	FormatPDF  OutputFormat = "pdf"
)

var contentTypes = map[OutputFormat]string{
	FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatHTML: "text/html; charset=utf-8",
	FormatPDF:  "application/pdf",
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return "", nil
	}
	if _, ok := contentTypes[f]; !ok {
		return "", apperrors.New(apperrors.KindInvalidInput, "unknown output format %q", s)
	}
	return f, nil
}

// Report lists what could not be filled in. Generation still succeeds.
type Report struct {
	Unresolved []string `json:"unresolved"`
	Malformed  []string `json:"malformed"`
}

type Output struct {
	Document    []byte
	Format      OutputFormat
	Filename    string
	ContentType string
	Report      Report
}

// Refs identifies the records a generation was made for. It only feeds the
// generation log.
type Refs struct {
	ProcessoID    string
	ClienteID     string
	DossieID      string
	FuncionarioID string
}

type GenerateOptions struct {
	Format OutputFormat
	Refs   Refs
}

type UsageCounter interface {
	IncrementUsage(ctx context.Context, id string) error
}

type HeaderSource interface {
	Get(ctx context.Context, id string) (*models.Cabecalho, error)
}

type PDFRenderer interface {
	HTMLToPDF(ctx context.Context, page string, landscape bool) ([]byte, error)
}

type GenerationRecorder interface {
	Create(ctx context.Context, log *models.GenerationLog) error
}

type PipelineConfig struct {
	Resolver        *resolver.Resolver
	Headers         HeaderSource
	Blobs           storage.BlobStore
	Stamper         *overlay.Stamper
	PDF             PDFRenderer
	Usage           UsageCounter
	Logs            GenerationRecorder
	Timeout         time.Duration
	DefaultFontSize float64
	Parallelism     int
	Logger          *slog.Logger
}

// Pipeline turns a template and a data context into a finished document.
type Pipeline struct {
	resolver        *resolver.Resolver
	headers         HeaderSource
	blobs           storage.BlobStore
	stamper         *overlay.Stamper
	pdf             PDFRenderer
	usage           UsageCounter
	logs            GenerationRecorder
	timeout         time.Duration
	defaultFontSize float64
	parallelism     int
	logger          *slog.Logger
	now             func() time.Time

	pending sync.WaitGroup
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultConversionTimeout
	}
	if cfg.DefaultFontSize <= 0 {
		cfg.DefaultFontSize = overlay.DefaultFontSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		resolver:        cfg.Resolver,
		headers:         cfg.Headers,
		blobs:           cfg.Blobs,
		stamper:         cfg.Stamper,
		pdf:             cfg.PDF,
		usage:           cfg.Usage,
		logs:            cfg.Logs,
		timeout:         cfg.Timeout,
		defaultFontSize: cfg.DefaultFontSize,
		parallelism:     cfg.Parallelism,
		logger:          cfg.Logger,
		now:             time.Now,
	}
}

// Generate renders one document. The usage count is incremented exactly once
// per successful generation and a failed increment discards the output.
func (p *Pipeline) Generate(ctx context.Context, tpl *models.Template, gctx resolver.Context, opts GenerateOptions) (*Output, error) {
	started := p.now()
	out, err := p.render(ctx, tpl, gctx, opts)
	if err != nil {
		return nil, err
	}
	if err := p.commit(ctx, tpl, out, opts, p.now().Sub(started)); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateBatch renders one document per context, in parallel. The first
// failure cancels the rest. Usage and generation logs are only written once
// every document has rendered.
func (p *Pipeline) GenerateBatch(ctx context.Context, tpl *models.Template, contexts []resolver.Context, opts GenerateOptions) ([]*Output, error) {
	started := p.now()
	outputs := make([]*Output, len(contexts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, rc := range contexts {
		g.Go(func() error {
			out, err := p.render(gctx, tpl, rc, opts)
			if err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	took := p.now().Sub(started)
	for i, out := range outputs {
		if err := p.commit(ctx, tpl, out, opts, took); err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
	}
	return outputs, nil
}

// render produces the document without touching the usage count or the
// generation log.
func (p *Pipeline) render(ctx context.Context, tpl *models.Template, gctx resolver.Context, opts GenerateOptions) (*Output, error) {
	if tpl.Trashed() {
		return nil, apperrors.New(apperrors.KindTemplateTrashed, "template %s is in the trash", tpl.ID)
	}
	if gctx.Now.IsZero() {
		gctx.Now = p.now()
	}

	switch tpl.Kind {
	case models.KindFlow:
		return p.generateFlow(ctx, tpl, gctx, opts.Format)
	case models.KindOverlay:
		return p.generateOverlay(ctx, tpl, gctx, opts.Format)
	default:
		return nil, apperrors.New(apperrors.KindInvalidInput, "template %s has unknown kind %q", tpl.ID, tpl.Kind)
	}
}

func (p *Pipeline) commit(ctx context.Context, tpl *models.Template, out *Output, opts GenerateOptions, took time.Duration) error {
	if err := p.usage.IncrementUsage(ctx, tpl.ID); err != nil {
		return fmt.Errorf("failed to record usage of template %s: %w", tpl.ID, err)
	}
	p.record(tpl, out, opts, took)
	return nil
}

// Flush waits for pending generation log writes.
func (p *Pipeline) Flush() {
	p.pending.Wait()
}

func (p *Pipeline) generateFlow(ctx context.Context, tpl *models.Template, gctx resolver.Context, format OutputFormat) (*Output, error) {
	if format == "" {
		format = FormatDOCX
	}

	header := p.headerHTML(ctx, tpl)
	if !flow.HasContent(header) && !flow.HasContent(tpl.ConteudoHTML) {
		return nil, apperrors.New(apperrors.KindTemplateEmptyContent, "template %s has no content", tpl.ID)
	}

	res := flow.RenderWithHeader(header, tpl.ConteudoHTML, p.resolver.Func(gctx))
	out := &Output{
		Format:      format,
		Filename:    filename(tpl.Name, gctx, format),
		ContentType: contentTypes[format],
		Report:      Report{Unresolved: orEmpty(res.Unresolved), Malformed: orEmpty(res.Malformed)},
	}

	var err error
	switch format {
	case FormatDOCX:
		layout := processor.DefaultLayout()
		layout.Landscape = tpl.Landscape
		out.Document, err = processor.WriteHTML(res.HTML, layout)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindConversionFailed, err, "failed to write docx for template %s", tpl.ID)
		}
	case FormatHTML:
		out.Document = []byte(htmlPage(tpl.Name, res.HTML, tpl.Landscape))
	case FormatPDF:
		if p.pdf == nil {
			return nil, apperrors.New(apperrors.KindConversionFailed, "pdf output is not configured")
		}
		convCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		out.Document, err = p.pdf.HTMLToPDF(convCtx, htmlPage(tpl.Name, res.HTML, tpl.Landscape), tpl.Landscape)
		if err != nil {
			return nil, asTimeout(err, "pdf conversion of template %s", tpl.ID)
		}
	default:
		return nil, apperrors.New(apperrors.KindInvalidInput, "unknown output format %q", format)
	}
	return out, nil
}

// headerHTML loads the template's header block. A header that no longer
// exists is skipped.
func (p *Pipeline) headerHTML(ctx context.Context, tpl *models.Template) string {
	if tpl.CabecalhoID == nil || *tpl.CabecalhoID == "" || p.headers == nil {
		return ""
	}
	h, err := p.headers.Get(ctx, *tpl.CabecalhoID)
	if err != nil {
		p.logger.Warn("header block unavailable, generating without it",
			"template_id", tpl.ID, "cabecalho_id", *tpl.CabecalhoID, "error", err)
		return ""
	}
	return h.ConteudoHTML
}

func (p *Pipeline) generateOverlay(ctx context.Context, tpl *models.Template, gctx resolver.Context, format OutputFormat) (*Output, error) {
	if format != "" && format != FormatPDF {
		return nil, apperrors.New(apperrors.KindInvalidInput, "overlay templates only produce pdf, not %s", format)
	}
	if tpl.PDFPath == "" || len(tpl.Pages) == 0 {
		return nil, apperrors.New(apperrors.KindTemplateEmptyContent, "template %s has no source pdf", tpl.ID)
	}

	src, err := p.blobs.Get(ctx, tpl.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load source pdf of template %s: %w", tpl.ID, err)
	}

	fontSize := tpl.DefaultFontSize
	if fontSize <= 0 {
		fontSize = p.defaultFontSize
	}
	res, err := p.stamper.Stamp(ctx, src, tpl.Pages, tpl.Fields, p.resolver.Func(gctx), overlay.Options{
		DefaultFontSize: fontSize,
		CreatedAt:       gctx.Now,
		Timeout:         p.timeout,
	})
	if err != nil {
		return nil, asTimeout(err, "stamping template %s", tpl.ID)
	}

	return &Output{
		Document:    res.PDF,
		Format:      FormatPDF,
		Filename:    filename(tpl.Name, gctx, FormatPDF),
		ContentType: contentTypes[FormatPDF],
		Report:      Report{Unresolved: orEmpty(res.Unresolved), Malformed: []string{}},
	}, nil
}

func (p *Pipeline) record(tpl *models.Template, out *Output, opts GenerateOptions, took time.Duration) {
	if p.logs == nil {
		return
	}
	entry := &models.GenerationLog{
		ID:            uuid.New().String(),
		TemplateID:    tpl.ID,
		TemplateName:  tpl.Name,
		Kind:          tpl.Kind,
		Format:        string(out.Format),
		Filename:      out.Filename,
		ProcessoID:    opts.Refs.ProcessoID,
		ClienteID:     opts.Refs.ClienteID,
		DossieID:      opts.Refs.DossieID,
		FuncionarioID: opts.Refs.FuncionarioID,
		Unresolved:    out.Report.Unresolved,
		Malformed:     out.Report.Malformed,
		DurationMs:    took.Milliseconds(),
		CreatedAt:     p.now(),
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.logs.Create(ctx, entry); err != nil {
			p.logger.Error("failed to record generation", "template_id", tpl.ID, "error", err)
		}
	}()
}

func asTimeout(err error, format string, args ...any) error {
	if errors.Is(err, apperrors.KindConversionTimeout) || apperrors.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindConversionTimeout, err, format+" timed out", args...)
	}
	return apperrors.Wrap(apperrors.KindConversionFailed, err, format+" failed", args...)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// filename is the template name, followed by the processo number or else the
// entidade name, slugified.
func filename(name string, gctx resolver.Context, format OutputFormat) string {
	base := slugify(name)
	if base == "" {
		base = "documento"
	}
	for _, v := range []any{gctx.Processo["numero"], gctx.Entidade["nome"]} {
		if v == nil {
			continue
		}
		if s := slugify(fmt.Sprint(v)); s != "" {
			base += "-" + s
			break
		}
	}
	return base + "." + string(format)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func slugify(s string) string {
	if t, _, err := transform.String(stripMarks, s); err == nil {
		s = t
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
		} else if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func htmlPage(title, body string, landscape bool) string {
	orientation := "portrait"
	if landscape {
		orientation = "landscape"
	}
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html><html lang="pt"><head><meta charset="utf-8"><title>`)
	sb.WriteString(html.EscapeString(title))
	sb.WriteString(`</title><style>@page { size: A4 `)
	sb.WriteString(orientation)
	sb.WriteString(`; margin: 2.54cm } body { font-family: "Times New Roman", serif; font-size: 12pt; line-height: 1.4 } p { margin: 0 0 8pt }</style></head><body>`)
	sb.WriteString(body)
	sb.WriteString(`</body></html>`)
	return sb.String()
}
