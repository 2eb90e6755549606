package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	gofpdf "github.com/lvillar/gofpdf"
	gofpdfreader "github.com/lvillar/gofpdf/reader"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/overlay"
	"DF-TPLGEN/internal/processor"
	"DF-TPLGEN/internal/resolver"
	"DF-TPLGEN/internal/variables"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type pipelineFixture struct {
	pipeline  *Pipeline
	templates *memTemplates
	blobs     *memBlobs
	logs      *memLogs
}

func newPipelineFixture(t *testing.T, cfg PipelineConfig) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{templates: newMemTemplates(), blobs: newMemBlobs(), logs: &memLogs{}}
	cfg.Resolver = resolver.New(variables.MustDefault())
	cfg.Blobs = f.blobs
	cfg.Stamper = overlay.NewStamper(t.TempDir())
	cfg.Usage = f.templates
	cfg.Logs = f.logs
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	f.pipeline = NewPipeline(cfg)
	f.pipeline.now = func() time.Time { return fixedNow }
	return f
}

func flowTemplate(body string) *models.Template {
	return &models.Template{ID: "tpl-flow", Name: "Procuração Forense", Kind: models.KindFlow, ConteudoHTML: body}
}

func docxText(t *testing.T, data []byte) string {
	t.Helper()
	dp, err := processor.OpenDocx(data)
	if err != nil {
		t.Fatalf("output is not a docx: %v", err)
	}
	body, err := dp.ToHTML()
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestGenerateFlowDocx(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	tpl := flowTemplate(`<p>Olá {{entidade.nome}}, processo {{processo.numero}}.</p>`)
	gctx := resolver.Context{
		Entidade: resolver.Record{"nome": "Ana Sousa"},
		Processo: resolver.Record{"numero": "123/24.0T8LSB"},
	}

	out, err := f.pipeline.Generate(context.Background(), tpl, gctx, GenerateOptions{Refs: Refs{ProcessoID: "p1"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	f.pipeline.Flush()

	if out.Filename != "procuracao-forense-123-24-0t8lsb.docx" {
		t.Errorf("filename = %q", out.Filename)
	}
	if out.Format != FormatDOCX || out.ContentType != contentTypes[FormatDOCX] {
		t.Errorf("format = %s, content type = %s", out.Format, out.ContentType)
	}
	if diff := cmp.Diff(Report{Unresolved: []string{}, Malformed: []string{}}, out.Report); diff != "" {
		t.Errorf("report (-want +got):\n%s", diff)
	}
	if body := docxText(t, out.Document); !strings.Contains(body, "Olá Ana Sousa, processo 123/24.0T8LSB.") {
		t.Errorf("document body = %s", body)
	}

	if n := f.templates.uses(tpl.ID); n != 1 {
		t.Errorf("usage incremented %d times, want 1", n)
	}
	if len(f.logs.logs) != 1 {
		t.Fatalf("generation logs = %d, want 1", len(f.logs.logs))
	}
	if got := f.logs.logs[0]; got.TemplateID != tpl.ID || got.Format != "docx" || got.ProcessoID != "p1" {
		t.Errorf("log = %+v", got)
	}
}

func TestGenerateFlowReportsMissingValues(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	tpl := flowTemplate(`<p>{{entidade.nome}} {{entidade.nif}} {{processo.numero}} {{ bad }}</p>`)
	gctx := resolver.Context{Entidade: resolver.Record{"nif": "123456789"}}

	out, err := f.pipeline.Generate(context.Background(), tpl, gctx, GenerateOptions{Format: FormatHTML})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := Report{
		Unresolved: []string{"entidade.nome", "processo.numero"},
		Malformed:  []string{"{{ bad }}"},
	}
	if diff := cmp.Diff(want, out.Report); diff != "" {
		t.Errorf("report (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(out.Document), "123456789") || out.Filename != "procuracao-forense.html" {
		t.Errorf("filename %q, document %s", out.Filename, out.Document)
	}
}

func TestGenerateFlowWithHeader(t *testing.T) {
	header := "cab-1"
	f := newPipelineFixture(t, PipelineConfig{
		Headers: memHeaders{header: {ID: header, ConteudoHTML: "<p>Escritório {{funcionario.nome}}</p>"}},
	})
	tpl := flowTemplate("<p>Corpo</p>")
	tpl.CabecalhoID = &header

	gctx := resolver.Context{Funcionario: resolver.Record{"nome": "Rui"}}
	out, err := f.pipeline.Generate(context.Background(), tpl, gctx, GenerateOptions{Format: FormatHTML})
	if err != nil {
		t.Fatal(err)
	}
	doc := string(out.Document)
	if !strings.Contains(doc, "Escritório Rui") || strings.Index(doc, "Escritório") > strings.Index(doc, "Corpo") {
		t.Errorf("document = %s", doc)
	}
}

func TestGenerateEmptyFlowDoesNotCountUsage(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	tpl := flowTemplate("<p> </p><p></p>")

	_, err := f.pipeline.Generate(context.Background(), tpl, resolver.Context{}, GenerateOptions{})
	if !errors.Is(err, apperrors.KindTemplateEmptyContent) {
		t.Fatalf("Generate() = %v, want TemplateEmptyContent", err)
	}
	if n := f.templates.uses(tpl.ID); n != 0 {
		t.Errorf("usage incremented %d times", n)
	}
}

func TestGenerateUsageFailureDiscardsOutput(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.templates.failUsage = apperrors.New(apperrors.KindConcurrentUsageCountConflict, "retries exhausted")

	out, err := f.pipeline.Generate(context.Background(), flowTemplate("<p>x</p>"), resolver.Context{}, GenerateOptions{})
	if !errors.Is(err, apperrors.KindConcurrentUsageCountConflict) || out != nil {
		t.Fatalf("Generate() = %v, %v", out, err)
	}
	f.pipeline.Flush()
	if len(f.logs.logs) != 0 {
		t.Errorf("generation logged although usage failed")
	}
}

func TestGeneratePDFTimeout(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{PDF: blockingPDF{}, Timeout: 20 * time.Millisecond})

	_, err := f.pipeline.Generate(context.Background(), flowTemplate("<p>x</p>"), resolver.Context{}, GenerateOptions{Format: FormatPDF})
	if !errors.Is(err, apperrors.KindConversionTimeout) {
		t.Fatalf("Generate() = %v, want ConversionTimeout", err)
	}
	if f.templates.uses("tpl-flow") != 0 {
		t.Error("usage counted for a timed out generation")
	}
}

func TestGeneratePDFUsesChromiumPage(t *testing.T) {
	pdf := &recordingPDF{}
	f := newPipelineFixture(t, PipelineConfig{PDF: pdf})
	tpl := flowTemplate("<p>Olá</p>")
	tpl.Landscape = true

	out, err := f.pipeline.Generate(context.Background(), tpl, resolver.Context{}, GenerateOptions{Format: FormatPDF})
	if err != nil {
		t.Fatal(err)
	}
	if !pdf.landscape || !strings.Contains(pdf.page, "A4 landscape") || !strings.Contains(pdf.page, "<p>Olá</p>") {
		t.Errorf("page sent = %s (landscape %v)", pdf.page, pdf.landscape)
	}
	if out.ContentType != "application/pdf" {
		t.Errorf("content type = %s", out.ContentType)
	}
}

func sourcePDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	for i := 0; i < pages; i++ {
		pdf.AddPage()
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func overlayTemplate() *models.Template {
	return &models.Template{
		ID:      "tpl-overlay",
		Name:    "Declaração",
		Kind:    models.KindOverlay,
		PDFPath: "templates/tpl-overlay/v1.pdf",
		Pages:   []overlay.PageMetric{{PageNumber: 1, WidthPt: 595.28, HeightPt: 841.89}},
		Fields: []overlay.Field{
			{ID: "nif", VariablePath: "entidade.nif", Page: 1, X: 100, Y: 700, Width: 200, Height: 20},
			{ID: "nome", VariablePath: "entidade.nome", Page: 1, X: 100, Y: 100, Width: 200, Height: 20},
		},
	}
}

func TestGenerateOverlay(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	tpl := overlayTemplate()
	if err := f.blobs.Put(context.Background(), tpl.PDFPath, "application/pdf", sourcePDF(t, 1)); err != nil {
		t.Fatal(err)
	}

	gctx := resolver.Context{Entidade: resolver.Record{"nif": "123456789"}}
	out, err := f.pipeline.Generate(context.Background(), tpl, gctx, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if diff := cmp.Diff([]string{"entidade.nome"}, out.Report.Unresolved); diff != "" {
		t.Errorf("unresolved (-want +got):\n%s", diff)
	}
	if out.Filename != "declaracao.pdf" {
		t.Errorf("filename = %q", out.Filename)
	}

	doc, err := gofpdfreader.ReadFrom(bytes.NewReader(out.Document))
	if err != nil {
		t.Fatalf("output is not a pdf: %v", err)
	}
	page, err := doc.Page(1)
	if err != nil {
		t.Fatal(err)
	}
	text, err := page.ExtractText()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "123456789") {
		t.Errorf("page text = %q", text)
	}
}

func TestGenerateOverlayErrors(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})

	noPDF := overlayTemplate()
	noPDF.PDFPath = ""
	if _, err := f.pipeline.Generate(context.Background(), noPDF, resolver.Context{}, GenerateOptions{}); !errors.Is(err, apperrors.KindTemplateEmptyContent) {
		t.Errorf("no pdf: %v", err)
	}

	if _, err := f.pipeline.Generate(context.Background(), overlayTemplate(), resolver.Context{}, GenerateOptions{Format: FormatDOCX}); !errors.Is(err, apperrors.KindInvalidInput) {
		t.Errorf("docx from overlay: %v", err)
	}

	unknown := flowTemplate("<p>x</p>")
	unknown.Kind = "spreadsheet"
	if _, err := f.pipeline.Generate(context.Background(), unknown, resolver.Context{}, GenerateOptions{}); !errors.Is(err, apperrors.KindInvalidInput) {
		t.Errorf("unknown kind: %v", err)
	}

	trashed := flowTemplate("<p>x</p>")
	trashed.DeletedAt.Valid = true
	if _, err := f.pipeline.Generate(context.Background(), trashed, resolver.Context{}, GenerateOptions{}); !errors.Is(err, apperrors.KindTemplateTrashed) {
		t.Errorf("trashed: %v", err)
	}
}

func TestGenerateBatch(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{Parallelism: 2})
	tpl := flowTemplate("<p>{{entidade.nome}}</p>")

	names := []string{"Ana", "Bruno", "Carla"}
	contexts := make([]resolver.Context, len(names))
	for i, n := range names {
		contexts[i] = resolver.Context{Entidade: resolver.Record{"nome": n}}
	}

	outs, err := f.pipeline.GenerateBatch(context.Background(), tpl, contexts, GenerateOptions{Format: FormatHTML})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	for i, out := range outs {
		if !strings.Contains(string(out.Document), "<p>"+names[i]+"</p>") {
			t.Errorf("document %d = %s", i, out.Document)
		}
		if want := "procuracao-forense-" + strings.ToLower(names[i]) + ".html"; out.Filename != want {
			t.Errorf("filename %d = %q, want %q", i, out.Filename, want)
		}
	}
	if n := f.templates.uses(tpl.ID); n != len(names) {
		t.Errorf("usage = %d, want %d", n, len(names))
	}
}

func TestGenerateBatchFailureLeavesNoUsage(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{PDF: failingPDF{marker: "Bruno"}, Parallelism: 1})
	tpl := flowTemplate("<p>{{entidade.nome}}</p>")
	contexts := []resolver.Context{
		{Entidade: resolver.Record{"nome": "Ana"}},
		{Entidade: resolver.Record{"nome": "Bruno"}},
		{Entidade: resolver.Record{"nome": "Carla"}},
	}

	outs, err := f.pipeline.GenerateBatch(context.Background(), tpl, contexts, GenerateOptions{Format: FormatPDF})
	if !errors.Is(err, apperrors.KindConversionFailed) || outs != nil {
		t.Fatalf("GenerateBatch() = %v, %v", outs, err)
	}
	if !strings.Contains(err.Error(), "document 2") {
		t.Errorf("error = %v, want it to name document 2", err)
	}
	f.pipeline.Flush()
	if n := f.templates.uses(tpl.ID); n != 0 {
		t.Errorf("usage = %d, want 0", n)
	}
	if len(f.logs.logs) != 0 {
		t.Errorf("generation logs = %d, want 0", len(f.logs.logs))
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Procuração Forense":   "procuracao-forense",
		"  Contrato -- 2024  ": "contrato-2024",
		"ÁÉÍÓÚ çã":             "aeiou-ca",
		"***":                  "",
		"Nº 12/2024":           "n-12-2024",
	}
	for in, want := range tests {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": "", "PDF": FormatPDF, " docx ": FormatDOCX, "html": FormatHTML} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("odt"); !errors.Is(err, apperrors.KindInvalidInput) {
		t.Errorf("ParseOutputFormat(odt) = %v", err)
	}
}
