package importer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	gofpdf "github.com/lvillar/gofpdf"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/flow"
	"DF-TPLGEN/internal/processor"
)

type fakeConverter struct {
	calls int
	pdf   []byte
	err   error
}

func (c *fakeConverter) ConvertToPDF(ctx context.Context, r io.Reader, filename string) (io.ReadCloser, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return io.NopCloser(bytes.NewReader(c.pdf)), nil
}

func textPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.Text(40, 60, text)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("generating PDF: %v", err)
	}
	return buf.Bytes()
}

func docx(t *testing.T, body string) []byte {
	t.Helper()
	data, err := processor.WriteHTML(body, processor.DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestImportFlowRejectsOversizedFileBeforeConversion(t *testing.T) {
	conv := &fakeConverter{}
	im := New(Config{MaxSize: 10 << 20}, conv)

	// 12MB of zeros: neither a zip nor a document, so any parsing would fail
	// with a different kind
	_, err := im.ImportFlow(context.Background(), File{Name: "contrato.docx", Data: make([]byte, 12<<20)})
	if !errors.Is(err, apperrors.KindImportSizeExceeded) {
		t.Fatalf("ImportFlow() = %v, want ImportSizeExceeded", err)
	}
	if conv.calls != 0 {
		t.Errorf("converter called %d times", conv.calls)
	}
}

func TestImportFlowKinds(t *testing.T) {
	im := New(Config{}, &fakeConverter{})
	tests := []struct {
		name string
		file File
		want apperrors.Kind
	}{
		{"unknown extension", File{Name: "folha.xlsx", Data: []byte("x")}, apperrors.KindImportFormatUnsupported},
		{"no extension", File{Name: "contrato", Data: []byte("x")}, apperrors.KindImportFormatUnsupported},
		{"pdf named docx", File{Name: "contrato.docx", Data: textPDF(t, "x")}, apperrors.KindImportCorruptFile},
		{"text named pdf", File{Name: "contrato.pdf", Data: []byte("apenas texto")}, apperrors.KindImportCorruptFile},
		{"empty file", File{Name: "contrato.docx"}, apperrors.KindImportCorruptFile},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := im.ImportFlow(context.Background(), tc.file)
			if !errors.Is(err, tc.want) {
				t.Fatalf("ImportFlow() = %v, want %s", err, tc.want)
			}
		})
	}
}

func TestImportFlowDocx(t *testing.T) {
	body := `<h1>Procuração</h1><p style="margin-left: 40px; text-indent: 20px">Eu, {{entidade.nome}}, NIF {{entidade.nif}}</p>`
	res, err := New(Config{}, nil).ImportFlow(context.Background(), File{Name: "Procuração.DOCX", Data: docx(t, body)})
	if err != nil {
		t.Fatalf("ImportFlow: %v", err)
	}

	if diff := cmp.Diff([]string{"entidade.nome", "entidade.nif"}, res.Variables); diff != "" {
		t.Errorf("variables (-want +got):\n%s", diff)
	}
	if res.Source != "docx" || res.Landscape {
		t.Errorf("source = %q landscape = %v", res.Source, res.Landscape)
	}

	doc, err := flow.Parse(res.HTML)
	if err != nil {
		t.Fatal(err)
	}
	blocks := doc.Blocks()
	if len(blocks) != 2 || blocks[0].Tag != "h1" || blocks[1].Indent != 40 ||
		blocks[1].TextIndent == nil || *blocks[1].TextIndent != 20 {
		t.Errorf("blocks = %+v", blocks)
	}
}

func TestImportFlowPDFText(t *testing.T) {
	res, err := New(Config{}, nil).ImportFlow(context.Background(),
		File{Name: "minuta.pdf", Data: textPDF(t, "Cliente {{entidade.nome}}", "Segunda página")})
	if err != nil {
		t.Fatalf("ImportFlow: %v", err)
	}
	if !strings.Contains(res.HTML, "{{entidade.nome}}") || strings.Count(res.HTML, "<p>") != 2 {
		t.Errorf("HTML = %s", res.HTML)
	}
}

func TestImportFlowPDFWithoutText(t *testing.T) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	pdf.Rect(10, 10, 100, 100, "D")
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatal(err)
	}

	_, err := New(Config{}, nil).ImportFlow(context.Background(), File{Name: "scan.pdf", Data: buf.Bytes()})
	if !errors.Is(err, apperrors.KindImportCorruptFile) {
		t.Fatalf("ImportFlow() = %v, want ImportCorruptFile", err)
	}
}

func TestImportFlowLegacyUsesConverter(t *testing.T) {
	conv := &fakeConverter{pdf: textPDF(t, "Requerimento {{processo.numero}}")}
	rtf := []byte(`{\rtf1\ansi Requerimento {{processo.numero}}\par}`)

	res, err := New(Config{}, conv).ImportFlow(context.Background(), File{Name: "req.rtf", Data: rtf})
	if err != nil {
		t.Fatalf("ImportFlow: %v", err)
	}
	if conv.calls != 1 {
		t.Errorf("converter calls = %d, want 1", conv.calls)
	}
	if diff := cmp.Diff([]string{"processo.numero"}, res.Variables); diff != "" {
		t.Errorf("variables (-want +got):\n%s", diff)
	}
}

func TestImportFlowLegacyTimeout(t *testing.T) {
	conv := &fakeConverter{err: context.DeadlineExceeded}
	rtf := []byte(`{\rtf1\ansi texto\par}`)

	_, err := New(Config{}, conv).ImportFlow(context.Background(), File{Name: "req.rtf", Data: rtf})
	if !errors.Is(err, apperrors.KindConversionTimeout) {
		t.Fatalf("ImportFlow() = %v, want ConversionTimeout", err)
	}
}

func TestImportFlowImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 5))); err != nil {
		t.Fatal(err)
	}
	res, err := New(Config{}, nil).ImportFlow(context.Background(), File{Name: "logo.png", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("ImportFlow: %v", err)
	}
	if !strings.Contains(res.HTML, `src="data:image/png;base64,`) || !strings.Contains(res.HTML, `width="3"`) {
		t.Errorf("HTML = %s", res.HTML)
	}
	if len(res.Variables) != 0 {
		t.Errorf("variables = %v", res.Variables)
	}
}

func TestSanitizeKeepsIndentation(t *testing.T) {
	in := `<p style="margin-left: 80px; color: red" onclick="x()">a<script>alert(1)</script></p>` +
		`<h3 style="text-indent: -12px">b</h3><table><tr><td>c</td></tr></table>`
	out := Sanitize(in)

	for _, banned := range []string{"script", "onclick", "color", "<table", "<td"} {
		if strings.Contains(out, banned) {
			t.Errorf("sanitised output kept %q: %s", banned, out)
		}
	}
	doc, err := flow.Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	blocks := doc.Blocks()
	if len(blocks) != 2 || blocks[0].Indent != 80 || blocks[1].TextIndent == nil || *blocks[1].TextIndent != -12 {
		t.Errorf("blocks = %+v (html %s)", blocks, out)
	}
}

func TestImportOverlay(t *testing.T) {
	im := New(Config{}, nil)
	res, err := im.ImportOverlay(context.Background(), File{Name: "formulario.pdf", Data: textPDF(t, "um", "dois")})
	if err != nil {
		t.Fatalf("ImportOverlay: %v", err)
	}
	if res.PageCount != 2 || len(res.Pages) != 2 {
		t.Fatalf("pages = %+v", res.Pages)
	}
	if p := res.Pages[1]; p.PageNumber != 2 || p.WidthPt < 595 || p.WidthPt > 596 || p.HeightPt < 841 || p.HeightPt > 842 {
		t.Errorf("page 2 = %+v, want A4", p)
	}

	_, err = im.ImportOverlay(context.Background(), File{Name: "formulario.docx", Data: []byte("PK")})
	if !errors.Is(err, apperrors.KindImportFormatUnsupported) {
		t.Errorf("ImportOverlay(docx) = %v, want ImportFormatUnsupported", err)
	}
}
