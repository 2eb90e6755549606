package processor

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func zipParts(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDocxRoundTrip(t *testing.T) {
	body := `<h2 style="margin-left: 40px">Título</h2>` +
		`<p style="margin-left: 80px; text-indent: -20px;">A <strong>negrito</strong> e <em>itálico</em></p>` +
		`<p>{{entidade.nome}}</p>`

	data, err := WriteHTML(body, DefaultLayout())
	if err != nil {
		t.Fatalf("WriteHTML: %v", err)
	}
	dp, err := OpenDocx(data)
	if err != nil {
		t.Fatalf("OpenDocx: %v", err)
	}
	got, err := dp.ToHTML()
	if err != nil {
		t.Fatalf("ToHTML: %v", err)
	}

	want := `<h2 style="margin-left: 40px;">Título</h2>` +
		`<p style="margin-left: 80px; text-indent: -20px;">A <strong>negrito</strong> e <em>itálico</em></p>` +
		`<p>{{entidade.nome}}</p>`
	if got != want {
		t.Errorf("round trip:\n got %s\nwant %s", got, want)
	}
}

func TestDocxWriterIsDeterministic(t *testing.T) {
	body := `<p>Contrato</p><p><u>Assinatura</u></p>`
	a, err := WriteHTML(body, DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	b, err := WriteHTML(body, DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two writes of the same body differ")
	}
}

func TestDocxToHTMLReadsWordIndentation(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Ttulo1"/></w:pPr><w:r><w:t>Declaração</w:t></w:r></w:p>
<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs><w:ind w:start="700" w:firstLine="360"/><w:rPr><w:b/></w:rPr></w:pPr>
<w:r><w:t xml:space="preserve">Eu, </w:t></w:r><w:r><w:rPr><w:b/><w:b w:val="0"/></w:rPr><w:t>{{funcionario.nome}}</w:t></w:r><w:r><w:tab/><w:t>fim</w:t></w:r><w:r><w:br/><w:t>linha</w:t></w:r></w:p>
<w:sectPr><w:pgSz w:w="16838" w:h="11906" w:orient="landscape"/><w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134"/></w:sectPr>
</w:body></w:document>`

	dp, err := OpenDocx(zipParts(t, map[string]string{documentPart: doc}))
	if err != nil {
		t.Fatal(err)
	}
	got, err := dp.ToHTML()
	if err != nil {
		t.Fatal(err)
	}
	// 700 twips is 46.7px, snapped to one step
	want := `<h1>Declaração</h1><p style="margin-left: 40px; text-indent: 24px;">Eu, {{funcionario.nome}}` + "\u2003" + `fim<br>linha</p>`
	if got != want {
		t.Errorf("ToHTML:\n got %s\nwant %s", got, want)
	}

	layout := dp.Layout()
	if !layout.Landscape || layout.PageWidth != 841.9 || layout.LeftMargin != 56.7 {
		t.Errorf("layout = %+v", layout)
	}
}

func TestOpenDocxRejectsOtherArchives(t *testing.T) {
	if _, err := OpenDocx([]byte("not a zip")); err == nil {
		t.Error("OpenDocx accepted garbage")
	}
	if _, err := OpenDocx(zipParts(t, map[string]string{"content.xml": "<x/>"})); err == nil {
		t.Error("OpenDocx accepted an archive without a main document")
	}
}

func TestOdtToHTML(t *testing.T) {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" xmlns:fo="urn:oasis:names:tc:opendocument:xmlns:xsl-fo-compatible:1.0">
<office:automatic-styles>
<style:style style:name="P1" style:family="paragraph"><style:paragraph-properties fo:margin-left="0.4167in" fo:text-indent="-0.25in"/></style:style>
<style:style style:name="T1" style:family="text"><style:text-properties fo:font-weight="bold"/></style:style>
</office:automatic-styles>
<office:body><office:text>
<text:h text:outline-level="2">Cláusula</text:h>
<text:p text:style-name="P1">Olá <text:span text:style-name="T1">{{entidade.nome}}</text:span></text:p>
<text:list><text:list-item><text:p>Item<text:line-break/>seguinte</text:p></text:list-item></text:list>
</office:text></office:body></office:document-content>`

	op, err := OpenOdt(zipParts(t, map[string]string{odtContentPart: content}))
	if err != nil {
		t.Fatal(err)
	}
	got, err := op.ToHTML()
	if err != nil {
		t.Fatal(err)
	}
	want := `<h2>Cláusula</h2>` +
		`<p style="margin-left: 40px; text-indent: -24px;">Olá <strong>{{entidade.nome}}</strong></p>` +
		`<p style="margin-left: 40px;">Item<br>seguinte</p>`
	if got != want {
		t.Errorf("ToHTML:\n got %s\nwant %s", got, want)
	}
}

func TestWriterEmbedsDataURIImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	data, err := WriteHTML(`<p>Logo <img src="`+src+`"></p><p><img src="https://example.com/x.png"></p>`, DefaultLayout())
	if err != nil {
		t.Fatal(err)
	}
	files, err := unzip(data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(files["word/media/image1.png"], buf.Bytes()) {
		t.Error("embedded image bytes differ from the source")
	}
	if len(files) != 6 {
		t.Errorf("package has %d parts, want 6 (remote images are skipped)", len(files))
	}
	if !strings.Contains(string(files["word/_rels/document.xml.rels"]), `Target="media/image1.png"`) {
		t.Error("image relationship missing")
	}
	// 4x2 px is 38100x19050 EMU
	if !strings.Contains(string(files[documentPart]), `<wp:extent cx="38100" cy="19050"/>`) {
		t.Error("image extent missing from document.xml")
	}
}

func TestCollapseSpace(t *testing.T) {
	tests := map[string]string{
		"a  b":           "a b",
		"\n  a\tb  ":     " a b ",
		"a\u00a0\u00a0b": "a\u00a0\u00a0b",
	}
	for in, want := range tests {
		if got := collapseSpace(in); got != want {
			t.Errorf("collapseSpace(%q) = %q, want %q", in, got, want)
		}
	}
}
