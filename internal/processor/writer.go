package processor

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"DF-TPLGEN/internal/flow"
)

const (
	pxToTwips = 15
	pxToEMU   = 9525
)

// zip entries get a fixed timestamp so identical input gives identical bytes
var packageTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// wordImageTypes are the formats embedded as-is; anything else is re-encoded
// as PNG.
var wordImageTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

type media struct {
	relID string
	name  string
	data  []byte
	ext   string
}

// DocxWriter renders flow HTML as a WordprocessingML package.
type DocxWriter struct {
	layout DocumentLayout

	body      bytes.Buffer
	para      *docxPara
	media     []media
	drawingID int
}

type docxPara struct {
	style      string
	indent     float64
	textIndent *float64
	runs       bytes.Buffer
}

func NewDocxWriter(layout DocumentLayout) *DocxWriter {
	return &DocxWriter{layout: layout}
}

// WriteHTML converts a flow HTML body into a .docx package.
func WriteHTML(body string, layout DocumentLayout) ([]byte, error) {
	return NewDocxWriter(layout).Write(body)
}

func (w *DocxWriter) Write(body string) ([]byte, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(body), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document body: %w", err)
	}
	for _, n := range nodes {
		w.walk(n, runStyle{})
	}
	w.endParagraph()

	return w.pack()
}

func (w *DocxWriter) walk(n *html.Node, rs runStyle) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" && w.para == nil {
			return
		}
		w.ensureParagraph()
		w.writeRun(rs, n.Data)
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, rs)
		}
		return
	}

	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Li:
		w.endParagraph()
		w.startParagraph(n)
		w.walkChildren(n, rs)
		w.endParagraph()
	case atom.Div, atom.Ul, atom.Ol, atom.Table, atom.Tbody, atom.Thead, atom.Tr, atom.Td, atom.Th,
		atom.Section, atom.Article, atom.Blockquote:
		w.endParagraph()
		w.walkChildren(n, rs)
		w.endParagraph()
	case atom.B, atom.Strong:
		rs.bold = true
		w.walkChildren(n, rs)
	case atom.I, atom.Em:
		rs.italic = true
		w.walkChildren(n, rs)
	case atom.U:
		rs.underline = true
		w.walkChildren(n, rs)
	case atom.Br:
		w.ensureParagraph()
		w.para.runs.WriteString(`<w:r><w:br/></w:r>`)
	case atom.Img:
		w.ensureParagraph()
		w.writeImage(attrValue(n, "src"))
	case atom.Script, atom.Style:
	default:
		w.walkChildren(n, rs)
	}
}

func (w *DocxWriter) walkChildren(n *html.Node, rs runStyle) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, rs)
	}
}

func (w *DocxWriter) startParagraph(n *html.Node) {
	p := &docxPara{}
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		p.style = "Heading" + n.Data[1:]
	}

	p.indent, p.textIndent = flow.ReadIndentStyle(attrValue(n, "style"))
	w.para = p
}

func (w *DocxWriter) ensureParagraph() {
	if w.para == nil {
		w.para = &docxPara{}
	}
}

func (w *DocxWriter) endParagraph() {
	p := w.para
	if p == nil {
		return
	}
	w.para = nil

	w.body.WriteString("<w:p>")
	if p.style != "" || p.indent > 0 || p.textIndent != nil {
		w.body.WriteString("<w:pPr>")
		if p.style != "" {
			fmt.Fprintf(&w.body, `<w:pStyle w:val="%s"/>`, p.style)
		}
		if p.indent > 0 || p.textIndent != nil {
			w.body.WriteString("<w:ind")
			if p.indent > 0 {
				fmt.Fprintf(&w.body, ` w:left="%d"`, twips(p.indent))
			}
			if p.textIndent != nil {
				if *p.textIndent >= 0 {
					fmt.Fprintf(&w.body, ` w:firstLine="%d"`, twips(*p.textIndent))
				} else {
					fmt.Fprintf(&w.body, ` w:hanging="%d"`, twips(-*p.textIndent))
				}
			}
			w.body.WriteString("/>")
		}
		w.body.WriteString("</w:pPr>")
	}
	w.body.Write(p.runs.Bytes())
	w.body.WriteString("</w:p>")
}

func twips(px float64) int { return int(math.Round(px * pxToTwips)) }

func (w *DocxWriter) writeRun(rs runStyle, text string) {
	text = collapseSpace(text)
	if text == "" {
		return
	}

	r := &w.para.runs
	r.WriteString("<w:r>")
	if rs.bold || rs.italic || rs.underline {
		r.WriteString("<w:rPr>")
		if rs.bold {
			r.WriteString("<w:b/>")
		}
		if rs.italic {
			r.WriteString("<w:i/>")
		}
		if rs.underline {
			r.WriteString(`<w:u w:val="single"/>`)
		}
		r.WriteString("</w:rPr>")
	}
	r.WriteString(`<w:t xml:space="preserve">`)
	xml.EscapeText(r, []byte(text))
	r.WriteString("</w:t></w:r>")
}

// collapseSpace folds runs of HTML whitespace into one space, as a browser
// would. Non-breaking spaces are kept.
func collapseSpace(s string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !prevSpace {
				sb.WriteByte(' ')
			}
			prevSpace = true
		default:
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return sb.String()
}

func (w *DocxWriter) writeImage(src string) {
	data, ext, cfg, ok := decodeDataURI(src)
	if !ok {
		return
	}

	w.drawingID++
	id := w.drawingID
	m := media{relID: fmt.Sprintf("rIdImg%d", id), name: fmt.Sprintf("image%d.%s", id, ext), data: data, ext: ext}
	w.media = append(w.media, m)

	// scale down to the text width
	maxWidth := (w.layout.PageWidth - w.layout.LeftMargin - w.layout.RightMargin) * 96 / 72
	width, height := float64(cfg.Width), float64(cfg.Height)
	if maxWidth > 0 && width > maxWidth {
		height = height * maxWidth / width
		width = maxWidth
	}
	cx, cy := int(width*pxToEMU), int(height*pxToEMU)

	fmt.Fprintf(&w.para.runs, `<w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="Imagem %d"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr></pic:pic>`+
		`</a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		cx, cy, id, id, id, m.name, m.relID, cx, cy)
}

// decodeDataURI accepts base64 image data URIs. Formats Word cannot show are
// re-encoded as PNG.
func decodeDataURI(src string) ([]byte, string, image.Config, bool) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok || !strings.HasPrefix(src, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, "", image.Config{}, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", image.Config{}, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", image.Config{}, false
	}
	if _, ok := wordImageTypes[format]; ok {
		return data, format, cfg, true
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", image.Config{}, false
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", image.Config{}, false
	}
	return buf.Bytes(), "png", cfg, true
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func (w *DocxWriter) pack() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(w.contentTypes())},
		{"_rels/.rels", []byte(packageRels)},
		{"word/document.xml", []byte(w.documentXML())},
		{"word/styles.xml", []byte(stylesXML)},
		{"word/_rels/document.xml.rels", []byte(w.documentRels())},
	}
	for _, m := range w.media {
		parts = append(parts, struct {
			name string
			data []byte
		}{"word/media/" + m.name, m.data})
	}

	for _, p := range parts {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: packageTime})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", p.name, err)
		}
		if _, err := fw.Write(p.data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish docx package: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *DocxWriter) contentTypes() string {
	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	sb.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	sb.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	for _, ext := range []string{"png", "jpeg", "gif", "bmp", "tiff"} {
		fmt.Fprintf(&sb, `<Default Extension="%s" ContentType="%s"/>`, ext, wordImageTypes[ext])
	}
	sb.WriteString(`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`)
	sb.WriteString(`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>`)
	sb.WriteString(`</Types>`)
	return sb.String()
}

func (w *DocxWriter) documentRels() string {
	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	sb.WriteString(`<Relationship Id="rIdStyles" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`)
	for _, m := range w.media {
		fmt.Fprintf(&sb, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/%s"/>`, m.relID, m.name)
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

func (w *DocxWriter) documentXML() string {
	l := w.layout
	width, height := l.PageWidth, l.PageHeight
	orient := ""
	if l.Landscape {
		if width < height {
			width, height = height, width
		}
		orient = ` w:orient="landscape"`
	}

	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"` +
		` xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"` +
		` xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"><w:body>`)
	sb.Write(w.body.Bytes())
	fmt.Fprintf(&sb, `<w:sectPr><w:pgSz w:w="%d" w:h="%d"%s/>`+
		`<w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`,
		ptToTwips(width), ptToTwips(height), orient,
		ptToTwips(l.TopMargin), ptToTwips(l.RightMargin), ptToTwips(l.BottomMargin), ptToTwips(l.LeftMargin))
	sb.WriteString(`</w:body></w:document>`)
	return sb.String()
}

func ptToTwips(pt float64) int { return int(math.Round(pt * 20)) }

const packageRels = xml.Header + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

const stylesXML = xml.Header + `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	`<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Calibri"/>` +
	`<w:sz w:val="22"/><w:lang w:val="pt-PT"/></w:rPr></w:rPrDefault>` +
	`<w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="276" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>` +
	`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:pPr><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="36"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:pPr><w:outlineLvl w:val="1"/></w:pPr><w:rPr><w:b/><w:sz w:val="30"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/><w:basedOn w:val="Normal"/><w:pPr><w:outlineLvl w:val="2"/></w:pPr><w:rPr><w:b/><w:sz w:val="26"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading4"><w:name w:val="heading 4"/><w:basedOn w:val="Normal"/><w:pPr><w:outlineLvl w:val="3"/></w:pPr><w:rPr><w:b/><w:i/><w:sz w:val="24"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading5"><w:name w:val="heading 5"/><w:basedOn w:val="Normal"/><w:pPr><w:outlineLvl w:val="4"/></w:pPr><w:rPr><w:b/><w:sz w:val="22"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading6"><w:name w:val="heading 6"/><w:basedOn w:val="Normal"/><w:pPr><w:outlineLvl w:val="5"/></w:pPr><w:rPr><w:i/><w:sz w:val="22"/></w:rPr></w:style>` +
	`</w:styles>`
