package processor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const documentPart = "word/document.xml"

var headingStyle = regexp.MustCompile(`(?i)^(heading|ttulo|titulo|título)\s*([1-6])$`)

type DocumentLayout struct {
	PageWidth    float64 // points
	PageHeight   float64 // points
	LeftMargin   float64
	RightMargin  float64
	TopMargin    float64
	BottomMargin float64
	Landscape    bool
}

// DefaultLayout is A4 portrait with 2.54cm margins.
func DefaultLayout() DocumentLayout {
	return DocumentLayout{
		PageWidth:    595.3,
		PageHeight:   841.9,
		LeftMargin:   72,
		RightMargin:  72,
		TopMargin:    72,
		BottomMargin: 72,
	}
}

// DocxProcessor reads a WordprocessingML package (.docx, .docm, .dotx,
// .dotm) held in memory.
type DocxProcessor struct {
	files map[string][]byte
}

func OpenDocx(data []byte) (*DocxProcessor, error) {
	files, err := unzip(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx file: %w", err)
	}
	if _, ok := files[documentPart]; !ok {
		return nil, fmt.Errorf("docx package has no %s", documentPart)
	}
	return &DocxProcessor{files: files}, nil
}

func unzip(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte, len(zr.File))
	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		content, err := extractFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to extract file %s: %w", file.Name, err)
		}
		files[file.Name] = content
	}
	return files, nil
}

func extractFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Layout reads page size, margins and orientation from the last w:sectPr.
func (dp *DocxProcessor) Layout() DocumentLayout {
	return parseDocumentLayout(string(dp.files[documentPart]))
}

func parseDocumentLayout(content string) DocumentLayout {
	layout := DefaultLayout()

	sectStart := strings.LastIndex(content, "<w:sectPr")
	if sectStart == -1 {
		return layout
	}
	sect := content[sectStart:]
	if end := strings.Index(sect, "</w:sectPr>"); end != -1 {
		sect = sect[:end]
	}

	if tag := selfClosingTag(sect, "<w:pgSz"); tag != "" {
		if w := parseFloatFromTwips(tagAttr(tag, "w:w")); w > 0 {
			layout.PageWidth = w
		}
		if h := parseFloatFromTwips(tagAttr(tag, "w:h")); h > 0 {
			layout.PageHeight = h
		}
		layout.Landscape = tagAttr(tag, "w:orient") == "landscape"
	}

	if tag := selfClosingTag(sect, "<w:pgMar"); tag != "" {
		margins := map[string]*float64{
			"w:left":   &layout.LeftMargin,
			"w:right":  &layout.RightMargin,
			"w:top":    &layout.TopMargin,
			"w:bottom": &layout.BottomMargin,
		}
		for name, ptr := range margins {
			if v := parseFloatFromTwips(tagAttr(tag, name)); v > 0 {
				*ptr = v
			}
		}
	}

	if !layout.Landscape {
		layout.Landscape = layout.PageWidth > layout.PageHeight
	}
	return layout
}

func selfClosingTag(content, open string) string {
	start := strings.Index(content, open)
	if start == -1 {
		return ""
	}
	end := strings.Index(content[start:], "/>")
	if end == -1 {
		return ""
	}
	return content[start : start+end]
}

func tagAttr(tag, name string) string {
	key := name + `="`
	start := strings.Index(tag, key)
	if start == -1 {
		return ""
	}
	start += len(key)
	end := strings.Index(tag[start:], `"`)
	if end == -1 {
		return ""
	}
	return tag[start : start+end]
}

// parseFloatFromTwips converts twentieths of a point to points.
func parseFloatFromTwips(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v / 20.0
}

// twipsToPx converts twentieths of a point to CSS px at 96dpi.
func twipsToPx(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v / 15.0, true
}

// ToHTML converts the main document part to the flow HTML dialect:
// paragraphs and headings with inline indentation, bold, italic and
// underline runs, tabs and line breaks. Tables are flattened to their
// paragraphs.
func (dp *DocxProcessor) ToHTML() (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(dp.files[documentPart]))

	var (
		out    htmlWriter
		para   *paragraph
		run    runStyle
		inPPr  bool
		inRPr  bool
		inText bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para = &paragraph{tag: "p"}
			case "pPr":
				inPPr = true
			case "pStyle":
				if para != nil && inPPr {
					if m := headingStyle.FindStringSubmatch(xmlAttr(t, "val")); m != nil {
						para.tag = "h" + m[2]
					} else if strings.EqualFold(xmlAttr(t, "val"), "Title") {
						para.tag = "h1"
					}
				}
			case "ind":
				if para != nil && inPPr {
					readIndent(para, t)
				}
			case "r":
				run = runStyle{}
			case "rPr":
				inRPr = !inPPr
			case "b":
				if inRPr {
					run.bold = onOff(t)
				}
			case "i":
				if inRPr {
					run.italic = onOff(t)
				}
			case "u":
				if inRPr {
					v := xmlAttr(t, "val")
					run.underline = v != "none" && v != "0"
				}
			case "t":
				inText = true
			case "tab":
				if para != nil && !inPPr {
					para.text(run, "\u2003")
				}
			case "br", "cr":
				if para != nil {
					para.lineBreak()
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if para != nil {
					out.block(para)
					para = nil
				}
			case "pPr":
				inPPr = false
			case "rPr":
				inRPr = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && para != nil {
				para.text(run, string(t))
			}
		}
	}

	return out.String(), nil
}

func readIndent(p *paragraph, t xml.StartElement) {
	left := xmlAttr(t, "left")
	if left == "" {
		left = xmlAttr(t, "start")
	}
	if px, ok := twipsToPx(left); ok {
		p.indent = px
	}
	if px, ok := twipsToPx(xmlAttr(t, "firstLine")); ok && px != 0 {
		p.textIndent = &px
	}
	if px, ok := twipsToPx(xmlAttr(t, "hanging")); ok && px != 0 {
		neg := -px
		p.textIndent = &neg
	}
}

func xmlAttr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// onOff reads a WordprocessingML toggle property: present means on unless
// w:val says otherwise.
func onOff(t xml.StartElement) bool {
	switch xmlAttr(t, "val") {
	case "0", "false", "off":
		return false
	}
	return true
}
