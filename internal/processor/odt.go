package processor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"DF-TPLGEN/internal/flow"
)

const odtContentPart = "content.xml"

type odtStyle struct {
	indent     *float64
	textIndent *float64
	run        runStyle
}

// OdtProcessor reads an OpenDocument text package held in memory.
type OdtProcessor struct {
	files map[string][]byte
}

func OpenOdt(data []byte) (*OdtProcessor, error) {
	files, err := unzip(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open odt file: %w", err)
	}
	if _, ok := files[odtContentPart]; !ok {
		return nil, fmt.Errorf("odt package has no %s", odtContentPart)
	}
	return &OdtProcessor{files: files}, nil
}

// ToHTML converts content.xml to flow HTML. Automatic paragraph styles supply
// margin-left and text-indent; every list level adds one indent step.
func (op *OdtProcessor) ToHTML() (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(op.files[odtContentPart]))

	var (
		out       htmlWriter
		styles    = make(map[string]*odtStyle)
		current   *odtStyle
		para      *paragraph
		spans     []runStyle
		listDepth int
	)

	runNow := func() runStyle {
		if len(spans) == 0 {
			return runStyle{}
		}
		return spans[len(spans)-1]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", odtContentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "style":
				current = &odtStyle{}
				styles[xmlAttr(t, "name")] = current
			case "paragraph-properties":
				if current != nil {
					if px, ok := flow.LengthPx(xmlAttr(t, "margin-left")); ok {
						current.indent = &px
					}
					if px, ok := flow.LengthPx(xmlAttr(t, "text-indent")); ok {
						current.textIndent = &px
					}
				}
			case "text-properties":
				if current != nil {
					current.run.bold = xmlAttr(t, "font-weight") == "bold"
					current.run.italic = xmlAttr(t, "font-style") == "italic"
					u := xmlAttr(t, "text-underline-style")
					current.run.underline = u != "" && u != "none"
				}
			case "list":
				listDepth++
			case "p", "h":
				para = &paragraph{tag: "p"}
				if t.Name.Local == "h" {
					level, err := strconv.Atoi(xmlAttr(t, "outline-level"))
					if err != nil || level < 1 {
						level = 1
					}
					if level > 6 {
						level = 6
					}
					para.tag = "h" + strconv.Itoa(level)
				}
				base := runStyle{}
				if st, ok := styles[xmlAttr(t, "style-name")]; ok {
					if st.indent != nil {
						para.indent = *st.indent
					}
					para.textIndent = st.textIndent
					base = st.run
				}
				if listDepth > 0 {
					para.indent += float64(listDepth) * flow.DefaultIndentStep
				}
				spans = []runStyle{base}
			case "span":
				run := runNow()
				if st, ok := styles[xmlAttr(t, "style-name")]; ok {
					run.bold = run.bold || st.run.bold
					run.italic = run.italic || st.run.italic
					run.underline = run.underline || st.run.underline
				}
				spans = append(spans, run)
			case "s":
				if para != nil {
					n, err := strconv.Atoi(xmlAttr(t, "c"))
					if err != nil || n < 1 {
						n = 1
					}
					para.text(runNow(), strings.Repeat(" ", n))
				}
			case "tab":
				if para != nil {
					para.text(runNow(), "\u2003")
				}
			case "line-break":
				if para != nil {
					para.lineBreak()
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "style":
				current = nil
			case "list":
				listDepth--
			case "span":
				if len(spans) > 1 {
					spans = spans[:len(spans)-1]
				}
			case "p", "h":
				if para != nil {
					out.block(para)
					para = nil
					spans = nil
				}
			}
		case xml.CharData:
			if para != nil {
				para.text(runNow(), string(t))
			}
		}
	}

	return out.String(), nil
}
