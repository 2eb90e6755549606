// Package processor converts office documents to and from the flow HTML
// dialect: block elements carrying margin-left and text-indent styles with
// simple inline formatting.
package processor

import (
	"html"
	"math"
	"strings"

	"DF-TPLGEN/internal/flow"
)

type runStyle struct {
	bold, italic, underline bool
}

func (r runStyle) wrap(s string) string {
	if r.underline {
		s = "<u>" + s + "</u>"
	}
	if r.italic {
		s = "<em>" + s + "</em>"
	}
	if r.bold {
		s = "<strong>" + s + "</strong>"
	}
	return s
}

type paragraph struct {
	tag        string
	indent     float64
	textIndent *float64
	inner      strings.Builder
	// pending collects adjacent text with the same run style
	pending      strings.Builder
	pendingStyle runStyle
}

func (p *paragraph) text(style runStyle, s string) {
	if s == "" {
		return
	}
	if p.pending.Len() > 0 && style != p.pendingStyle {
		p.flush()
	}
	p.pendingStyle = style
	p.pending.WriteString(html.EscapeString(s))
}

func (p *paragraph) lineBreak() {
	p.flush()
	p.inner.WriteString("<br>")
}

func (p *paragraph) flush() {
	if p.pending.Len() == 0 {
		return
	}
	p.inner.WriteString(p.pendingStyle.wrap(p.pending.String()))
	p.pending.Reset()
}

type htmlWriter struct {
	sb strings.Builder
}

func (w *htmlWriter) block(p *paragraph) {
	p.flush()
	indent := flow.SnapIndent(p.indent, flow.DefaultIndentStep, flow.DefaultMaxIndent)
	var textIndent *float64
	if p.textIndent != nil {
		v := math.Round(*p.textIndent)
		textIndent = &v
	}

	w.sb.WriteString("<" + p.tag)
	if style := flow.IndentStyle(indent, textIndent); style != "" {
		w.sb.WriteString(` style="` + style + `"`)
	}
	w.sb.WriteString(">")
	w.sb.WriteString(p.inner.String())
	w.sb.WriteString("</" + p.tag + ">")
}

func (w *htmlWriter) String() string { return w.sb.String() }
