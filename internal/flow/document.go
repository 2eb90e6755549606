package flow

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	DefaultIndentStep = 40.0
	DefaultMaxIndent  = 240.0
)

// Block is a read-only view of one paragraph or heading.
type Block struct {
	Index      int      `json:"index"`
	Tag        string   `json:"tag"`
	Indent     float64  `json:"indent"`
	TextIndent *float64 `json:"text_indent,omitempty"`
	Text       string   `json:"text"`
}

// Selection is an inclusive range of block indexes.
type Selection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Document is a parsed flow body. Indentation lives in the inline style of
// <p> and <h1>..<h6> elements as margin-left and text-indent.
type Document struct {
	nodes  []*html.Node
	blocks []*html.Node
	step   float64
	max    float64
}

type DocumentOption func(*Document)

func WithIndentLimits(step, max float64) DocumentOption {
	return func(d *Document) {
		if step > 0 {
			d.step = step
		}
		if max >= 0 {
			d.max = max
		}
	}
}

// Parse reads an HTML fragment as body content.
func Parse(src string, opts ...DocumentOption) (*Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template body: %w", err)
	}

	doc := &Document{nodes: nodes, step: DefaultIndentStep, max: DefaultMaxIndent}
	for _, opt := range opts {
		opt(doc)
	}
	for _, n := range nodes {
		doc.collectBlocks(n)
	}
	return doc, nil
}

func (d *Document) collectBlocks(n *html.Node) {
	if n.Type == html.ElementNode && isBlockAtom(n.DataAtom) {
		d.blocks = append(d.blocks, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.collectBlocks(c)
	}
}

func isBlockAtom(a atom.Atom) bool {
	switch a {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

// HTML serialises the document back into a fragment.
func (d *Document) HTML() (string, error) {
	var buf bytes.Buffer
	for _, n := range d.nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("failed to render template body: %w", err)
		}
	}
	return buf.String(), nil
}

func (d *Document) Len() int { return len(d.blocks) }

func (d *Document) Blocks() []Block {
	out := make([]Block, len(d.blocks))
	for i, n := range d.blocks {
		b := Block{Index: i, Tag: n.Data, Text: textContent(n)}
		b.Indent, b.TextIndent = ReadIndentStyle(attr(n, "style"))
		out[i] = b
	}
	return out
}

// Indent moves every selected block one step right, clamped at the maximum.
// It reports false, leaving the document untouched, when nothing moved.
func (d *Document) Indent(sel Selection) (bool, error) {
	return d.shift(sel, func(cur float64) float64 {
		if cur >= d.max {
			return cur
		}
		next := (math.Floor(cur/d.step) + 1) * d.step
		return math.Min(next, d.max)
	})
}

// Outdent moves every selected block one step left, clamped at zero.
func (d *Document) Outdent(sel Selection) (bool, error) {
	return d.shift(sel, func(cur float64) float64 {
		if cur <= 0 {
			return 0
		}
		prev := (math.Ceil(cur/d.step) - 1) * d.step
		return math.Max(prev, 0)
	})
}

func (d *Document) shift(sel Selection, next func(float64) float64) (bool, error) {
	targets, err := d.selected(sel)
	if err != nil {
		return false, err
	}

	changed := false
	for _, n := range targets {
		styles := parseStyle(attr(n, "style"))
		raw := 0.0
		if v, ok := styles.get("margin-left"); ok {
			raw, _ = parseLength(v)
		}
		// Stored bodies may carry any px value; step from the nearest bound.
		cur := math.Min(math.Max(raw, 0), d.max)
		nv := next(cur)
		if nv == raw {
			continue
		}
		if nv == 0 {
			styles.del("margin-left")
		} else {
			styles.set("margin-left", formatPx(nv))
		}
		setAttr(n, "style", styles.String())
		changed = true
	}
	return changed, nil
}

// SetTextIndent sets (or with nil clears) the first-line indent of the selection.
func (d *Document) SetTextIndent(sel Selection, px *float64) (bool, error) {
	targets, err := d.selected(sel)
	if err != nil {
		return false, err
	}

	changed := false
	for _, n := range targets {
		before := attr(n, "style")
		styles := parseStyle(before)
		if px == nil {
			styles.del("text-indent")
		} else {
			styles.set("text-indent", formatPx(*px))
		}
		if after := styles.String(); after != before {
			setAttr(n, "style", after)
			changed = true
		}
	}
	return changed, nil
}

func (d *Document) selected(sel Selection) ([]*html.Node, error) {
	if sel.From < 0 || sel.To < sel.From || sel.To >= len(d.blocks) {
		return nil, fmt.Errorf("selection %d..%d outside %d blocks", sel.From, sel.To, len(d.blocks))
	}
	return d.blocks[sel.From : sel.To+1], nil
}

// InsertText places s at a rune offset within the block's text. An offset
// past the end appends.
func (d *Document) InsertText(block, offset int, s string) error {
	if block < 0 || block >= len(d.blocks) {
		return fmt.Errorf("block %d outside %d blocks", block, len(d.blocks))
	}
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}

	n := d.blocks[block]
	var last *html.Node
	remaining := offset
	var walk func(*html.Node) bool
	walk = func(c *html.Node) bool {
		if c.Type == html.TextNode {
			runes := []rune(c.Data)
			if remaining <= len(runes) {
				c.Data = string(runes[:remaining]) + s + string(runes[remaining:])
				return true
			}
			remaining -= len(runes)
			last = c
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			if walk(ch) {
				return true
			}
		}
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if walk(c) {
			return nil
		}
	}

	if last != nil {
		last.Data += s
		return nil
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key && a.Namespace == "" {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key && a.Namespace == "" {
			if val == "" {
				n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			} else {
				n.Attr[i].Val = val
			}
			return
		}
	}
	if val != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return sb.String()
}

type declaration struct {
	prop, value string
}

// styleDecls keeps declaration order so untouched properties survive edits.
type styleDecls []declaration

func parseStyle(s string) styleDecls {
	var out styleDecls
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		out = append(out, declaration{prop: prop, value: strings.TrimSpace(value)})
	}
	return out
}

func (s styleDecls) get(prop string) (string, bool) {
	for _, d := range s {
		if d.prop == prop {
			return d.value, true
		}
	}
	return "", false
}

func (s *styleDecls) set(prop, value string) {
	for i, d := range *s {
		if d.prop == prop {
			(*s)[i].value = value
			return
		}
	}
	*s = append(*s, declaration{prop: prop, value: value})
}

func (s *styleDecls) del(prop string) {
	out := (*s)[:0]
	for _, d := range *s {
		if d.prop != prop {
			out = append(out, d)
		}
	}
	*s = out
}

func (s styleDecls) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = d.prop + ": " + d.value
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// parseLength converts a CSS length to px (96dpi).
func parseLength(v string) (float64, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	units := []struct {
		suffix string
		factor float64
	}{
		{"px", 1},
		{"pt", 96.0 / 72.0},
		{"mm", 96.0 / 25.4},
		{"cm", 96.0 / 2.54},
		{"in", 96},
		{"em", 16},
	}
	for _, u := range units {
		if strings.HasSuffix(v, u.suffix) {
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(v, u.suffix)), 64)
			if err != nil {
				return 0, false
			}
			return f * u.factor, true
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func formatPx(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + "px"
}

// LengthPx converts a CSS length (px, pt, mm, cm, in, em) to px.
func LengthPx(v string) (float64, bool) { return parseLength(v) }

// ReadIndentStyle extracts margin-left and text-indent, in px, from an
// inline style attribute.
func ReadIndentStyle(style string) (indent float64, textIndent *float64) {
	styles := parseStyle(style)
	if v, ok := styles.get("margin-left"); ok {
		indent, _ = parseLength(v)
	}
	if v, ok := styles.get("text-indent"); ok {
		if px, ok := parseLength(v); ok {
			textIndent = &px
		}
	}
	return indent, textIndent
}

// IndentStyle builds the inline style written by importers for a block.
func IndentStyle(indent float64, textIndent *float64) string {
	var s styleDecls
	if indent > 0 {
		s.set("margin-left", formatPx(indent))
	}
	if textIndent != nil && *textIndent != 0 {
		s.set("text-indent", formatPx(*textIndent))
	}
	return s.String()
}

// SnapIndent rounds an imported indentation to the nearest step within
// [0, max].
func SnapIndent(px, step, max float64) float64 {
	if step <= 0 {
		step = DefaultIndentStep
	}
	v := math.Round(px/step) * step
	return math.Min(math.Max(v, 0), max)
}
