// Package flow implements flowing HTML templates: placeholder scanning and
// substitution, the block model used for indentation and the editor commands
// that mutate a template body.
package flow

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"DF-TPLGEN/internal/resolver"
)

var (
	tokenPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_.]+)\}\}`)
	pathPattern  = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
)

const malformedSnippetLimit = 48

// Result is the rendered body plus the non-fatal findings of the run.
type Result struct {
	HTML       string   `json:"html"`
	Unresolved []string `json:"unresolved"`
	Malformed  []string `json:"malformed_tokens"`
}

// ValidPath reports whether p may appear inside a {{...}} token.
func ValidPath(p string) bool { return pathPattern.MatchString(p) }

func Token(path string) string { return "{{" + path + "}}" }

// ExtractVariables lists distinct token paths in order of first appearance.
// Tokens wrapped in extra braces are not variables.
func ExtractVariables(body string) []string {
	seen := make(map[string]bool)
	paths := []string{}
	for _, m := range scanTokens(body) {
		if m.malformed {
			continue
		}
		if path := body[m.path[0]:m.path[1]]; !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths
}

type tokenSpan struct {
	start, end int
	path       [2]int
	malformed  bool
}

// scanTokens finds the {{path}} tokens of body. A token directly preceded by
// "{" or followed by "}" is malformed and its span covers the whole brace run.
func scanTokens(body string) []tokenSpan {
	matches := tokenPattern.FindAllStringSubmatchIndex(body, -1)
	spans := make([]tokenSpan, 0, len(matches))
	for _, m := range matches {
		sp := tokenSpan{start: m[0], end: m[1], path: [2]int{m[2], m[3]}}
		for sp.start > 0 && body[sp.start-1] == '{' {
			sp.start--
			sp.malformed = true
		}
		for sp.end < len(body) && body[sp.end] == '}' {
			sp.end++
			sp.malformed = true
		}
		spans = append(spans, sp)
	}
	return spans
}

// Render substitutes every token with the escaped resolved text. Each distinct
// path is resolved once. Malformed brace sequences stay in the output verbatim
// and are reported.
func Render(body string, resolve func(string) resolver.Value) Result {
	res := Result{Unresolved: []string{}, Malformed: []string{}}

	spans := scanTokens(body)
	values := make(map[string]resolver.Value)
	for _, sp := range spans {
		if sp.malformed {
			continue
		}
		path := body[sp.path[0]:sp.path[1]]
		if _, done := values[path]; done {
			continue
		}
		v := resolve(path)
		values[path] = v
		if !v.Resolved {
			res.Unresolved = append(res.Unresolved, path)
		}
	}

	var out strings.Builder
	out.Grow(len(body))
	malformed := make(map[string]bool)
	last := 0
	for _, sp := range spans {
		segment := body[last:sp.start]
		collectMalformed(segment, malformed, &res.Malformed)
		out.WriteString(segment)
		if sp.malformed {
			report(truncate(body[sp.start:sp.end]), malformed, &res.Malformed)
			out.WriteString(body[sp.start:sp.end])
		} else {
			out.WriteString(html.EscapeString(values[body[sp.path[0]:sp.path[1]]].Text))
		}
		last = sp.end
	}
	tail := body[last:]
	collectMalformed(tail, malformed, &res.Malformed)
	out.WriteString(tail)

	res.HTML = out.String()
	return res
}

// collectMalformed reports the "{{" openings and "}}" closings left in a
// segment that contains no valid token.
func collectMalformed(segment string, seen map[string]bool, into *[]string) {
	for i := 0; i < len(segment); {
		rest := segment[i:]
		switch {
		case strings.HasPrefix(rest, "{{"):
			if end := strings.Index(rest[2:], "}}"); end >= 0 && end+4 <= malformedSnippetLimit {
				n := end + 4
				for n < len(rest) && rest[n] == '}' {
					n++
				}
				report(rest[:n], seen, into)
				i += n
				continue
			}
			report(truncate(rest), seen, into)
			// skip every brace of the run so "{{{" is reported once
			j := 2
			for j < len(rest) && rest[j] == '{' {
				j++
			}
			i += j
		case strings.HasPrefix(rest, "}}"):
			// take the path-like text and a lone "{" before the closing run
			from := i
			for from > 0 && isPathByte(segment[from-1]) && i-from < malformedSnippetLimit {
				from--
			}
			if from > 0 && segment[from-1] == '{' {
				from--
			}
			j := 2
			for j < len(rest) && rest[j] == '}' {
				j++
			}
			report(segment[from:i+j], seen, into)
			i += j
		default:
			i++
		}
	}
}

func isPathByte(b byte) bool {
	return b == '_' || b == '.' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func truncate(snippet string) string {
	if len(snippet) <= malformedSnippetLimit {
		return snippet
	}
	cut := malformedSnippetLimit
	for cut > 0 && !utf8.RuneStart(snippet[cut]) {
		cut--
	}
	return snippet[:cut]
}

func report(snippet string, seen map[string]bool, into *[]string) {
	if !seen[snippet] {
		seen[snippet] = true
		*into = append(*into, snippet)
	}
}

// RenderWithHeader renders a header block and a body against the same
// resolver and concatenates them, merging the reports.
func RenderWithHeader(header, body string, resolve func(string) resolver.Value) Result {
	if strings.TrimSpace(header) == "" {
		return Render(body, resolve)
	}

	cache := make(map[string]resolver.Value)
	memo := func(path string) resolver.Value {
		if v, ok := cache[path]; ok {
			return v
		}
		v := resolve(path)
		cache[path] = v
		return v
	}

	h := Render(header, memo)
	b := Render(body, memo)
	return Result{
		HTML:       h.HTML + b.HTML,
		Unresolved: mergeUnique(h.Unresolved, b.Unresolved),
		Malformed:  mergeUnique(h.Malformed, b.Malformed),
	}
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := []string{}
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// HasContent reports whether a body renders to anything visible: text or an
// embedded image.
func HasContent(body string) bool {
	if strings.Contains(strings.ToLower(body), "<img") {
		return true
	}
	var text strings.Builder
	inTag := false
	for _, r := range body {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			text.WriteRune(r)
		}
	}
	plain := strings.ReplaceAll(html.UnescapeString(text.String()), "\u00a0", " ")
	return strings.TrimSpace(plain) != ""
}
