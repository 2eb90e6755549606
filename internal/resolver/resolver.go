// Package resolver turns a placeholder path plus a generation context into the
// formatted text that replaces it.
package resolver

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"DF-TPLGEN/internal/variables"
)

// Lookup is the part of the variable registry the resolver needs.
type Lookup interface {
	FindField(path string) (variables.Field, bool)
}

type Reason string

const (
	ReasonUnknownPath  Reason = "unknown_path"
	ReasonGroupAbsent  Reason = "group_absent"
	ReasonMissingValue Reason = "missing_value"
	ReasonInvalidValue Reason = "invalid_value"
)

// Value is the outcome of resolving one path. Unresolved values always carry
// an empty Text so callers can substitute them without further checks.
type Value struct {
	Path     string `json:"path"`
	Text     string `json:"text"`
	Resolved bool   `json:"resolved"`
	Reason   Reason `json:"reason,omitempty"`
}

const DateLayout = "02/01/2006"

type Resolver struct {
	lookup   Lookup
	location *time.Location
	lang     language.Tag
}

type Option func(*Resolver)

// WithLocation sets the zone used for dates and sistema.* fields.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithLanguage sets the locale used to format numbers.
func WithLanguage(tag language.Tag) Option {
	return func(r *Resolver) { r.lang = tag }
}

func New(lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:   lookup,
		location: time.UTC,
		lang:     language.MustParse("pt-PT"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: every problem is reported through Value.Reason.
func (r *Resolver) Resolve(path string, ctx Context) Value {
	field, ok := r.lookup.FindField(path)
	if !ok {
		return unresolved(path, ReasonUnknownPath)
	}

	if field.Group == GroupSistema {
		return r.resolveSistema(field, ctx.Now)
	}

	rec, ok := ctx.record(field.Group)
	if !ok {
		return unresolved(path, ReasonGroupAbsent)
	}
	raw, ok := rec[field.Field]
	if !ok || isNil(raw) {
		return unresolved(path, ReasonMissingValue)
	}

	text, ok := r.format(field.Kind, raw)
	if !ok {
		return unresolved(path, ReasonInvalidValue)
	}
	return Value{Path: path, Text: text, Resolved: true}
}

// Func binds a context so renderers can resolve by path only.
func (r *Resolver) Func(ctx Context) func(string) Value {
	return func(path string) Value { return r.Resolve(path, ctx) }
}

func unresolved(path string, reason Reason) Value {
	return Value{Path: path, Reason: reason}
}

// isNil treats an explicit nil, typed or not, like an absent key.
func isNil(raw any) bool {
	if raw == nil {
		return true
	}
	v := reflect.ValueOf(raw)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (r *Resolver) format(kind variables.Kind, raw any) (string, bool) {
	switch kind {
	case variables.KindDate:
		return r.formatDate(raw)
	case variables.KindNumber:
		return r.formatNumber(raw)
	default:
		return formatText(raw), true
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	DateLayout,
}

func (r *Resolver) formatDate(raw any) (string, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return "", true
		}
		return v.In(r.location).Format(DateLayout), true
	case *time.Time:
		if v.IsZero() {
			return "", true
		}
		return v.In(r.location).Format(DateLayout), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", true
		}
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, r.location); err == nil {
				return t.In(r.location).Format(DateLayout), true
			}
		}
	}
	return "", false
}

func (r *Resolver) formatNumber(raw any) (string, bool) {
	f, ok := toFloat(raw)
	if !ok {
		return "", false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}

	p := message.NewPrinter(r.lang)
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return p.Sprintf("%d", int64(f)), true
	}
	return p.Sprintf("%.2f", f), true
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case []byte:
		return toFloat(string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func formatText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		if v {
			return "Sim"
		}
		return "Não"
	case time.Time:
		return v.Format(DateLayout)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(raw)
}
