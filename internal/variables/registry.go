// Package variables holds the catalog of placeholder groups and fields that
// templates may reference. The catalog is loaded once and never mutated.
package variables

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Kind is the declared type of a field; it drives formatting in the resolver.
type Kind string

const (
	KindText   Kind = "text"
	KindDate   Kind = "date"
	KindNumber Kind = "number"
)

type Field struct {
	Group string `json:"group"`
	Field string `json:"field"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
}

func (f Field) Path() string { return f.Group + "." + f.Field }

type Group struct {
	Label  string  `json:"label"`
	Prefix string  `json:"prefix"`
	Fields []Field `json:"fields"`
}

// Registry is safe for concurrent use because nothing writes to it after Load.
type Registry struct {
	groups []Group
	byPath map[string]Field
}

type catalogGroup struct {
	Grupo   string         `yaml:"grupo"`
	Prefixo string         `yaml:"prefixo"`
	Campos  []catalogField `yaml:"campos"`
}

type catalogField struct {
	Campo string `yaml:"campo"`
	Label string `yaml:"label"`
	Tipo  string `yaml:"tipo"`
}

// Load parses a catalog document. JSON input is accepted as well since it is
// valid YAML.
func Load(data []byte) (*Registry, error) {
	var raw []catalogGroup
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse variable catalog: %w", err)
	}

	reg := &Registry{byPath: make(map[string]Field)}
	for _, g := range raw {
		prefix := strings.TrimSpace(g.Prefixo)
		if prefix == "" || strings.Contains(prefix, ".") {
			return nil, fmt.Errorf("invalid group prefix %q", g.Prefixo)
		}

		group := Group{Label: g.Grupo, Prefix: prefix}
		for _, c := range g.Campos {
			kind, err := parseKind(c.Tipo)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", prefix, c.Campo, err)
			}
			name := strings.TrimSpace(c.Campo)
			if name == "" {
				return nil, fmt.Errorf("group %s has a field without name", prefix)
			}

			field := Field{Group: prefix, Field: name, Label: c.Label, Kind: kind}
			if _, dup := reg.byPath[field.Path()]; dup {
				return nil, fmt.Errorf("duplicate variable %s", field.Path())
			}
			reg.byPath[field.Path()] = field
			group.Fields = append(group.Fields, field)
		}
		reg.groups = append(reg.groups, group)
	}

	return reg, nil
}

// Default returns the registry built from the embedded catalog.
func Default() (*Registry, error) {
	return Load(defaultCatalog)
}

// MustDefault panics on a broken embedded catalog; only useful in main and tests.
func MustDefault() *Registry {
	reg, err := Default()
	if err != nil {
		panic(err)
	}
	return reg
}

func parseKind(tipo string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(tipo))) {
	case KindText, "":
		return KindText, nil
	case KindDate:
		return KindDate, nil
	case KindNumber:
		return KindNumber, nil
	}
	return "", fmt.Errorf("unknown variable type %q", tipo)
}

// ListGroups returns a copy of the catalog in declaration order.
func (r *Registry) ListGroups() []Group {
	out := make([]Group, len(r.groups))
	for i, g := range r.groups {
		out[i] = Group{Label: g.Label, Prefix: g.Prefix, Fields: append([]Field(nil), g.Fields...)}
	}
	return out
}

func (r *Registry) FindField(path string) (Field, bool) {
	f, ok := r.byPath[path]
	return f, ok
}
