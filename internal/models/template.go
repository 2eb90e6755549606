package models

import (
	"time"

	"gorm.io/gorm"

	"DF-TPLGEN/internal/overlay"
)

type TemplateKind string

const (
	KindFlow    TemplateKind = "flow"
	KindOverlay TemplateKind = "overlay"
)

func (k TemplateKind) Valid() bool {
	return k == KindFlow || k == KindOverlay
}

// Template is either a flow template (an HTML body with placeholders) or an
// overlay template (a fixed PDF with positioned fields). Only the columns of
// its own kind are populated. A set DeletedAt means the template is in the
// trash.
type Template struct {
	ID          string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string       `gorm:"not null" json:"name"`
	Description string       `json:"description"`
	Category    string       `gorm:"type:varchar(100);index" json:"category"`
	Kind        TemplateKind `gorm:"type:varchar(16);not null" json:"kind"`
	UsageCount  int64        `gorm:"column:uso_count;not null;default:0" json:"usage_count"`

	// flow
	ConteudoHTML string   `gorm:"column:conteudo_html;type:longtext" json:"conteudo_html,omitempty"`
	Variaveis    []string `gorm:"serializer:json;type:json" json:"variaveis,omitempty"`
	CabecalhoID  *string  `gorm:"type:varchar(36)" json:"cabecalho_id,omitempty"`
	Landscape    bool     `json:"landscape,omitempty"`

	// overlay
	PDFPath         string               `gorm:"column:pdf_path" json:"pdf_path,omitempty"`
	Pages           []overlay.PageMetric `gorm:"serializer:json;type:json" json:"pages,omitempty"`
	Fields          []overlay.Field      `gorm:"serializer:json;type:json" json:"fields,omitempty"`
	DefaultFontSize float64              `json:"default_font_size,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Template) TableName() string {
	return "document_templates"
}

func (t *Template) Trashed() bool {
	return t.DeletedAt.Valid
}

// Cabecalho is a reusable header block rendered above a flow body.
type Cabecalho struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	ConteudoHTML string    `gorm:"column:conteudo_html;type:longtext" json:"conteudo_html"`
	Variaveis    []string  `gorm:"serializer:json;type:json" json:"variaveis"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Cabecalho) TableName() string {
	return "cabecalhos"
}
