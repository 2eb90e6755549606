package models

import "time"

// GenerationLog records one successful document generation.
type GenerationLog struct {
	ID            string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	TemplateID    string       `gorm:"type:varchar(36);not null;index" json:"template_id"`
	TemplateName  string       `json:"template_name"`
	Kind          TemplateKind `gorm:"type:varchar(16);not null" json:"kind"`
	Format        string       `gorm:"type:varchar(10);not null" json:"format"`
	Filename      string       `json:"filename"`
	ProcessoID    string       `gorm:"type:varchar(36)" json:"processo_id,omitempty"`
	ClienteID     string       `gorm:"type:varchar(36)" json:"cliente_id,omitempty"`
	DossieID      string       `gorm:"type:varchar(36)" json:"dossie_id,omitempty"`
	FuncionarioID string       `gorm:"type:varchar(36)" json:"funcionario_id,omitempty"`
	Unresolved    []string     `gorm:"serializer:json;type:json" json:"unresolved"`
	Malformed     []string     `gorm:"serializer:json;type:json" json:"malformed"`
	DurationMs    int64        `gorm:"not null" json:"duration_ms"`
	CreatedAt     time.Time    `gorm:"index" json:"created_at"`
}

func (GenerationLog) TableName() string {
	return "generation_logs"
}
