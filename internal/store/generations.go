package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"DF-TPLGEN/internal/models"
)

type Generations struct {
	db *gorm.DB
}

func NewGenerations(db *gorm.DB) *Generations {
	return &Generations{db: db}
}

type GenerationQuery struct {
	TemplateID string
	ProcessoID string
	Limit      int
	Offset     int
}

func (s *Generations) Create(ctx context.Context, log *models.GenerationLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to record generation: %w", err)
	}
	return nil
}

func (s *Generations) List(ctx context.Context, q GenerationQuery) ([]models.GenerationLog, int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.GenerationLog{})
	if q.TemplateID != "" {
		tx = tx.Where("template_id = ?", q.TemplateID)
	}
	if q.ProcessoID != "" {
		tx = tx.Where("processo_id = ?", q.ProcessoID)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count generation logs: %w", err)
	}

	var logs []models.GenerationLog
	err := tx.Order("created_at DESC").
		Limit(clampLimit(q.Limit)).
		Offset(max(q.Offset, 0)).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list generation logs: %w", err)
	}
	return logs, total, nil
}
