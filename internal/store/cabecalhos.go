package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/models"
)

type Cabecalhos struct {
	db *gorm.DB
}

func NewCabecalhos(db *gorm.DB) *Cabecalhos {
	return &Cabecalhos{db: db}
}

func (s *Cabecalhos) Create(ctx context.Context, c *models.Cabecalho) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create cabecalho: %w", err)
	}
	return nil
}

func (s *Cabecalhos) Save(ctx context.Context, c *models.Cabecalho) error {
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("failed to save cabecalho %s: %w", c.ID, err)
	}
	return nil
}

func (s *Cabecalhos) Get(ctx context.Context, id string) (*models.Cabecalho, error) {
	var c models.Cabecalho
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, notFound(err, "cabecalho %s", id)
	}
	return &c, nil
}

func (s *Cabecalhos) List(ctx context.Context) ([]models.Cabecalho, error) {
	var out []models.Cabecalho
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list cabecalhos: %w", err)
	}
	return out, nil
}

// Delete removes the header and detaches it from every template using it.
func (s *Cabecalhos) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Cabecalho{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete cabecalho %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.KindNotFound, "cabecalho %s not found", id)
		}
		err := tx.Unscoped().Model(&models.Template{}).
			Where("cabecalho_id = ?", id).
			UpdateColumn("cabecalho_id", nil).Error
		if err != nil {
			return fmt.Errorf("failed to detach cabecalho %s: %w", id, err)
		}
		return nil
	})
}
