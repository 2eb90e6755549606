// Package store persists templates, header blocks and generation history in
// MySQL through gorm, and reads the business records templates render.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/models"
)

const (
	mysqlDeadlock        = 1213
	mysqlLockWaitTimeout = 1205

	defaultListLimit = 50
	maxListLimit     = 200
)

type Templates struct {
	db      *gorm.DB
	backoff func() retry.Backoff
}

func NewTemplates(db *gorm.DB) *Templates {
	return &Templates{db: db, backoff: conflictBackoff}
}

func conflictBackoff() retry.Backoff {
	b := retry.NewExponential(10 * time.Millisecond)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(250*time.Millisecond, b)
	return retry.WithMaxRetries(5, b)
}

type TemplateQuery struct {
	Trashed  bool
	Kind     models.TemplateKind
	Category string
	Search   string
	Limit    int
	Offset   int
}

func (s *Templates) Create(ctx context.Context, t *models.Template) error {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// editableColumns are the columns Save writes. The usage counter and the
// trash marker have their own atomic updates and are never written back from
// a row read earlier.
var editableColumns = []string{
	"name", "description", "category",
	"conteudo_html", "variaveis", "cabecalho_id", "landscape",
	"pdf_path", "pages", "fields", "default_font_size",
	"updated_at",
}

// Save writes the editable columns of t, including trashed templates.
func (s *Templates) Save(ctx context.Context, t *models.Template) error {
	if err := saveQuery(s.db.WithContext(ctx), t).Error; err != nil {
		return fmt.Errorf("failed to save template %s: %w", t.ID, err)
	}
	return nil
}

func saveQuery(db *gorm.DB, t *models.Template) *gorm.DB {
	return db.Unscoped().Model(t).Select(editableColumns).Updates(t)
}

// Get returns a template whether or not it is trashed.
func (s *Templates) Get(ctx context.Context, id string) (*models.Template, error) {
	var t models.Template
	err := s.db.WithContext(ctx).Unscoped().Where("id = ?", id).Take(&t).Error
	if err != nil {
		return nil, notFound(err, "template %s", id)
	}
	return &t, nil
}

func (s *Templates) List(ctx context.Context, q TemplateQuery) ([]models.Template, int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.Template{})
	if q.Trashed {
		tx = tx.Unscoped().Where("deleted_at IS NOT NULL")
	}
	if q.Kind != "" {
		tx = tx.Where("kind = ?", q.Kind)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.Search != "" {
		like := "%" + escapeLike(q.Search) + "%"
		tx = tx.Where("(name LIKE ? OR description LIKE ?)", like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}

	var templates []models.Template
	err := tx.Order("updated_at DESC").
		Limit(clampLimit(q.Limit)).
		Offset(max(q.Offset, 0)).
		Find(&templates).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, total, nil
}

func (s *Templates) Trash(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Template{})
	if res.Error != nil {
		return fmt.Errorf("failed to trash template %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "template %s not found", id)
	}
	return nil
}

func (s *Templates) Restore(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Unscoped().Model(&models.Template{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Update("deleted_at", nil)
	if res.Error != nil {
		return fmt.Errorf("failed to restore template %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "trashed template %s not found", id)
	}
	return nil
}

// Purge removes the row for good.
func (s *Templates) Purge(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.Template{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete template %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "template %s not found", id)
	}
	return nil
}

// IncrementUsage adds one to the template's usage count. The row is locked
// for the duration of the update; deadlocks and lock wait timeouts are retried
// and only surface once the retries run out.
func (s *Templates) IncrementUsage(ctx context.Context, id string) error {
	return withConflictRetry(ctx, s.backoff(), func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var row struct{ ID string }
			err := tx.Model(&models.Template{}).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("id").
				Where("id = ?", id).
				Take(&row).Error
			if err != nil {
				return notFound(err, "template %s", id)
			}
			return tx.Model(&models.Template{}).
				Where("id = ?", id).
				UpdateColumn("uso_count", gorm.Expr("uso_count + ?", 1)).Error
		})
	})
}

func withConflictRetry(ctx context.Context, backoff retry.Backoff, fn func(context.Context) error) error {
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if isLockConflict(err) {
			return retry.RetryableError(apperrors.Wrap(apperrors.KindConcurrentUsageCountConflict, err, "usage count update conflicted"))
		}
		return err
	})
}

func isLockConflict(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.KindNotFound, err, format+" not found", args...)
	}
	return fmt.Errorf("failed to load %s: %w", fmt.Sprintf(format, args...), err)
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
