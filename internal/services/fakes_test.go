package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/store"
)

type memTemplates struct {
	mu    sync.Mutex
	rows  map[string]models.Template
	usage map[string]int
	saves int
	// failUsage makes IncrementUsage fail with this error
	failUsage error
}

func newMemTemplates() *memTemplates {
	return &memTemplates{rows: map[string]models.Template{}, usage: map[string]int{}}
}

func (m *memTemplates) Create(ctx context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[t.ID] = *t
	return nil
}

func (m *memTemplates) Save(ctx context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.ID]; !ok {
		return apperrors.New(apperrors.KindNotFound, "template %s not found", t.ID)
	}
	m.rows[t.ID] = *t
	m.saves++
	return nil
}

func (m *memTemplates) Get(ctx context.Context, id string) (*models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "template %s not found", id)
	}
	return &t, nil
}

func (m *memTemplates) List(ctx context.Context, q store.TemplateQuery) ([]models.Template, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Template
	for _, t := range m.rows {
		if t.Trashed() == q.Trashed {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

func (m *memTemplates) Trash(ctx context.Context, id string) error {
	return m.setDeleted(id, gorm.DeletedAt{Time: time.Now(), Valid: true})
}

func (m *memTemplates) Restore(ctx context.Context, id string) error {
	return m.setDeleted(id, gorm.DeletedAt{})
}

func (m *memTemplates) setDeleted(id string, at gorm.DeletedAt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[id]
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "template %s not found", id)
	}
	t.DeletedAt = at
	m.rows[id] = t
	return nil
}

func (m *memTemplates) Purge(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memTemplates) IncrementUsage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsage != nil {
		return m.failUsage
	}
	m.usage[id]++
	return nil
}

func (m *memTemplates) uses(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[id]
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (b *memBlobs) Put(ctx context.Context, key, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "object %s not found", key)
	}
	return data, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type memLogs struct {
	mu   sync.Mutex
	logs []models.GenerationLog
}

func (l *memLogs) Create(ctx context.Context, log *models.GenerationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, *log)
	return nil
}

type memHeaders map[string]models.Cabecalho

func (h memHeaders) Get(ctx context.Context, id string) (*models.Cabecalho, error) {
	c, ok := h[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "cabecalho %s not found", id)
	}
	return &c, nil
}

// blockingPDF never finishes before the context does.
type blockingPDF struct{}

func (blockingPDF) HTMLToPDF(ctx context.Context, page string, landscape bool) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingPDF struct {
	page      string
	landscape bool
}

func (r *recordingPDF) HTMLToPDF(ctx context.Context, page string, landscape bool) ([]byte, error) {
	r.page, r.landscape = page, landscape
	return []byte("%PDF-1.7 fake"), nil
}

// failingPDF refuses any page containing marker.
type failingPDF struct{ marker string }

func (f failingPDF) HTMLToPDF(ctx context.Context, page string, landscape bool) ([]byte, error) {
	if strings.Contains(page, f.marker) {
		return nil, errors.New("chromium crashed")
	}
	return []byte("%PDF-1.7 fake"), nil
}

type memDirectory struct {
	clientes     map[string]*models.Cliente
	processos    map[string]*models.Processo
	dossies      map[string]*models.Dossie
	funcionarios map[string]*models.Funcionario
}

func (d *memDirectory) Cliente(ctx context.Context, id string) (*models.Cliente, error) {
	return lookup(d.clientes, "cliente", id)
}

func (d *memDirectory) Processo(ctx context.Context, id string) (*models.Processo, error) {
	return lookup(d.processos, "processo", id)
}

func (d *memDirectory) Dossie(ctx context.Context, id string) (*models.Dossie, error) {
	return lookup(d.dossies, "dossie", id)
}

func (d *memDirectory) Funcionario(ctx context.Context, id string) (*models.Funcionario, error) {
	return lookup(d.funcionarios, "funcionario", id)
}

func lookup[T any](m map[string]*T, what, id string) (*T, error) {
	if v, ok := m[id]; ok {
		return v, nil
	}
	return nil, apperrors.New(apperrors.KindNotFound, "%s %s not found", what, id)
}
