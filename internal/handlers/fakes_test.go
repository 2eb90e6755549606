package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"gorm.io/gorm"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/store"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memTemplates struct {
	mu    sync.Mutex
	rows  map[string]models.Template
	usage map[string]int
}

func newMemTemplates(tpls ...models.Template) *memTemplates {
	m := &memTemplates{rows: map[string]models.Template{}, usage: map[string]int{}}
	for _, t := range tpls {
		m.rows[t.ID] = t
	}
	return m
}

func (m *memTemplates) Create(ctx context.Context, t *models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[t.ID] = *t
	return nil
}

func (m *memTemplates) Save(ctx context.Context, t *models.Template) error {
	return m.Create(ctx, t)
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
	out := []models.Template{}
	for _, t := range m.rows {
		if t.Trashed() == q.Trashed {
			out = append(out, t)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memTemplates) Trash(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.rows[id]
	t.DeletedAt = gorm.DeletedAt{Valid: true}
	m.rows[id] = t
	return nil
}

func (m *memTemplates) Restore(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.rows[id]
	t.DeletedAt = gorm.DeletedAt{}
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
	m.usage[id]++
	return nil
}

func (m *memTemplates) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *memBlobs) Put(ctx context.Context, key, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[key] = data
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

type memLogs struct {
	mu    sync.Mutex
	logs  []models.GenerationLog
	query store.GenerationQuery
}

func (l *memLogs) Create(ctx context.Context, log *models.GenerationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, *log)
	return nil
}

func (l *memLogs) List(ctx context.Context, q store.GenerationQuery) ([]models.GenerationLog, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = q
	return l.logs, int64(len(l.logs)), nil
}

type memCabecalhos struct {
	rows map[string]models.Cabecalho
}

func (m *memCabecalhos) Create(ctx context.Context, c *models.Cabecalho) error {
	if m.rows == nil {
		m.rows = map[string]models.Cabecalho{}
	}
	m.rows[c.ID] = *c
	return nil
}

func (m *memCabecalhos) Save(ctx context.Context, c *models.Cabecalho) error {
	return m.Create(ctx, c)
}

func (m *memCabecalhos) Get(ctx context.Context, id string) (*models.Cabecalho, error) {
	c, ok := m.rows[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "cabecalho %s not found", id)
	}
	return &c, nil
}

func (m *memCabecalhos) List(ctx context.Context) ([]models.Cabecalho, error) {
	out := []models.Cabecalho{}
	for _, c := range m.rows {
		out = append(out, c)
	}
	return out, nil
}

func (m *memCabecalhos) Delete(ctx context.Context, id string) error {
	if _, ok := m.rows[id]; !ok {
		return apperrors.New(apperrors.KindNotFound, "cabecalho %s not found", id)
	}
	delete(m.rows, id)
	return nil
}

type memDirectory struct {
	processos map[string]*models.Processo
	clientes  map[string]*models.Cliente
}

func (d *memDirectory) Cliente(ctx context.Context, id string) (*models.Cliente, error) {
	if c, ok := d.clientes[id]; ok {
		return c, nil
	}
	return nil, apperrors.New(apperrors.KindNotFound, "cliente %s not found", id)
}

func (d *memDirectory) Processo(ctx context.Context, id string) (*models.Processo, error) {
	if p, ok := d.processos[id]; ok {
		return p, nil
	}
	return nil, apperrors.New(apperrors.KindNotFound, "processo %s not found", id)
}

func (d *memDirectory) Dossie(ctx context.Context, id string) (*models.Dossie, error) {
	return nil, apperrors.New(apperrors.KindNotFound, "dossie %s not found", id)
}

func (d *memDirectory) Funcionario(ctx context.Context, id string) (*models.Funcionario, error) {
	return nil, apperrors.New(apperrors.KindNotFound, "funcionario %s not found", id)
}
