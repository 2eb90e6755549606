package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/flow"
	"DF-TPLGEN/internal/importer"
	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/overlay"
	"DF-TPLGEN/internal/storage"
	"DF-TPLGEN/internal/store"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *models.Template) error
	Save(ctx context.Context, t *models.Template) error
	Get(ctx context.Context, id string) (*models.Template, error)
	List(ctx context.Context, q store.TemplateQuery) ([]models.Template, int64, error)
	Trash(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
}

// TemplateService owns the template lifecycle: Active, Trashed, then either
// Active again or gone. Trashed templates cannot be edited or used.
type TemplateService struct {
	repo   TemplateRepository
	blobs  storage.BlobStore
	logger *slog.Logger
}

func NewTemplateService(repo TemplateRepository, blobs storage.BlobStore, logger *slog.Logger) *TemplateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateService{repo: repo, blobs: blobs, logger: logger}
}

type TemplateMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type FlowInput struct {
	TemplateMeta
	ConteudoHTML string  `json:"conteudo_html"`
	CabecalhoID  *string `json:"cabecalho_id"`
	Landscape    bool    `json:"landscape"`
}

// FlowPatch changes only the fields that are set.
type FlowPatch struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Category     *string `json:"category"`
	ConteudoHTML *string `json:"conteudo_html"`
	CabecalhoID  *string `json:"cabecalho_id"`
	Landscape    *bool   `json:"landscape"`
}

type OverlayInput struct {
	TemplateMeta
	DefaultFontSize float64 `json:"default_font_size"`
}

func (s *TemplateService) CreateFlow(ctx context.Context, in FlowInput) (*models.Template, error) {
	meta, err := cleanMeta(in.TemplateMeta)
	if err != nil {
		return nil, err
	}
	body := importer.Sanitize(in.ConteudoHTML)
	t := &models.Template{
		ID:           uuid.New().String(),
		Name:         meta.Name,
		Description:  meta.Description,
		Category:     meta.Category,
		Kind:         models.KindFlow,
		ConteudoHTML: body,
		Variaveis:    flow.ExtractVariables(body),
		CabecalhoID:  emptyToNil(in.CabecalhoID),
		Landscape:    in.Landscape,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateFlowFromImport stores an imported document as a new flow template.
func (s *TemplateService) CreateFlowFromImport(ctx context.Context, meta TemplateMeta, imp *importer.FlowResult) (*models.Template, error) {
	return s.CreateFlow(ctx, FlowInput{TemplateMeta: meta, ConteudoHTML: imp.HTML, Landscape: imp.Landscape})
}

func (s *TemplateService) UpdateFlow(ctx context.Context, id string, patch FlowPatch) (*models.Template, error) {
	t, err := s.editable(ctx, id, models.KindFlow)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.New(apperrors.KindInvalidInput, "name is required")
		}
		t.Name = name
	}
	if patch.Description != nil {
		t.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Category != nil {
		t.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.ConteudoHTML != nil {
		setBody(t, importer.Sanitize(*patch.ConteudoHTML))
	}
	if patch.CabecalhoID != nil {
		t.CabecalhoID = emptyToNil(patch.CabecalhoID)
	}
	if patch.Landscape != nil {
		t.Landscape = *patch.Landscape
	}

	if err := s.repo.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ApplyCommands runs editor commands against the stored body. The template is
// only written when a command changed something.
func (s *TemplateService) ApplyCommands(ctx context.Context, id string, cmds []flow.Command) (*models.Template, bool, error) {
	t, err := s.editable(ctx, id, models.KindFlow)
	if err != nil {
		return nil, false, err
	}

	doc, err := flow.Parse(t.ConteudoHTML)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse body of template %s: %w", id, err)
	}

	dirty := false
	editor := flow.NewEditor(doc, func(*flow.Document) { dirty = true })
	for i, cmd := range cmds {
		if _, err := editor.Apply(cmd); err != nil {
			return nil, false, apperrors.Wrap(apperrors.KindInvalidInput, err, "command %d rejected", i+1)
		}
	}
	if !dirty {
		return t, false, nil
	}

	body, err := doc.HTML()
	if err != nil {
		return nil, false, fmt.Errorf("failed to serialise body of template %s: %w", id, err)
	}
	setBody(t, body)
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (s *TemplateService) CreateOverlay(ctx context.Context, in OverlayInput, imp *importer.OverlayResult) (*models.Template, error) {
	meta, err := cleanMeta(in.TemplateMeta)
	if err != nil {
		return nil, err
	}
	if in.DefaultFontSize < 0 {
		return nil, apperrors.New(apperrors.KindInvalidInput, "default font size must not be negative")
	}

	t := &models.Template{
		ID:              uuid.New().String(),
		Name:            meta.Name,
		Description:     meta.Description,
		Category:        meta.Category,
		Kind:            models.KindOverlay,
		Pages:           imp.Pages,
		Fields:          []overlay.Field{},
		DefaultFontSize: in.DefaultFontSize,
	}
	t.PDFPath = storage.TemplatePDFKey(t.ID, uuid.New().String())
	if err := s.blobs.Put(ctx, t.PDFPath, "application/pdf", imp.PDF); err != nil {
		return nil, fmt.Errorf("failed to store pdf: %w", err)
	}

	if err := s.repo.Create(ctx, t); err != nil {
		s.removeBlob(t.PDFPath)
		return nil, err
	}
	return t, nil
}

// UpdateOverlayFields replaces the whole field list. Fields without an id get
// one. The last writer wins.
func (s *TemplateService) UpdateOverlayFields(ctx context.Context, id string, fields []overlay.Field, defaultFontSize *float64) (*models.Template, error) {
	t, err := s.editable(ctx, id, models.KindOverlay)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fields))
	for i := range fields {
		f := &fields[i]
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		if seen[f.ID] {
			return nil, apperrors.New(apperrors.KindInvalidInput, "duplicate field id %q", f.ID)
		}
		seen[f.ID] = true
		if !flow.ValidPath(f.VariablePath) {
			return nil, apperrors.New(apperrors.KindInvalidInput, "field %q has invalid variable path %q", f.ID, f.VariablePath)
		}
	}
	if err := overlay.Validate(t.Pages, fields); err != nil {
		return nil, err
	}
	if defaultFontSize != nil {
		if *defaultFontSize < 0 {
			return nil, apperrors.New(apperrors.KindInvalidInput, "default font size must not be negative")
		}
		t.DefaultFontSize = *defaultFontSize
	}

	t.Fields = fields
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ReplaceOverlayPDF swaps the source PDF. Existing fields must still fit the
// new pages; otherwise nothing changes.
func (s *TemplateService) ReplaceOverlayPDF(ctx context.Context, id string, imp *importer.OverlayResult) (*models.Template, error) {
	t, err := s.editable(ctx, id, models.KindOverlay)
	if err != nil {
		return nil, err
	}
	if err := overlay.Validate(imp.Pages, t.Fields); err != nil {
		return nil, err
	}

	oldPath := t.PDFPath
	newPath := storage.TemplatePDFKey(t.ID, uuid.New().String())
	if err := s.blobs.Put(ctx, newPath, "application/pdf", imp.PDF); err != nil {
		return nil, fmt.Errorf("failed to store pdf: %w", err)
	}

	t.PDFPath = newPath
	t.Pages = imp.Pages
	if err := s.repo.Save(ctx, t); err != nil {
		s.removeBlob(newPath)
		return nil, err
	}
	if oldPath != "" {
		s.removeBlob(oldPath)
	}
	return t, nil
}

func (s *TemplateService) Get(ctx context.Context, id string) (*models.Template, error) {
	return s.repo.Get(ctx, id)
}

func (s *TemplateService) List(ctx context.Context, q store.TemplateQuery) ([]models.Template, int64, error) {
	return s.repo.List(ctx, q)
}

// Use loads a template for generation.
func (s *TemplateService) Use(ctx context.Context, id string) (*models.Template, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Trashed() {
		return nil, apperrors.New(apperrors.KindTemplateTrashed, "template %s is in the trash", id)
	}
	return t, nil
}

func (s *TemplateService) Trash(ctx context.Context, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Trashed() {
		return apperrors.New(apperrors.KindTemplateTrashed, "template %s is already in the trash", id)
	}
	return s.repo.Trash(ctx, id)
}

func (s *TemplateService) Restore(ctx context.Context, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.Trashed() {
		return apperrors.New(apperrors.KindTemplateNotTrashed, "template %s is not in the trash", id)
	}
	return s.repo.Restore(ctx, id)
}

// DeletePermanently removes a trashed template and its source PDF.
func (s *TemplateService) DeletePermanently(ctx context.Context, id string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.Trashed() {
		return apperrors.New(apperrors.KindTemplateNotTrashed, "template %s must be trashed before it is deleted", id)
	}
	if err := s.repo.Purge(ctx, id); err != nil {
		return err
	}
	if t.PDFPath != "" {
		s.removeBlob(t.PDFPath)
	}
	return nil
}

func (s *TemplateService) editable(ctx context.Context, id string, kind models.TemplateKind) (*models.Template, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Trashed() {
		return nil, apperrors.New(apperrors.KindTemplateTrashed, "template %s is in the trash", id)
	}
	if t.Kind != kind {
		return nil, apperrors.New(apperrors.KindInvalidInput, "template %s is a %s template", id, t.Kind)
	}
	return t, nil
}

// removeBlob does not fail the caller; an orphaned object is only logged.
func (s *TemplateService) removeBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), blobCleanupTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete template pdf", "key", key, "error", err)
	}
}

func setBody(t *models.Template, body string) {
	t.ConteudoHTML = body
	t.Variaveis = flow.ExtractVariables(body)
}

func cleanMeta(m TemplateMeta) (TemplateMeta, error) {
	m.Name = strings.TrimSpace(m.Name)
	m.Description = strings.TrimSpace(m.Description)
	m.Category = strings.TrimSpace(m.Category)
	if m.Name == "" {
		return m, apperrors.New(apperrors.KindInvalidInput, "name is required")
	}
	return m, nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
