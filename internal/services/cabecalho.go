package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/flow"
	"DF-TPLGEN/internal/importer"
	"DF-TPLGEN/internal/models"
)

type CabecalhoRepository interface {
	Create(ctx context.Context, c *models.Cabecalho) error
	Save(ctx context.Context, c *models.Cabecalho) error
	Get(ctx context.Context, id string) (*models.Cabecalho, error)
	List(ctx context.Context) ([]models.Cabecalho, error)
	Delete(ctx context.Context, id string) error
}

type CabecalhoInput struct {
	Name         string `json:"name"`
	ConteudoHTML string `json:"conteudo_html"`
}

// CabecalhoService manages header blocks shared by flow templates.
type CabecalhoService struct {
	repo CabecalhoRepository
}

func NewCabecalhoService(repo CabecalhoRepository) *CabecalhoService {
	return &CabecalhoService{repo: repo}
}

func (s *CabecalhoService) Create(ctx context.Context, in CabecalhoInput) (*models.Cabecalho, error) {
	c := &models.Cabecalho{ID: uuid.New().String()}
	if err := fillCabecalho(c, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CabecalhoService) Update(ctx context.Context, id string, in CabecalhoInput) (*models.Cabecalho, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fillCabecalho(c, in); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CabecalhoService) Get(ctx context.Context, id string) (*models.Cabecalho, error) {
	return s.repo.Get(ctx, id)
}

func (s *CabecalhoService) List(ctx context.Context) ([]models.Cabecalho, error) {
	return s.repo.List(ctx)
}

func (s *CabecalhoService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func fillCabecalho(c *models.Cabecalho, in CabecalhoInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperrors.New(apperrors.KindInvalidInput, "name is required")
	}
	body := importer.Sanitize(in.ConteudoHTML)
	if !flow.HasContent(body) {
		return apperrors.New(apperrors.KindTemplateEmptyContent, "header %q has no content", name)
	}
	c.Name = name
	c.ConteudoHTML = body
	c.Variaveis = flow.ExtractVariables(body)
	return nil
}
