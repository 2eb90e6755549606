package services

import (
	"context"
	"time"

	"DF-TPLGEN/internal/models"
	"DF-TPLGEN/internal/resolver"
)

type Directory interface {
	Cliente(ctx context.Context, id string) (*models.Cliente, error)
	Processo(ctx context.Context, id string) (*models.Processo, error)
	Dossie(ctx context.Context, id string) (*models.Dossie, error)
	Funcionario(ctx context.Context, id string) (*models.Funcionario, error)
}

// ContextAssembler loads the records named in a generation request.
type ContextAssembler struct {
	dir Directory
	now func() time.Time
}

func NewContextAssembler(dir Directory) *ContextAssembler {
	return &ContextAssembler{dir: dir, now: time.Now}
}

// Assemble builds the resolver context for refs. An explicit ClienteID wins
// over the cliente the processo belongs to. The returned Refs carry the
// cliente actually used. Unknown ids are NotFound errors.
func (a *ContextAssembler) Assemble(ctx context.Context, refs Refs) (resolver.Context, Refs, error) {
	rc := resolver.Context{Now: a.now()}

	if refs.ProcessoID != "" {
		p, err := a.dir.Processo(ctx, refs.ProcessoID)
		if err != nil {
			return rc, refs, err
		}
		rc.Processo = p.Record()
		if refs.ClienteID == "" && p.ClienteID != nil {
			refs.ClienteID = *p.ClienteID
		}
	}
	if refs.ClienteID != "" {
		c, err := a.dir.Cliente(ctx, refs.ClienteID)
		if err != nil {
			return rc, refs, err
		}
		rc.Entidade = c.Record()
	}
	if refs.DossieID != "" {
		d, err := a.dir.Dossie(ctx, refs.DossieID)
		if err != nil {
			return rc, refs, err
		}
		rc.Dossie = d.Record()
	}
	if refs.FuncionarioID != "" {
		f, err := a.dir.Funcionario(ctx, refs.FuncionarioID)
		if err != nil {
			return rc, refs, err
		}
		rc.Funcionario = f.Record()
	}
	return rc, refs, nil
}
