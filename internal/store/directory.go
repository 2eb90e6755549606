package store

import (
	"context"

	"gorm.io/gorm"

	"DF-TPLGEN/internal/models"
)

// Directory reads the business records a generation context is built from.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Cliente(ctx context.Context, id string) (*models.Cliente, error) {
	var c models.Cliente
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, notFound(err, "cliente %s", id)
	}
	return &c, nil
}

func (d *Directory) Processo(ctx context.Context, id string) (*models.Processo, error) {
	var p models.Processo
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, notFound(err, "processo %s", id)
	}
	return &p, nil
}

func (d *Directory) Dossie(ctx context.Context, id string) (*models.Dossie, error) {
	var x models.Dossie
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&x).Error; err != nil {
		return nil, notFound(err, "dossie %s", id)
	}
	return &x, nil
}

func (d *Directory) Funcionario(ctx context.Context, id string) (*models.Funcionario, error) {
	var f models.Funcionario
	if err := d.db.WithContext(ctx).Where("id = ?", id).Take(&f).Error; err != nil {
		return nil, notFound(err, "funcionario %s", id)
	}
	return &f, nil
}
