package models

import "time"

// The directory tables hold the business records templates are generated
// for. They are read-only from this service's point of view.

type Cliente struct {
	ID                     string `gorm:"type:varchar(36);primaryKey"`
	Nome                   string
	NIF                    string `gorm:"column:nif"`
	NumeroCliente          string
	Morada                 string
	CodigoPostal           string
	Localidade             string
	Pais                   string
	Email                  string
	Telefone               string
	IBAN                   string `gorm:"column:iban"`
	DataNascimento         *time.Time
	DocumentoIdentificacao string
}

func (Cliente) TableName() string { return "clientes" }

type Processo struct {
	ID               string  `gorm:"type:varchar(36);primaryKey"`
	ClienteID        *string `gorm:"type:varchar(36);index"`
	Numero           string
	Tipo             string
	Estado           string
	Tribunal         string
	Descricao        string
	Contraparte      string
	DataAbertura     *time.Time
	DataEncerramento *time.Time
	Valor            *float64
	Honorarios       *float64
}

func (Processo) TableName() string { return "processos" }

type Dossie struct {
	ID              string `gorm:"type:varchar(36);primaryKey"`
	Referencia      string
	Titulo          string
	Estado          string
	DataCriacao     *time.Time
	TotalDocumentos *int64
}

func (Dossie) TableName() string { return "dossies" }

type Funcionario struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	Nome         string
	Cargo        string
	Email        string
	Telefone     string
	NumeroCedula string
}

func (Funcionario) TableName() string { return "funcionarios" }

// The Record methods expose a row under the catalog's field names. Empty
// strings and NULL columns are left out so they surface as missing values.

func (c *Cliente) Record() map[string]any {
	r := make(map[string]any)
	putText(r, "nome", c.Nome)
	putText(r, "nif", c.NIF)
	putText(r, "numero_cliente", c.NumeroCliente)
	putText(r, "morada", c.Morada)
	putText(r, "codigo_postal", c.CodigoPostal)
	putText(r, "localidade", c.Localidade)
	putText(r, "pais", c.Pais)
	putText(r, "email", c.Email)
	putText(r, "telefone", c.Telefone)
	putText(r, "iban", c.IBAN)
	putTime(r, "data_nascimento", c.DataNascimento)
	putText(r, "documento_identificacao", c.DocumentoIdentificacao)
	return r
}

func (p *Processo) Record() map[string]any {
	r := make(map[string]any)
	putText(r, "numero", p.Numero)
	putText(r, "tipo", p.Tipo)
	putText(r, "estado", p.Estado)
	putText(r, "tribunal", p.Tribunal)
	putText(r, "descricao", p.Descricao)
	putText(r, "contraparte", p.Contraparte)
	putTime(r, "data_abertura", p.DataAbertura)
	putTime(r, "data_encerramento", p.DataEncerramento)
	if p.Valor != nil {
		r["valor"] = *p.Valor
	}
	if p.Honorarios != nil {
		r["honorarios"] = *p.Honorarios
	}
	return r
}

func (d *Dossie) Record() map[string]any {
	r := make(map[string]any)
	putText(r, "referencia", d.Referencia)
	putText(r, "titulo", d.Titulo)
	putText(r, "estado", d.Estado)
	putTime(r, "data_criacao", d.DataCriacao)
	if d.TotalDocumentos != nil {
		r["total_documentos"] = *d.TotalDocumentos
	}
	return r
}

func (f *Funcionario) Record() map[string]any {
	r := make(map[string]any)
	putText(r, "nome", f.Nome)
	putText(r, "cargo", f.Cargo)
	putText(r, "email", f.Email)
	putText(r, "telefone", f.Telefone)
	putText(r, "numero_cedula", f.NumeroCedula)
	return r
}

func putText(r map[string]any, key, v string) {
	if v != "" {
		r[key] = v
	}
}

func putTime(r map[string]any, key string, v *time.Time) {
	if v != nil {
		r[key] = *v
	}
}
