package resolver

import "time"

// Record is one business row (entidade, processo, ...) keyed by field name.
type Record map[string]any

// Context is the data snapshot a template is rendered against. It is built by
// the caller and treated as read-only here. A nil Record means that group is
// not part of this generation.
type Context struct {
	Entidade    Record    `json:"entidade,omitempty"`
	Processo    Record    `json:"processo,omitempty"`
	Dossie      Record    `json:"dossie,omitempty"`
	Funcionario Record    `json:"funcionario,omitempty"`
	Now         time.Time `json:"now"`
}

const (
	GroupEntidade    = "entidade"
	GroupProcesso    = "processo"
	GroupDossie      = "dossie"
	GroupFuncionario = "funcionario"
	GroupSistema     = "sistema"
)

func (c Context) record(group string) (Record, bool) {
	var r Record
	switch group {
	case GroupEntidade:
		r = c.Entidade
	case GroupProcesso:
		r = c.Processo
	case GroupDossie:
		r = c.Dossie
	case GroupFuncionario:
		r = c.Funcionario
	default:
		return nil, false
	}
	return r, r != nil
}
