package resolver

import (
	"fmt"
	"time"

	"DF-TPLGEN/internal/variables"
)

var monthNames = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// resolveSistema derives clock fields from the generation instant. A zero
// instant leaves them unresolved rather than printing year 1.
func (r *Resolver) resolveSistema(field variables.Field, now time.Time) Value {
	path := field.Path()
	if now.IsZero() {
		return unresolved(path, ReasonMissingValue)
	}
	local := now.In(r.location)

	var text string
	switch field.Field {
	case "data_hoje":
		text = local.Format(DateLayout)
	case "data_extenso":
		text = fmt.Sprintf("%d de %s de %d", local.Day(), monthNames[local.Month()-1], local.Year())
	case "hora_atual":
		text = local.Format("15:04")
	case "dia_atual":
		text = local.Format("02")
	case "mes_atual":
		text = monthNames[local.Month()-1]
	case "ano_atual":
		text = local.Format("2006")
	default:
		return unresolved(path, ReasonUnknownPath)
	}
	return Value{Path: path, Text: text, Resolved: true}
}
