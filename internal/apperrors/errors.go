package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so handlers can map them to status codes and
// callers can branch with errors.Is.
type Kind string

const (
	KindImportFormatUnsupported      Kind = "import_format_unsupported"
	KindImportCorruptFile            Kind = "import_corrupt_file"
	KindImportSizeExceeded           Kind = "import_size_exceeded"
	KindTemplateEmptyContent         Kind = "template_empty_content"
	KindOverlayFieldOutOfBounds      Kind = "overlay_field_out_of_bounds"
	KindOverlayPageNotFound          Kind = "overlay_page_not_found"
	KindConversionTimeout            Kind = "conversion_timeout"
	KindConversionFailed             Kind = "conversion_failed"
	KindConcurrentUsageCountConflict Kind = "concurrent_usage_count_conflict"
	KindNotFound                     Kind = "not_found"
	KindTemplateTrashed              Kind = "template_trashed"
	KindTemplateNotTrashed           Kind = "template_not_trashed"
	KindInvalidInput                 Kind = "invalid_input"
)

// Error implements error so a bare Kind can be used as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// Error is the typed error carried across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match against a Kind or another *Error of the same kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or "" when the
// error is untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code returned by the API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindImportFormatUnsupported:
		return http.StatusUnsupportedMediaType
	case KindImportSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case KindImportCorruptFile, KindTemplateEmptyContent,
		KindOverlayFieldOutOfBounds, KindOverlayPageNotFound:
		return http.StatusUnprocessableEntity
	case KindConversionTimeout:
		return http.StatusGatewayTimeout
	case KindConversionFailed:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindTemplateTrashed, KindTemplateNotTrashed:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
