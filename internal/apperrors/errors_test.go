package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorsIsMatchesKindThroughWrapping(t *testing.T) {
	base := New(KindOverlayPageNotFound, "field %q references page %d", "f1", 2)
	wrapped := fmt.Errorf("save template: %w", base)

	if !errors.Is(wrapped, KindOverlayPageNotFound) {
		t.Fatalf("errors.Is(wrapped, KindOverlayPageNotFound) = false")
	}
	if errors.Is(wrapped, KindOverlayFieldOutOfBounds) {
		t.Fatalf("errors.Is matched the wrong kind")
	}
	if got := KindOf(wrapped); got != KindOverlayPageNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindOverlayPageNotFound)
	}
}

func TestKindOfUntyped(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != "" {
		t.Errorf("KindOf(untyped) = %q, want empty", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindImportFormatUnsupported, http.StatusUnsupportedMediaType},
		{KindImportSizeExceeded, http.StatusRequestEntityTooLarge},
		{KindImportCorruptFile, http.StatusUnprocessableEntity},
		{KindTemplateEmptyContent, http.StatusUnprocessableEntity},
		{KindConversionTimeout, http.StatusGatewayTimeout},
		{KindNotFound, http.StatusNotFound},
		{KindTemplateTrashed, http.StatusConflict},
		{KindInvalidInput, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := Wrap(tc.kind, errors.New("cause"), "failed")
			if got := HTTPStatus(err); got != tc.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tc.kind, got, tc.want)
			}
		})
	}

	if got := HTTPStatus(errors.New("x")); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus(untyped) = %d, want 500", got)
	}
}
