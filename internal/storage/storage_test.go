package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"DF-TPLGEN/internal/apperrors"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	key := TemplatePDFKey("tpl-1", "v1")
	if key != "templates/tpl-1/v1.pdf" {
		t.Errorf("TemplatePDFKey = %q", key)
	}
	if err := store.Put(ctx, key, "application/pdf", []byte("%PDF-1.4")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil || !bytes.Equal(got, []byte("%PDF-1.4")) {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, apperrors.KindNotFound) {
		t.Errorf("Get after delete = %v, want NotFound", err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "/", "../etc/passwd", "templates/../../x"} {
		if err := store.Put(context.Background(), key, "", nil); !errors.Is(err, apperrors.KindInvalidInput) {
			t.Errorf("Put(%q) = %v, want InvalidInput", key, err)
		}
	}
}
