package overlay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gofpdf "github.com/lvillar/gofpdf"
	"github.com/lvillar/gofpdf/contrib/gofpdi"
	"github.com/lvillar/gofpdf/reader"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/resolver"
)

const (
	fontFamily = "Helvetica"
	// horizontal padding inside a field box
	boxPadding = 1.0
	shrinkStep = 0.5
)

// Options tune one stamping run.
type Options struct {
	DefaultFontSize float64
	// CreatedAt is written as the creation and modification date so that the
	// same inputs always produce the same bytes.
	CreatedAt time.Time
	Timeout   time.Duration
}

// Result is the stamped document and the fields left blank.
type Result struct {
	PDF        []byte
	Unresolved []string
}

// Stamper writes overlay values onto source PDFs. The source is staged in
// workDir because the page importer reads from disk.
type Stamper struct {
	workDir string

	mu     sync.Mutex
	staged map[string]int
}

func NewStamper(workDir string) *Stamper {
	return &Stamper{workDir: workDir, staged: make(map[string]int)}
}

// Stamp draws every field's resolved value clipped to its rectangle. Pages
// without fields are copied unchanged.
func (s *Stamper) Stamp(ctx context.Context, src []byte, pages []PageMetric, fields []Field, resolve func(string) resolver.Value, opts Options) (*Result, error) {
	if err := Validate(pages, fields); err != nil {
		return nil, err
	}

	doc, err := reader.ReadFrom(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to read overlay source")
	}
	pageCount := doc.NumPages()
	for _, f := range fields {
		if f.Page > pageCount {
			return nil, apperrors.New(apperrors.KindOverlayPageNotFound,
				"field %q references page %d, source has %d pages", f.ID, f.Page, pageCount)
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	staged, err := s.stage(src)
	if err != nil {
		return nil, fmt.Errorf("failed to stage overlay source: %w", err)
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := render(staged, pageCount, fields, resolve, opts)
		s.release(staged)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.KindConversionTimeout, ctx.Err(), "overlay stamping timed out")
		}
		return nil, ctx.Err()
	}
}

// stage names the file after the source digest: the importer keys imported
// objects by file name, so a fixed name keeps the output byte-stable.
// Concurrent runs over the same source share one file.
func (s *Stamper) stage(src []byte) (string, error) {
	sum := sha256.Sum256(src)
	path := filepath.Join(s.workDir, "overlay-"+hex.EncodeToString(sum[:16])+".pdf")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged[path] > 0 {
		s.staged[path]++
		return path, nil
	}
	if err := os.WriteFile(path, src, 0o600); err != nil {
		return "", err
	}
	s.staged[path] = 1
	return path, nil
}

func (s *Stamper) release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staged[path]--; s.staged[path] <= 0 {
		delete(s.staged, path)
		os.Remove(path)
	}
}

func render(path string, pageCount int, fields []Field, resolve func(string) resolver.Value, opts Options) (res *Result, err error) {
	// the page importer panics on structures it cannot parse
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = apperrors.New(apperrors.KindConversionFailed, "failed to import overlay pages: %v", r)
		}
	}()

	byPage := make(map[int][]Field)
	for _, f := range fields {
		byPage[f.Page] = append(byPage[f.Page], f)
	}
	for _, list := range byPage {
		sort.SliceStable(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}

	defaultSize := opts.DefaultFontSize
	if defaultSize <= 0 {
		defaultSize = DefaultFontSize
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	if !opts.CreatedAt.IsZero() {
		pdf.SetCreationDate(opts.CreatedAt)
		pdf.SetModificationDate(opts.CreatedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	imp := gofpdi.NewImporter()

	unresolved := []string{}
	seen := make(map[string]bool)
	values := make(map[string]resolver.Value)

	for n := 1; n <= pageCount; n++ {
		tplID := imp.ImportPage(pdf, path, n, "/MediaBox")
		w, h := importedSize(imp, n)
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: h})
		imp.UseImportedTemplate(pdf, tplID, 0, 0, w, h)

		for _, f := range byPage[n] {
			v, ok := values[f.VariablePath]
			if !ok {
				v = resolve(f.VariablePath)
				values[f.VariablePath] = v
			}
			if !v.Resolved {
				if !seen[f.VariablePath] {
					seen[f.VariablePath] = true
					unresolved = append(unresolved, f.VariablePath)
				}
				continue
			}
			if v.Text == "" {
				continue
			}

			size := defaultSize
			if f.FontSize != nil {
				size = *f.FontSize
			}
			drawField(pdf, f, tr(v.Text), size)
		}
	}

	if pdf.Err() {
		return nil, apperrors.Wrap(apperrors.KindConversionFailed, pdf.Error(), "failed to stamp overlay")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConversionFailed, err, "failed to write stamped overlay")
	}
	return &Result{PDF: buf.Bytes(), Unresolved: unresolved}, nil
}

func importedSize(imp *gofpdi.Importer, page int) (w, h float64) {
	if dims, ok := imp.GetPageSizes()[page]; ok {
		if mb, ok := dims["/MediaBox"]; ok {
			w, h = mb["w"], mb["h"]
		}
	}
	if w == 0 || h == 0 {
		w, h = 595.28, 841.89
	}
	return w, h
}

// drawField writes text on a single line inside the field box, shrinking the
// font until it fits the width or reaches MinFontSize. Anything still wider
// is clipped at the box edge.
func drawField(pdf *gofpdf.Fpdf, f Field, text string, size float64) {
	size = fitFontSize(pdf, text, size, f.Width-2*boxPadding, f.Height)

	pdf.SetFont(fontFamily, "", size)
	pdf.SetTextColor(0, 0, 0)

	pdf.ClipRect(f.X, f.Y, f.Width, f.Height, false)
	baseline := f.Y + f.Height/2 + size*0.35
	pdf.Text(f.X+boxPadding, baseline, text)
	pdf.ClipEnd()
}

func fitFontSize(pdf *gofpdf.Fpdf, text string, size, maxWidth, maxHeight float64) float64 {
	if size > maxHeight {
		size = maxHeight
	}
	if size < MinFontSize {
		return MinFontSize
	}
	for size > MinFontSize {
		pdf.SetFont(fontFamily, "", size)
		if pdf.GetStringWidth(text) <= maxWidth {
			break
		}
		size -= shrinkStep
	}
	if size < MinFontSize {
		size = MinFontSize
	}
	return size
}
