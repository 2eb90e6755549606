// Package importer turns uploaded office documents, PDFs and images into flow
// template bodies, and PDFs into overlay template sources.
package importer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	gofpdfreader "github.com/lvillar/gofpdf/reader"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/flow"
	"DF-TPLGEN/internal/overlay"
	"DF-TPLGEN/internal/processor"
)

const DefaultMaxSize = 10 << 20

type family int

const (
	familyOOXML family = iota
	familyODF
	familyLegacy
	familyPDF
	familyImage
)

// extensions accepted for flow import, mapped to the container family the
// content sniff must agree with.
var extensions = map[string]family{
	".docx": familyOOXML,
	".docm": familyOOXML,
	".dotx": familyOOXML,
	".dotm": familyOOXML,
	".odt":  familyODF,
	".doc":  familyLegacy,
	".dot":  familyLegacy,
	".wps":  familyLegacy,
	".rtf":  familyLegacy,
	".pdf":  familyPDF,
	".png":  familyImage,
	".jpg":  familyImage,
	".jpeg": familyImage,
	".gif":  familyImage,
	".bmp":  familyImage,
	".tif":  familyImage,
	".tiff": familyImage,
	".webp": familyImage,
}

// Converter renders office formats the importer cannot read natively to PDF.
type Converter interface {
	ConvertToPDF(ctx context.Context, r io.Reader, filename string) (io.ReadCloser, error)
}

type Config struct {
	MaxSize int64
}

type File struct {
	Name string
	Data []byte
}

type FlowResult struct {
	HTML      string   `json:"html"`
	Variables []string `json:"variables"`
	Source    string   `json:"source"`
	Landscape bool     `json:"landscape"`
}

type OverlayResult struct {
	PageCount int                  `json:"page_count"`
	Pages     []overlay.PageMetric `json:"pages"`
	PDF       []byte               `json:"-"`
}

type Importer struct {
	maxSize   int64
	converter Converter
}

func New(cfg Config, converter Converter) *Importer {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Importer{maxSize: cfg.MaxSize, converter: converter}
}

func (im *Importer) MaxSize() int64 { return im.maxSize }

// ImportFlow converts an uploaded document to a sanitised flow body. The size
// limit is checked before anything else touches the content.
func (im *Importer) ImportFlow(ctx context.Context, f File) (*FlowResult, error) {
	if err := im.checkSize(f); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	fam, ok := extensions[ext]
	if !ok {
		return nil, apperrors.New(apperrors.KindImportFormatUnsupported, "unsupported file type %q", ext)
	}
	if err := sniff(f.Data, ext, fam); err != nil {
		return nil, err
	}

	var (
		body      string
		landscape bool
		err       error
	)
	switch fam {
	case familyOOXML:
		body, landscape, err = fromDocx(f.Data)
	case familyODF:
		body, err = fromOdt(f.Data)
	case familyLegacy:
		body, err = im.fromLegacy(ctx, f)
	case familyPDF:
		body, err = fromPDF(f.Data)
	case familyImage:
		body, err = fromImage(f.Data)
	}
	if err != nil {
		return nil, err
	}

	body = Sanitize(body)
	if !flow.HasContent(body) {
		return nil, apperrors.New(apperrors.KindImportCorruptFile, "%s produced no content", f.Name)
	}
	return &FlowResult{
		HTML:      body,
		Variables: flow.ExtractVariables(body),
		Source:    strings.TrimPrefix(ext, "."),
		Landscape: landscape,
	}, nil
}

// ImportOverlay validates a PDF and records its page sizes.
func (im *Importer) ImportOverlay(ctx context.Context, f File) (*OverlayResult, error) {
	if err := im.checkSize(f); err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(f.Name)); ext != ".pdf" {
		return nil, apperrors.New(apperrors.KindImportFormatUnsupported, "overlay templates need a PDF, got %q", ext)
	}
	if err := sniff(f.Data, ".pdf", familyPDF); err != nil {
		return nil, err
	}

	doc, err := gofpdfreader.ReadFrom(bytes.NewReader(f.Data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to parse %s", f.Name)
	}
	if doc.NumPages() == 0 {
		return nil, apperrors.New(apperrors.KindImportCorruptFile, "%s has no pages", f.Name)
	}

	pages := make([]overlay.PageMetric, 0, doc.NumPages())
	for n, page := range doc.Pages() {
		pages = append(pages, overlay.PageMetric{
			PageNumber: n,
			WidthPt:    page.MediaBox.Width(),
			HeightPt:   page.MediaBox.Height(),
		})
	}
	return &OverlayResult{PageCount: len(pages), Pages: pages, PDF: f.Data}, nil
}

func (im *Importer) checkSize(f File) error {
	if int64(len(f.Data)) > im.maxSize {
		return apperrors.New(apperrors.KindImportSizeExceeded,
			"%s is %d bytes, limit is %d", f.Name, len(f.Data), im.maxSize)
	}
	if len(f.Data) == 0 {
		return apperrors.New(apperrors.KindImportCorruptFile, "%s is empty", f.Name)
	}
	return nil
}

// sniff checks that the content agrees with the extension's family.
func sniff(data []byte, ext string, fam family) error {
	mt := mimetype.Detect(data)

	var ok bool
	switch fam {
	case familyOOXML, familyODF:
		ok = descendsFrom(mt, "application/zip")
	case familyLegacy:
		if ext == ".rtf" {
			ok = mt.Is("text/rtf")
		} else {
			ok = descendsFrom(mt, "application/x-ole-storage")
		}
	case familyPDF:
		ok = mt.Is("application/pdf")
	case familyImage:
		ok = strings.HasPrefix(mt.String(), "image/")
	}
	if !ok {
		return apperrors.New(apperrors.KindImportCorruptFile, "content is %s, not a valid %s file", mt.String(), ext)
	}
	return nil
}

func descendsFrom(mt *mimetype.MIME, parent string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(parent) {
			return true
		}
	}
	return false
}

func fromDocx(data []byte) (string, bool, error) {
	dp, err := processor.OpenDocx(data)
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to read word document")
	}
	body, err := dp.ToHTML()
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to convert word document")
	}
	return body, dp.Layout().Landscape, nil
}

func fromOdt(data []byte) (string, error) {
	op, err := processor.OpenOdt(data)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to read opendocument text")
	}
	body, err := op.ToHTML()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to convert opendocument text")
	}
	return body, nil
}

// fromLegacy sends binary Word, Works and RTF files through the converter and
// reads the text layer of the resulting PDF.
func (im *Importer) fromLegacy(ctx context.Context, f File) (string, error) {
	if im.converter == nil {
		return "", apperrors.New(apperrors.KindImportFormatUnsupported, "no converter configured for %s", filepath.Ext(f.Name))
	}

	rc, err := im.converter.ConvertToPDF(ctx, bytes.NewReader(f.Data), f.Name)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, apperrors.KindConversionTimeout) {
			return "", apperrors.Wrap(apperrors.KindConversionTimeout, err, "conversion of %s timed out", f.Name)
		}
		if apperrors.KindOf(err) != "" {
			return "", err
		}
		return "", apperrors.Wrap(apperrors.KindConversionFailed, err, "failed to convert %s", f.Name)
	}
	defer rc.Close()

	pdf, err := io.ReadAll(rc)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindConversionFailed, err, "failed to read converted %s", f.Name)
	}
	return fromPDF(pdf)
}

// fromPDF keeps one paragraph per page of extracted text.
func fromPDF(data []byte) (string, error) {
	doc, err := gofpdfreader.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to parse pdf")
	}

	var sb strings.Builder
	for n, page := range doc.Pages() {
		text, err := page.ExtractText()
		if err != nil {
			return "", apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to read text of page %d", n)
		}
		text = strings.Join(strings.Fields(strings.ToValidUTF8(text, "")), " ")
		if text == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(html.EscapeString(text))
		sb.WriteString("</p>")
	}
	if sb.Len() == 0 {
		return "", apperrors.New(apperrors.KindImportCorruptFile, "pdf has no text layer")
	}
	return sb.String(), nil
}

func fromImage(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindImportCorruptFile, err, "failed to decode image")
	}
	src := fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(data))
	return fmt.Sprintf(`<p><img src="%s" width="%d" height="%d" alt=""></p>`, src, cfg.Width, cfg.Height), nil
}
