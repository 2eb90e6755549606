// Package overlay stamps resolved variable values onto fixed positions of an
// imported PDF. Coordinates are PDF points measured from the top-left corner
// of the page, y growing downward.
package overlay

import (
	"DF-TPLGEN/internal/apperrors"
)

const (
	DefaultFontSize = 10.0
	MinFontSize     = 4.0
)

// PageMetric is the size of one source page, captured at import.
type PageMetric struct {
	PageNumber int     `json:"page_number"`
	WidthPt    float64 `json:"width_pt"`
	HeightPt   float64 `json:"height_pt"`
}

// Field binds a variable path to a rectangle on a page.
type Field struct {
	ID           string   `json:"id"`
	VariablePath string   `json:"variable_path"`
	Page         int      `json:"page"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Width        float64  `json:"width"`
	Height       float64  `json:"height"`
	FontSize     *float64 `json:"font_size,omitempty"`
}

// Validate checks every field against the page metrics. The first violation
// is returned.
func Validate(pages []PageMetric, fields []Field) error {
	byNumber := make(map[int]PageMetric, len(pages))
	for _, p := range pages {
		byNumber[p.PageNumber] = p
	}

	for _, f := range fields {
		page, ok := byNumber[f.Page]
		if !ok {
			return apperrors.New(apperrors.KindOverlayPageNotFound,
				"field %q references page %d, document has %d pages", f.ID, f.Page, len(pages))
		}
		if err := checkBounds(f, page); err != nil {
			return err
		}
	}
	return nil
}

func checkBounds(f Field, page PageMetric) error {
	switch {
	case f.X < 0 || f.Y < 0:
		return outOfBounds(f, "origin (%.2f, %.2f) is negative", f.X, f.Y)
	case f.Width <= 0 || f.Height <= 0:
		return outOfBounds(f, "size %.2fx%.2f is not positive", f.Width, f.Height)
	case f.X+f.Width > page.WidthPt:
		return outOfBounds(f, "right edge %.2f exceeds page width %.2f", f.X+f.Width, page.WidthPt)
	case f.Y+f.Height > page.HeightPt:
		return outOfBounds(f, "bottom edge %.2f exceeds page height %.2f", f.Y+f.Height, page.HeightPt)
	case f.FontSize != nil && *f.FontSize <= 0:
		return outOfBounds(f, "font size %.2f is not positive", *f.FontSize)
	}
	return nil
}

func outOfBounds(f Field, format string, args ...any) error {
	return apperrors.New(apperrors.KindOverlayFieldOutOfBounds,
		"field %q on page %d: "+format, append([]any{f.ID, f.Page}, args...)...)
}
