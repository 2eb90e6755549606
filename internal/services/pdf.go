package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/starwalkn/gotenberg-go-client/v8"
	"github.com/starwalkn/gotenberg-go-client/v8/document"

	"DF-TPLGEN/internal/apperrors"
)

const (
	defaultConversionTimeout = 30 * time.Second
	blobCleanupTimeout       = 30 * time.Second
)

// PDFService talks to Gotenberg: LibreOffice for office formats the importer
// cannot read natively, Chromium for PDF output of flow templates.
type PDFService struct {
	client   *gotenberg.Client
	timeout  time.Duration
	attempts uint64
	logger   *slog.Logger
}

func NewPDFService(gotenbergURL string, timeout time.Duration, logger *slog.Logger) (*PDFService, error) {
	if timeout <= 0 {
		timeout = defaultConversionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	// the request context carries the per-conversion deadline; the client
	// timeout only guards against a hung connection
	httpClient := &http.Client{
		Timeout: timeout + 5*time.Second,
	}

	client, err := gotenberg.NewClient(gotenbergURL, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gotenberg client: %w", err)
	}

	return &PDFService{
		client:   client,
		timeout:  timeout,
		attempts: 3,
		logger:   logger,
	}, nil
}

// ConvertToPDF renders an office document with LibreOffice.
func (s *PDFService) ConvertToPDF(ctx context.Context, r io.Reader, filename string) (io.ReadCloser, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	pdf, err := s.send(ctx, filename, func() (gotenberg.MultipartRequester, error) {
		doc, err := document.FromBytes(filename, data)
		if err != nil {
			return nil, fmt.Errorf("failed to create document from reader: %w", err)
		}
		return gotenberg.NewLibreOfficeRequest(doc), nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(pdf)), nil
}

// HTMLToPDF prints a complete HTML document with Chromium on A4 paper.
func (s *PDFService) HTMLToPDF(ctx context.Context, page string, landscape bool) ([]byte, error) {
	return s.send(ctx, "index.html", func() (gotenberg.MultipartRequester, error) {
		index, err := document.FromString("index.html", page)
		if err != nil {
			return nil, fmt.Errorf("failed to create html document: %w", err)
		}
		req := gotenberg.NewHTMLRequest(index)
		req.PaperSize(gotenberg.A4)
		if landscape {
			req.Landscape()
		}
		return req, nil
	})
}

// send retries transient Gotenberg failures. A deadline is never retried and
// surfaces as ConversionTimeout.
func (s *PDFService) send(ctx context.Context, name string, build func() (gotenberg.MultipartRequester, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	attempt := 0
	backoff := retry.WithMaxRetries(s.attempts-1, retry.NewExponential(500*time.Millisecond))

	var out []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		req, err := build()
		if err != nil {
			return err
		}

		resp, err := s.client.Send(ctx, req)
		if err != nil {
			if isTimeout(ctx, err) {
				return err
			}
			s.logger.Warn("pdf conversion attempt failed", "file", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("gotenberg returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
			if resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}

		out, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to read converted %s: %w", name, err))
		}
		return nil
	})

	switch {
	case err == nil:
		return out, nil
	case isTimeout(ctx, err):
		return nil, apperrors.Wrap(apperrors.KindConversionTimeout, err, "conversion of %s timed out after %s", name, s.timeout)
	default:
		return nil, apperrors.Wrap(apperrors.KindConversionFailed, err, "failed to convert %s after %d attempts", name, attempt)
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
