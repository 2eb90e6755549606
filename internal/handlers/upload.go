package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/apperrors"
	"DF-TPLGEN/internal/importer"
)

const uploadField = "file"

// readUpload reads the multipart "file" part. The declared size is checked
// before the content is read, and the read itself is capped.
func readUpload(c *gin.Context, maxSize int64) (importer.File, error) {
	// leave room for the multipart envelope and the other form fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+1<<20)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return importer.File{}, apperrors.New(apperrors.KindImportSizeExceeded, "upload exceeds %d bytes", maxSize)
		}
		return importer.File{}, apperrors.Wrap(apperrors.KindInvalidInput, err, "multipart field %q is required", uploadField)
	}
	if fh.Size > maxSize {
		return importer.File{}, apperrors.New(apperrors.KindImportSizeExceeded,
			"%s is %d bytes, limit is %d", fh.Filename, fh.Size, maxSize)
	}

	f, err := fh.Open()
	if err != nil {
		return importer.File{}, apperrors.Wrap(apperrors.KindInvalidInput, err, "failed to open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return importer.File{}, apperrors.Wrap(apperrors.KindInvalidInput, err, "failed to read upload")
	}
	return importer.File{Name: fh.Filename, Data: data}, nil
}
