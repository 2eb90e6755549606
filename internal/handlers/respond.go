package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"DF-TPLGEN/internal/apperrors"
)

// respondError writes {"error", "code"} with the status of the error's kind.
// Untyped errors are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	kind := apperrors.KindOf(err)

	msg := err.Error()
	if kind == "" {
		msg = "internal server error"
		kind = "internal"
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": kind})
}

func badRequest(c *gin.Context, format string, args ...any) {
	respondError(c, apperrors.New(apperrors.KindInvalidInput, format, args...))
}

type pagination struct {
	Page   int
	Limit  int
	Offset int
}

func parsePagination(c *gin.Context) pagination {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	return pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

type ListResponse struct {
	Items      any   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

func listResponse(items any, total int64, p pagination) ListResponse {
	return ListResponse{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: int((total + int64(p.Limit) - 1) / int64(p.Limit)),
	}
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
