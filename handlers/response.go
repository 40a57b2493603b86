package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dzoniops/condo-booking/models"
)

type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func jsonPage(c *gin.Context, data any, page, perPage int, total int64) {
	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": PageMeta{Page: page, PerPage: perPage, Total: total},
	})
}

func jsonError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

// writeError maps engine errors onto HTTP responses. Storage and unknown
// errors are logged and hidden behind a generic message.
func writeError(c *gin.Context, logger log.Logger, err error) {
	var (
		verr     *models.ValidationError
		conflict *models.DateConflictError
	)
	switch {
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":    "date_conflict",
			"message":  "the requested dates are not available",
			"conflict": conflict.Conflict,
			"source":   conflict.Source,
		})
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": verr.Error(),
			"field":   verr.Field,
		})
	case errors.Is(err, models.ErrAlreadyTerminal):
		jsonError(c, http.StatusConflict, "already_terminal", err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		jsonError(c, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, models.ErrNotFound):
		jsonError(c, http.StatusNotFound, "not_found", "resource not found")
	default:
		level.Error(logger).Log("msg", "request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		jsonError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
