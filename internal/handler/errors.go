package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"staffpresence/internal/apperr"
)

// statusFor maps an error code onto an HTTP status.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidInput:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)

	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "storage unavailable, try again"
	case http.StatusInternalServerError:
		msg = "internal error"
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("route", c.Request.Method+" "+c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}
