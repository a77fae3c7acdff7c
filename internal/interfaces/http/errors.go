package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/procureflow/internal/domain/apperr"
)

// statusOf maps an error kind to its HTTP status
func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeUnauthorized:
		return http.StatusForbidden
	case apperr.CodeInvalidState:
		return http.StatusConflict
	case apperr.CodeConfiguration:
		return http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the standard envelope. Store failures are logged and not echoed.
func (h *Handlers) writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	msg := apperr.MessageOf(err)
	if code == apperr.CodePersistence {
		h.logger.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		msg = "internal error"
	}

	c.AbortWithStatusJSON(statusOf(code), Response{
		Success: false,
		Error:   msg,
		Code:    string(code),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    string(apperr.CodeValidation),
	})
}
