package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/Pimboto/DarkStackBackend/internal/domain/errors"
)

// APIError/ErrorEnvelope mirror the teacher's handlers.APIError/ErrorEnvelope
// response shape (internal/handlers/response.go).
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondError maps err onto an HTTP status using the domain error taxonomy
// (spec §7) when err is one of ours, otherwise falls back to 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := string(domainerrors.CodeOf(err))
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeBadRequest:
		status = http.StatusBadRequest
	case domainerrors.CodeNotFound:
		status = http.StatusNotFound
	case domainerrors.CodeAuthExhausted:
		status = http.StatusUnauthorized
	case domainerrors.CodeRateLimited:
		status = http.StatusTooManyRequests
	case domainerrors.CodeUpstream, domainerrors.CodeBlobTooLarge, domainerrors.CodeCancelled, domainerrors.CodeStalled:
		status = http.StatusBadGateway
	case domainerrors.CodeInternal:
		status = http.StatusInternalServerError
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}
