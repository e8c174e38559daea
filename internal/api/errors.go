package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sunublog/sunublog/internal/auth"
	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/pkg/logging"
)

// Error is a transport-level failure detected before a service is called
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

var (
	errMalformedBody   = NewError(http.StatusUnprocessableEntity, "The request body is not valid JSON.")
	errUnauthenticated = NewError(http.StatusUnauthorized, "Unauthenticated.")
	errNotFound        = NewError(http.StatusNotFound, "Resource not found.")
)

// statusFor maps a domain error kind onto an HTTP status
func statusFor(kind blog.Kind) int {
	switch kind {
	case blog.KindValidation:
		return http.StatusUnprocessableEntity
	case blog.KindAuthentication:
		return http.StatusUnauthorized
	case blog.KindAuthorization:
		return http.StatusForbidden
	case blog.KindNotFound:
		return http.StatusNotFound
	case blog.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an envelope and aborts the chain. Errors outside
// the domain taxonomy are logged, attached to the context for tracing and
// reported without detail.
func (r *Router) respondError(c *gin.Context, err error) {
	var apiErr *Error
	var domainErr *blog.Error
	switch {
	case errors.As(err, &apiErr):
		fail(c, apiErr.Code, apiErr.Message, nil)
	case errors.As(err, &domainErr):
		fail(c, statusFor(domainErr.Kind), domainErr.Message, domainErr.Fields)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrRevokedToken):
		fail(c, http.StatusUnauthorized, errUnauthenticated.Message, nil)
	default:
		logging.WithTrace(c.Request.Context(), r.logger).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		fail(c, http.StatusInternalServerError, "Internal server error.", nil)
		_ = c.Error(err)
	}
	c.Abort()
}
