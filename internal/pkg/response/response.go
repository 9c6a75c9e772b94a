// internal/pkg/response/response.go
package response

import (
	"net/http"

	xerrors "bargain-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response. The error field carries the
// error kind only; causes stay in the logs.
func Error(c *gin.Context, code int, message string, kind xerrors.Kind, data ...interface{}) {
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
		Error:   string(kind),
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// Fail translates a service error into the envelope and records the internal
// cause on the gin context so the logging middleware can report it.
func Fail(c *gin.Context, err error, data ...interface{}) {
	kind := xerrors.KindOf(err)
	_ = c.Error(err)
	Error(c, xerrors.HTTPStatus(kind), xerrors.PublicMessage(err), kind, data...)
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	Error(c, http.StatusBadRequest, message, xerrors.KindInvalidInput)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, xerrors.KindUnauthenticated)
}
