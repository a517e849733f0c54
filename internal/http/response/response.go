package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps a structured error onto the wire envelope, falling back
// to a plain 500 for anything untyped.
func RespondAPIError(c *gin.Context, err error) {
	status := apierr.StatusOf(err)
	kind := apierr.KindOf(err)
	code := "internal_error"
	if ae := apierr.As(err); ae != nil {
		code = ae.Code
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
			Kind:    string(kind),
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
