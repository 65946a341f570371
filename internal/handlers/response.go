package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attestra/attestra-backend/internal/pkg/apierr"
	"github.com/attestra/attestra-backend/internal/pkg/errs"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
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

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps service sentinels onto HTTP statuses. Anything not
// classified falls through as a 500 with the detail withheld.
func RespondServiceError(c *gin.Context, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		RespondError(c, ae.HTTPStatus(), ae.Code, ae)
		return
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errs.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("unauthorized"))
	case errors.Is(err, errs.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, errs.ErrVersionConflict):
		RespondError(c, http.StatusConflict, "version_conflict", err)
	case errors.Is(err, errs.ErrConflict):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, errs.ErrUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}
