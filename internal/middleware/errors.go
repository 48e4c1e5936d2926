package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
)

// ErrorBody is the code and message describing one failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// StatusFor maps an error from the service layer to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, appErrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, appErrors.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, appErrors.ErrIllegalState):
		return http.StatusUnprocessableEntity, "illegal_state"
	case errors.Is(err, appErrors.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, appErrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, appErrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "internal"
}

// ErrorFor describes err for an API caller. Internal errors are logged and
// replaced by a generic message.
func ErrorFor(r *http.Request, err error) ErrorBody {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	return ErrorBody{Code: code, Message: msg}
}

// RenderError writes the error envelope with the status matching err.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := StatusFor(err)
	body := ErrorFor(r, err)
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: body})
}
