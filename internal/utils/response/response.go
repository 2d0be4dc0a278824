// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here, together with
// the mapping from domain errors to status codes.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aanand-mishra/student-records/internal/filestore"
	"github.com/aanand-mishra/student-records/internal/storage"

	"github.com/go-playground/validator/v10"
)

// ─────────────────────────────────────────────────────────────────────────────
// Response is the standard envelope returned for error cases.
//
// Success responses may return any JSON shape (a student, a list, ...).
// Error responses always look like:
//
//	{ "status": "error", "code": "conflict", "error": "a student with this email already exists" }
//
// Code is machine-readable and stable; Error is meant for humans.
// ─────────────────────────────────────────────────────────────────────────────
type Response struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes.
const (
	CodeValidation = "validation_error"
	CodeConflict   = "conflict"
	CodeNotFound   = "not_found"
	CodeStorage    = "storage_error"
	CodeInternal   = "internal_error"
)

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GeneralError wraps any Go error into the standard Response shape.
func GeneralError(code string, err error) Response {
	return Response{
		Status: StatusError,
		Code:   code,
		Error:  err.Error(),
	}
}

// WriteError maps err onto a status code and error envelope:
//
//	storage.ErrNotFound               → 404 not_found
//	storage.ErrConflict               → 409 conflict
//	filestore upload rejections       → 422 validation_error
//	filestore.ErrStorage              → 500 storage_error
//	anything else                     → 500 internal_error
//
// For the 500 cases the client gets a generic message; the caller logs
// the full error. The returned status lets the caller decide how to log.
func WriteError(w http.ResponseWriter, err error) int {
	status, resp := FromError(err)
	_ = WriteJSON(w, status, resp)
	return status
}

// FromError is the mapping behind WriteError.
func FromError(err error) (int, Response) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, GeneralError(CodeNotFound, storage.ErrNotFound)
	case errors.Is(err, filestore.ErrNotFound), errors.Is(err, filestore.ErrInvalidKey):
		return http.StatusNotFound, GeneralError(CodeNotFound, filestore.ErrNotFound)
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, GeneralError(CodeConflict, storage.ErrConflict)
	case errors.Is(err, filestore.ErrEmpty):
		return http.StatusUnprocessableEntity, GeneralError(CodeValidation, filestore.ErrEmpty)
	case errors.Is(err, filestore.ErrTooLarge):
		return http.StatusUnprocessableEntity, GeneralError(CodeValidation, filestore.ErrTooLarge)
	case errors.Is(err, filestore.ErrUnsupportedType):
		return http.StatusUnprocessableEntity, GeneralError(CodeValidation, filestore.ErrUnsupportedType)
	case errors.Is(err, filestore.ErrStorage):
		return http.StatusInternalServerError, GeneralError(CodeStorage, filestore.ErrStorage)
	default:
		return http.StatusInternalServerError, GeneralError(CodeInternal, errors.New("internal server error"))
	}
}

// Invalid writes a 422 validation_error for malformed input.
func Invalid(w http.ResponseWriter, err error) {
	_ = WriteJSON(w, http.StatusUnprocessableEntity, GeneralError(CodeValidation, err))
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError converts validator.ValidationErrors into a single
// human-readable Response, one sentence per failing field joined by ", ":
//
//	{ "status": "error", "code": "validation_error",
//	  "error": "field full_name is required, field email must be a valid email address" }
//
// ─────────────────────────────────────────────────────────────────────────────
func ValidationError(errs validator.ValidationErrors) Response {
	var errMessages []string

	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is required", e.Field()))
		case "email":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be a valid email address", e.Field()))
		case "min":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be at least %s characters", e.Field(), e.Param()))
		case "max":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be at most %s characters", e.Field(), e.Param()))
		case "gte":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be %s or greater", e.Field(), e.Param()))
		case "lte":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be %s or less", e.Field(), e.Param()))
		default:
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return Response{
		Status: StatusError,
		Code:   CodeValidation,
		Error:  strings.Join(errMessages, ", "),
	}
}
