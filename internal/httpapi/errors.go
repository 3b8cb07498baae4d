package httpapi

import (
	"errors"
	"net/http"

	"promptcron/internal/registry"
	"promptcron/internal/schedule"
	"promptcron/internal/task/engine"
	"promptcron/internal/task/scheduler"
)

// Error is returned by handlers; it is rendered as {"error": Message}.
type Error struct {
	Code    int
	Message string
	Field   string
}

// errorFor maps domain errors onto HTTP statuses.
func errorFor(err error) *Error {
	var ve *schedule.ValidationError
	var re *scheduler.RegistrationError
	switch {
	case errors.Is(err, registry.ErrDuplicate):
		return &Error{Code: http.StatusConflict, Message: err.Error(), Field: "id"}
	case errors.As(err, &ve):
		return &Error{Code: http.StatusBadRequest, Message: err.Error(), Field: ve.Field}
	case errors.Is(err, registry.ErrNotFound):
		return &Error{Code: http.StatusNotFound, Message: err.Error()}
	case errors.As(err, &re) && errors.Is(re.Err, scheduler.ErrNotRegistered):
		return &Error{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, engine.ErrQueueFull), errors.Is(err, engine.ErrStopped), errors.Is(err, engine.ErrStopping):
		return &Error{Code: http.StatusServiceUnavailable, Message: err.Error()}
	default:
		return &Error{Code: http.StatusInternalServerError, Message: err.Error()}
	}
}
