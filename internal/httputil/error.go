package httputil

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/fpv-bracket/internal/service"
	"github.com/google/uuid"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string                `json:"error"`
	Missing []service.MissingItem `json:"missing,omitempty"`
	Ties    [][]uuid.UUID         `json:"ties,omitempty"`
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal server error"})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	WriteJSON(w, http.StatusNotFound, ErrorBody{Error: msg})
}

func Conflict(w http.ResponseWriter, body ErrorBody) {
	slog.Warn("precondition failed", "message", body.Error, "missing", len(body.Missing), "ties", len(body.Ties))
	WriteJSON(w, http.StatusConflict, body)
}

// ServiceError maps an engine error onto a status code: validation 400, precondition 409, not found 404,
// anything else 500 logged with msg.
func ServiceError(w http.ResponseWriter, msg string, err error) {
	var (
		valErr  *service.ValidationError
		preErr  *service.PreconditionError
		missErr *service.NotFoundError
	)
	switch {
	case errors.As(err, &valErr):
		BadRequest(w, valErr.Message, nil)
	case errors.As(err, &preErr):
		Conflict(w, ErrorBody{Error: preErr.Error(), Missing: preErr.Missing, Ties: preErr.Ties})
	case errors.As(err, &missErr):
		NotFound(w, missErr.Error(), nil)
	default:
		InternalServerError(w, msg, err)
	}
}
