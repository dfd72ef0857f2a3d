package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"url-rewrite/internal/common/errors"
	"url-rewrite/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string                 `json:"error"`
	Type    string                 `json:"type,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError maps err to a status code by its AppError type
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, storage.ErrReadOnly):
		status = http.StatusMethodNotAllowed
	default:
		switch errors.GetType(err) {
		case errors.ErrTypeValidation, errors.ErrTypeDefinition:
			status = http.StatusBadRequest
		case errors.ErrTypeNotFound:
			status = http.StatusNotFound
		case errors.ErrTypeAuth:
			status = http.StatusUnauthorized
		case errors.ErrTypeConnection:
			status = http.StatusServiceUnavailable
		}
	}

	body := errorBody{Error: err.Error(), Type: string(errors.GetType(err))}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Details = appErr.Context
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.ValidationError("invalid request body: " + err.Error())
	}
	return nil
}
