package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/pewpi-infinity/spark/internal/generator"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/site"
	"github.com/pewpi-infinity/spark/internal/storage"
	"github.com/pewpi-infinity/spark/internal/workflow"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeError maps a domain error onto the error envelope.
func writeError(w http.ResponseWriter, err error, action string) {
	code, errType := http.StatusInternalServerError, "api_error"
	var genErr *generator.Error
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code, errType = http.StatusNotFound, "not_found"
	case errors.Is(err, workflow.ErrEmptyQuery),
		errors.Is(err, workflow.ErrNoStructure),
		errors.Is(err, site.ErrInvalidConfig):
		code, errType = http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, workflow.ErrSearchInFlight),
		errors.Is(err, publish.ErrNotPublished):
		code, errType = http.StatusConflict, "conflict_error"
	case errors.Is(err, publish.ErrCredentialMissing):
		code, errType = http.StatusPreconditionFailed, "credential_error"
	case errors.Is(err, publish.ErrCredentialRejected):
		code, errType = http.StatusForbidden, "credential_error"
	case errors.As(err, &genErr):
		code = http.StatusBadGateway
	}
	httpError(w, code, errType, "%s: %v", action, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
