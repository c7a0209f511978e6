package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/livninoam/workday/internal/service/devenv"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends a short human-readable reason.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeValidationError sends a 422 listing each rejected field.
func writeValidationError(w http.ResponseWriter, fields []devenv.FieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": "validation failed",
		"errors": fields,
	})
}
