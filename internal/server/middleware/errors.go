package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/agora-social/agora-admin/internal/model"
)

// WriteError writes the standard error envelope. Handlers in this module use
// the same shape.
func WriteError(w http.ResponseWriter, status int, message string, ctx map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{ //nolint:errcheck
		Error: model.ErrorDetail{
			Code:    status,
			Message: message,
			Context: ctx,
		},
	})
}
