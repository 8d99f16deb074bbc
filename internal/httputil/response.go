package httputil

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pliu/prompthub/internal/domain"
)

// RespondJSON writes data as JSON with the given status. The payload is
// marshaled before any header is written so an encoding failure still
// yields a complete 500 response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// HandleError maps err to its status and public message. Errors that are
// not domain errors are logged and reported as 500.
func HandleError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := domain.StatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	RespondError(w, status, domain.PublicMessage(err))
}
