package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pliu/prompthub/internal/domain"
)

// MaxJSONBytes caps JSON request bodies.
const MaxJSONBytes = 1 << 20

// ParseJSON decodes the request body into dest. Malformed or oversized
// bodies are reported as ValidationErrors.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBytes)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &domain.ValidationError{Message: "Request body too large"}
		}
		return &domain.ValidationError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// PathID parses the named route variable as a positive id. An unparsable
// id is reported the same way as a missing resource.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.NotFoundError{Message: "Project not found"}
	}
	return id, nil
}
