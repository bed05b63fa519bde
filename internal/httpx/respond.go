package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-stock-ledger/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders {"error", "kind"} plus any stock quantities the error
// carries, with the status of its kind.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		log.Error("unclassified error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error", "kind": "INTERNAL"})
		return
	}
	code := e.Kind.HTTPStatus()
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
	body := map[string]any{"error": e.Message, "kind": e.Kind}
	for k, v := range e.Quantities {
		body[k] = v
	}
	writeJSON(w, code, body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid json")
	}
	return nil
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
