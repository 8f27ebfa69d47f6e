// Package httpapi is the thin HTTP surface around the key manager: the
// public-key resolution endpoint every participating service serves, plus the
// client-side helpers (token extraction, outbound request signing).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/tokman/internal/observability/logger"
	"github.com/dropDatabas3/tokman/internal/resolver"
)

// KeySource is what the endpoint needs from the manager.
type KeySource interface {
	PublicKeyPEM(ctx context.Context, kid string) ([]byte, error)
}

type keyResponse struct {
	PublicKey string `json:"public_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter builds the service router: GET /v1/keys?kid= serving local public
// keys, and /healthz.
func NewRouter(src KeySource) chi.Router {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging)

	r.Get("/v1/keys", handleKeys(src))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// handleKeys serves {"public_key": "<PEM>"} for a local kid. Unknown or
// store-expired kids are 404; peers treat that as a failed resolution.
func handleKeys(src KeySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kid := r.URL.Query().Get("kid")
		if kid == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "kid parameter required"})
			return
		}

		pem, err := src.PublicKeyPEM(r.Context(), kid)
		if errors.Is(err, resolver.ErrKeyNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown kid"})
			return
		}
		if err != nil {
			logger.From(r.Context()).Error("public key lookup failed", logger.KID(kid), logger.Err(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, keyResponse{PublicKey: string(pem)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
