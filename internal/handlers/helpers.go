package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/ternarybob/jobscout/internal/common"
)

type contextKey string

const ownerKey contextKey = "owner"

// WithOwner stamps the authenticated (or derived anonymous) owner ID
// onto the request context. The auth middleware is the only writer.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// Owner returns the owner ID for the request, empty when none was set.
func Owner(r *http.Request) string {
	if v, ok := r.Context().Value(ownerKey).(string); ok {
		return v
	}
	return ""
}

// ClientIP extracts the remote IP, trusting X-Forwarded-For's first hop
// when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, common.ErrInvalidInput("method not allowed"))
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the classified error as JSON. Internal errors are
// masked with a generic message so nothing leaks.
func WriteError(w http.ResponseWriter, err error) error {
	kind := common.KindOf(err)
	message := err.Error()
	if kind == common.KindInternal {
		message = "internal error"
	}
	return WriteJSON(w, kind.HTTPStatus(), map[string]string{
		"status": "error",
		"code":   string(kind),
		"error":  message,
	})
}
