package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/atelierlabs/atelier/royalty"
)

// internalError logs the underlying error and returns a client-safe message.
func internalError(msg string, err error) string {
	if log != nil {
		log.Error(msg, "error", err)
	}
	return msg
}

// GetIPFromRequest extracts the client IP, honoring proxy headers.
func GetIPFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRoyaltyError maps royalty package errors onto HTTP status codes.
// Returns false if the error was not a known royalty error; the caller
// handles it as a 500.
func writeRoyaltyError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, royalty.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, royalty.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, royalty.ErrInsufficientClaimable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, royalty.ErrPersistenceConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		return false
	}
	return true
}
