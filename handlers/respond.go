package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/CrowderSoup/tasklist/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the store's error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is logged in full and surfaced as an
// opaque 500 so engine internals never leak to callers.
func writeStoreError(w http.ResponseWriter, logger *log.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrInvalid):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		logger.Error("store operation failed", "err", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
