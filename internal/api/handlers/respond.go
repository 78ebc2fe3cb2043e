package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	errNoDatabase    = errors.New("no candle database configured")
	errMissingFile   = errors.New("file is required for a csv source")
	errUnknownSource = errors.New("source must be csv or db")
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
