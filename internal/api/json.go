package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// maxJSONBody caps request bodies for the JSON endpoints.
const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// writeTagged writes v with the archive checksum as a strong ETag, so the
// next edit can send it back in If-Match.
func writeTagged(w http.ResponseWriter, status int, checksum string, v any) {
	if checksum != "" {
		w.Header().Set("ETag", `"`+checksum+`"`)
	}
	writeJSON(w, status, v)
}

// decodeJSON reads one JSON object into dst. On failure it writes a 400 and
// returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(codeInvalidInput, "invalid JSON body"))
		return false
	}
	return true
}

// Error codes carried next to the human-readable message.
const (
	codeInvalidInput = "invalid_input"
	codeNotFound     = "not_found"
	codeUnknownID    = "unknown_id"
	codeConflict     = "checksum_mismatch"
	codeDuplicateID  = "duplicate_id"
	codeExists       = "already_exists"
	codeArchive      = "unreadable_archive"
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal"
)

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

func errorBody(code, msg string) errResponse {
	return errResponse{Error: msg, Code: code}
}
