package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON matches lobby/internal/api/response.go's helper, adapted to a
// flat envelope: every JSON response carries "ok"; "error" is one of the
// closed string codes in internal/constants, or on a 400 the offending
// field's name or "invalid_body".
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error encoding response body", "error", err)
	}
}

func writeOK(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeFail renders a soft failure: HTTP 200, ok:false, error naming the
// business-rule reason (e.g. "invalid_or_expired").
func writeFail(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": code})
}

func writeErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}

func writeIgnored(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
}
