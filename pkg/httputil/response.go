// Package httputil writes JSON responses.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of every error answer. RawTx is set when a
// signed transaction could not be broadcast, so the caller can resubmit it.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TxID    string `json:"txid,omitempty"`
	RawTx   string `json:"rawTx,omitempty"`
}

// JSON writes data with status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent
			slog.Error("encode response", "error", err)
		}
	}
}

// Error writes an ErrorResponse.
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{Code: code, Message: message})
}
