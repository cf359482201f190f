package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/OKaluzny/healthchain-wallet/pkg/httputil"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{models.ErrInvalidMnemonic, http.StatusBadRequest, "INVALID_MNEMONIC"},
	{models.ErrInvalidAddress, http.StatusBadRequest, "INVALID_ADDRESS"},
	{models.ErrInvalidKey, http.StatusBadRequest, "INVALID_KEY"},
	{models.ErrDecryptionFailed, http.StatusUnauthorized, "DECRYPTION_FAILED"},
	{models.ErrWalletNotFound, http.StatusNotFound, "WALLET_NOT_FOUND"},
	{models.ErrTxNotFound, http.StatusNotFound, "TX_NOT_FOUND"},
	{models.ErrAddressNotWatched, http.StatusNotFound, "NOT_WATCHED"},
	{models.ErrSessionLocked, http.StatusConflict, "NO_WALLET_CONNECTED"},
	{models.ErrUnsupportedOperation, http.StatusConflict, "UNSUPPORTED_OPERATION"},
	{models.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
	{models.ErrSigningFailed, http.StatusUnprocessableEntity, "SIGNING_FAILED"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
	{context.Canceled, http.StatusRequestTimeout, "CANCELED"},
}

// writeError maps err to a status and code. Unknown errors are logged and
// reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var be *models.BroadcastError
	if errors.As(err, &be) {
		slog.WarnContext(r.Context(), "broadcast failed", "status", be.Status, "error", err)
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{
			Code:    "BROADCAST_FAILED",
			Message: be.Error(),
			RawTx:   be.RawTx,
		})
		return
	}

	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			httputil.Error(w, e.status, e.code, err.Error())
			return
		}
	}

	slog.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
