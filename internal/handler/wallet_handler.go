// Package handler serves the wallet to the portal UI over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/OKaluzny/healthchain-wallet/internal/records"
	"github.com/OKaluzny/healthchain-wallet/internal/session"
	"github.com/OKaluzny/healthchain-wallet/internal/wallet"
	"github.com/OKaluzny/healthchain-wallet/pkg/httputil"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

const (
	maxRequestBody   = 1 << 20
	defaultHDCount   = 5
	maxHDAddressList = 100
)

// Resubmitter broadcasts a stored signed transaction again.
type Resubmitter interface {
	Resubmit(ctx context.Context, txid string) (*models.SignedTransaction, error)
}

// WalletHandler exposes wallet management, the session and payments.
type WalletHandler struct {
	session *session.Session
	manager *session.Manager
	monitor *session.BalanceMonitor
	creds   *session.ChannelCredentials
	records *records.Client
	resub   Resubmitter
}

// NewWalletHandler creates a handler. rec may be nil, which disables
// the record routes.
func NewWalletHandler(s *session.Session, m *session.Manager, mon *session.BalanceMonitor,
	creds *session.ChannelCredentials, rec *records.Client, resub Resubmitter) *WalletHandler {
	return &WalletHandler{session: s, manager: m, monitor: mon, creds: creds, records: rec, resub: resub}
}

type createMnemonicRequest struct {
	Password string `json:"password"`
	Words    int    `json:"words"`
}

type importMnemonicRequest struct {
	Mnemonic string `json:"mnemonic"`
	Password string `json:"password"`
}

type importKeyRequest struct {
	Key      string `json:"key"` // hex or WIF
	Password string `json:"password"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type addressesRequest struct {
	Password string `json:"password"`
	Count    uint32 `json:"count"`
}

type rekeyRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type connectRequest struct {
	Kind    string `json:"kind"`
	Address string `json:"address,omitempty"`
}

type credentialRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type payRequest struct {
	models.PaymentRequest
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type signRequest struct {
	RawTx string `json:"raw_tx"`
}

type watchRequest struct {
	Address string `json:"address"`
}

type recordRequest struct {
	payRequest
	FormData json.RawMessage `json:"form_data"`
}

// WalletResponse is the public part of the stored wallet.
type WalletResponse struct {
	PubKey  string `json:"pubkey"`
	Address string `json:"address"`
	QR      string `json:"qr,omitempty"` // base64 PNG of the address
}

// SessionResponse is the session status with open credential requests.
type SessionResponse struct {
	*session.Status
	PendingCredentials []session.CredentialRequest `json:"pending_credentials,omitempty"`
}

// RecordResponse reports a paid and submitted record.
type RecordResponse struct {
	TxID     string          `json:"txid"`
	RawTx    string          `json:"rawTx"`
	FormHash string          `json:"formHash"`
	Backend  json.RawMessage `json:"backend,omitempty"`
}

// CreateMnemonicWallet handles POST /v1/wallet/mnemonic
// @Summary  Create a wallet from a new mnemonic
// @Tags     wallet
// @Accept   json
// @Produce  json
// @Success  201  {object}  session.CreatedWallet
// @Router   /v1/wallet/mnemonic [post]
func (h *WalletHandler) CreateMnemonicWallet(w http.ResponseWriter, r *http.Request) {
	var req createMnemonicRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Words == 0 {
		req.Words = 12
	}
	pw := []byte(req.Password)
	defer clear(pw)

	created, err := h.manager.CreateMnemonicWallet(r.Context(), pw, req.Words)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, created)
}

// ImportMnemonicWallet handles POST /v1/wallet/import
func (h *WalletHandler) ImportMnemonicWallet(w http.ResponseWriter, r *http.Request) {
	var req importMnemonicRequest
	if !decode(w, r, &req) {
		return
	}
	pw := []byte(req.Password)
	defer clear(pw)

	info, err := h.manager.ImportMnemonicWallet(r.Context(), req.Mnemonic, pw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, WalletResponse{PubKey: info.PubKey, Address: info.Address})
}

// ImportPrivateKey handles POST /v1/wallet/import-key
func (h *WalletHandler) ImportPrivateKey(w http.ResponseWriter, r *http.Request) {
	var req importKeyRequest
	if !decode(w, r, &req) {
		return
	}
	pw := []byte(req.Password)
	defer clear(pw)

	info, err := h.manager.ImportPrivateKey(r.Context(), req.Key, pw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, WalletResponse{PubKey: info.PubKey, Address: info.Address})
}

// CreateRandomWallet handles POST /v1/wallet/random
func (h *WalletHandler) CreateRandomWallet(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	pw := []byte(req.Password)
	defer clear(pw)

	info, err := h.manager.CreateRandomWallet(r.Context(), pw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, WalletResponse{PubKey: info.PubKey, Address: info.Address})
}

// Rekey handles POST /v1/wallet/rekey
func (h *WalletHandler) Rekey(w http.ResponseWriter, r *http.Request) {
	var req rekeyRequest
	if !decode(w, r, &req) {
		return
	}
	oldPw, newPw := []byte(req.OldPassword), []byte(req.NewPassword)
	defer clear(oldPw)
	defer clear(newPw)

	if err := h.manager.Rekey(r.Context(), oldPw, newPw); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DerivedAddresses handles POST /v1/wallet/addresses. The password is
// needed because the mnemonic is only kept in the vault.
func (h *WalletHandler) DerivedAddresses(w http.ResponseWriter, r *http.Request) {
	var req addressesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Count == 0 {
		req.Count = defaultHDCount
	}
	if req.Count > maxHDAddressList {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "count must be at most 100")
		return
	}
	pw := []byte(req.Password)
	defer clear(pw)

	list, err := h.manager.DerivedAddresses(r.Context(), pw, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, list)
}

// DeleteWallet handles DELETE /v1/wallet
func (h *WalletHandler) DeleteWallet(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteWallet(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWallet handles GET /v1/wallet
// @Summary  Stored wallet public key, address and receive QR
// @Tags     wallet
// @Produce  json
// @Success  200  {object}  WalletResponse
// @Router   /v1/wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	info, err := h.manager.Public(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := WalletResponse{PubKey: info.PubKey, Address: info.Address}
	if info.Address != "" {
		if qr, err := wallet.AddressQRBase64(info.Address); err == nil {
			resp.QR = qr
		}
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// GetWalletQR handles GET /v1/wallet/qr?size=256
func (h *WalletHandler) GetWalletQR(w http.ResponseWriter, r *http.Request) {
	info, err := h.manager.Public(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	size := 256
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > 1024 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_SIZE", "size must be between 64 and 1024")
			return
		}
		size = n
	}
	png, err := wallet.AddressQR(info.Address, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// Connect handles POST /v1/session/connect
func (h *WalletHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := session.ParseKind(req.Kind)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_KIND", err.Error())
		return
	}
	st, err := h.session.Connect(r.Context(), kind, req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, SessionResponse{Status: st})
}

// SupplyCredential handles POST /v1/session/credential
func (h *WalletHandler) SupplyCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !decode(w, r, &req) {
		return
	}
	pw := []byte(req.Password)
	defer clear(pw)

	if err := h.creds.Supply(req.ID, pw); err != nil {
		if errors.Is(err, session.ErrNoPendingRequest) {
			httputil.Error(w, http.StatusNotFound, "NO_PENDING_REQUEST", err.Error())
			return
		}
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Lock handles POST /v1/session/lock
func (h *WalletHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.session.Lock()
	h.GetSession(w, r)
}

// Disconnect handles POST /v1/session/disconnect
func (h *WalletHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.session.Disconnect(r.Context())
	h.GetSession(w, r)
}

// GetSession handles GET /v1/session
// @Summary  Session state, status message and open credential requests
// @Tags     session
// @Produce  json
// @Success  200  {object}  SessionResponse
// @Router   /v1/session [get]
func (h *WalletHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, SessionResponse{
		Status:             h.session.Status(),
		PendingCredentials: h.creds.Pending(),
	})
}

// GetBalances handles GET /v1/balances
func (h *WalletHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	st := h.session.Status()
	balances := st.Balances
	if balances == nil {
		balances = map[string]models.AddressBalance{}
	}
	httputil.JSON(w, http.StatusOK, models.BalanceEvent{Balances: balances, Message: st.LastMessage})
}

// RefreshBalances handles POST /v1/balances/refresh. A failed refresh is
// reported in the body, not as an HTTP error.
func (h *WalletHandler) RefreshBalances(w http.ResponseWriter, r *http.Request) {
	if !h.session.Connected() {
		writeError(w, r, models.ErrSessionLocked)
		return
	}
	httputil.JSON(w, http.StatusOK, h.monitor.Refresh(r.Context()))
}

// WatchAddress handles POST /v1/watch
func (h *WalletHandler) WatchAddress(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if !decode(w, r, &req) {
		return
	}
	addr, err := wallet.ParseRecipient(req.Address, h.manager.Network())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.monitor.WatchAddress(r.Context(), addr.EncodeAddress()); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, watchRequest{Address: addr.EncodeAddress()})
}

// UnwatchAddress handles DELETE /v1/watch/{address}
func (h *WalletHandler) UnwatchAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.UnwatchAddress(r.Context(), chi.URLParam(r, "address")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pay handles POST /v1/pay. The request blocks while the session waits for
// a credential.
// @Summary  Pay satoshis to an address or public key
// @Tags     payments
// @Accept   json
// @Produce  json
// @Success  200  {object}  models.SignedTransaction
// @Failure  502  {object}  httputil.ErrorResponse  "broadcast failed, rawTx included"
// @Router   /v1/pay [post]
func (h *WalletHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !decode(w, r, &req) {
		return
	}
	signed, err := h.pay(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, signed)
}

func (h *WalletHandler) pay(r *http.Request, req payRequest) (*models.SignedTransaction, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}
	return h.session.Pay(r.Context(), session.PayRequest{
		IdempotencyKey: key,
		Recipient:      req.Recipient,
		Amount:         req.Amount,
	})
}

// Resubmit handles POST /v1/tx/{txid}/resubmit for payments whose broadcast
// failed.
func (h *WalletHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	signed, err := h.resub.Resubmit(r.Context(), chi.URLParam(r, "txid"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, signed)
}

// Sign handles POST /v1/sign
func (h *WalletHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if !decode(w, r, &req) {
		return
	}
	signed, err := h.session.Sign(r.Context(), req.RawTx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, signed)
}

// History handles GET /v1/history
func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	hist, err := h.session.History(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hist == nil {
		hist = []models.HistoryEntry{}
	}
	httputil.JSON(w, http.StatusOK, hist)
}

// SubmitRecord handles POST /v1/records: pay for the record, then hand the
// payload to the backend.
func (h *WalletHandler) SubmitRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.FormData) == 0 {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "form_data is required")
		return
	}
	if _, err := records.CanonicalJSON(req.FormData); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	signed, err := h.pay(r, req.payRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := records.NewPayload(h.session.Status().PubKey, signed, req.FormData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	backend, err := h.records.Submit(r.Context(), payload)
	if err != nil {
		httputil.JSON(w, http.StatusBadGateway, httputil.ErrorResponse{
			Code:    "RECORD_SUBMIT_FAILED",
			Message: err.Error(),
			TxID:    signed.TxID,
			RawTx:   signed.RawHex,
		})
		return
	}
	httputil.JSON(w, http.StatusOK, RecordResponse{
		TxID:     payload.TxID,
		RawTx:    payload.RawTx,
		FormHash: payload.FormHash,
		Backend:  backend,
	})
}

// ListRecords handles GET /v1/records: the backend's records for the
// connected public key.
func (h *WalletHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	st := h.session.Status()
	if st.PubKey == "" {
		writeError(w, r, models.ErrSessionLocked)
		return
	}
	list, err := h.records.Records(r.Context(), st.PubKey)
	if err != nil {
		httputil.Error(w, http.StatusBadGateway, "RECORDS_FETCH_FAILED", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(list)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return false
	}
	return true
}
