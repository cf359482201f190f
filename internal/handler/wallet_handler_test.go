package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OKaluzny/healthchain-wallet/internal/records"
	"github.com/OKaluzny/healthchain-wallet/internal/session"
	"github.com/OKaluzny/healthchain-wallet/internal/storage"
	"github.com/OKaluzny/healthchain-wallet/internal/tx"
	"github.com/OKaluzny/healthchain-wallet/internal/wallet"
	"github.com/OKaluzny/healthchain-wallet/pkg/httputil"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

const recipient = "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"

// mockPayer implements session.Payer for testing.
type mockPayer struct {
	err error
}

func (m *mockPayer) Pay(_ context.Context, req tx.PayRequest) (*models.SignedTransaction, error) {
	signed := &models.SignedTransaction{TxID: strings.Repeat("cd", 32), RawHex: "01000000ff"}
	return signed, m.err
}

type mockResubmitter struct{}

func (mockResubmitter) Resubmit(_ context.Context, txid string) (*models.SignedTransaction, error) {
	if txid != strings.Repeat("cd", 32) {
		return nil, models.ErrTxNotFound
	}
	return &models.SignedTransaction{TxID: txid, RawHex: "01000000ff"}, nil
}

type mockSigner struct{}

func (mockSigner) SignRaw(_ context.Context, rawHex string, _ *models.KeyMaterial, _ tx.PrevTxFetcher) (*models.SignedTransaction, error) {
	return &models.SignedTransaction{RawHex: rawHex + "00"}, nil
}

type mockLedger struct{}

func (mockLedger) Balance(context.Context, string) (*models.Balance, error) {
	return &models.Balance{Confirmed: 100_000_000}, nil
}

func (mockLedger) History(context.Context, string) ([]models.HistoryEntry, error) {
	return []models.HistoryEntry{{TxID: strings.Repeat("ef", 32), Height: 10}}, nil
}

func (mockLedger) RawTransaction(context.Context, string) (string, error) {
	return "", nil
}

type mockRates struct{}

func (mockRates) GetRates(context.Context) (*models.FiatRates, error) {
	return &models.FiatRates{USD: 50}, nil
}

type testServer struct {
	srv     *httptest.Server
	payer   *mockPayer
	creds   *session.ChannelCredentials
	backend *httptest.Server
	got     chan models.RecordPayload
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		payer: &mockPayer{},
		creds: session.NewChannelCredentials(1),
		got:   make(chan models.RecordPayload, 1),
	}
	ts.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
			return
		}
		var p models.RecordPayload
		json.NewDecoder(r.Body).Decode(&p)
		ts.got <- p
		w.Write([]byte(`{"stored":true}`))
	}))
	t.Cleanup(ts.backend.Close)

	kv := storage.NewMemoryKV()
	wallets := storage.NewWalletStore(kv)
	sess := session.New(session.Deps{
		Network:     models.NetworkMain,
		Wallets:     wallets,
		Credentials: ts.creds,
		Payer:       ts.payer,
		Signer:      mockSigner{},
		Ledger:      mockLedger{},
		Rates:       mockRates{},
	})
	mgr := session.NewManager(wallets, sess, models.NetworkMain, wallet.SchemeSeedPrefix)
	mon := session.NewBalanceMonitor(sess, storage.NewKVWatchStore(kv), 0)
	h := NewWalletHandler(sess, mgr, mon, ts.creds, records.NewClient(ts.backend.URL, 0), mockResubmitter{})

	ts.srv = httptest.NewServer(NewRouter(h))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) send(method, path string, body any) (*http.Response, error) {
	var raw []byte
	switch b := body.(type) {
	case nil:
	case string:
		raw = []byte(b)
	default:
		var err error
		if raw, err = json.Marshal(b); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return http.DefaultClient.Do(req)
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	resp, err := ts.send(method, path, body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code string) httputil.ErrorResponse {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("status = %d, want %d", resp.StatusCode, status)
	}
	e := decodeBody[httputil.ErrorResponse](t, resp)
	if e.Code != code {
		t.Errorf("code = %s, want %s (%s)", e.Code, code, e.Message)
	}
	return e
}

func TestCreateMnemonicWallet(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/wallet/mnemonic", map[string]any{"password": "pw", "words": 12})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decodeBody[session.CreatedWallet](t, resp)
	if len(strings.Fields(created.Mnemonic)) != 12 || created.Address == "" {
		t.Errorf("created = %+v", created)
	}

	w := decodeBody[WalletResponse](t, ts.do(t, http.MethodGet, "/v1/wallet", nil))
	if w.Address != created.Address || w.PubKey != created.PubKey || w.QR == "" {
		t.Errorf("wallet = %+v", w)
	}

	st := decodeBody[SessionResponse](t, ts.do(t, http.MethodGet, "/v1/session", nil))
	if st.State != session.StateActive || st.LastMessage != "Connected via local" {
		t.Errorf("session = %+v", st.Status)
	}

	resp = ts.do(t, http.MethodGet, "/v1/wallet/qr?size=128", nil)
	if ct := resp.Header.Get("Content-Type"); resp.StatusCode != http.StatusOK || ct != "image/png" {
		t.Errorf("qr: status %d, content type %s", resp.StatusCode, ct)
	}
}

func TestWalletErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/v1/wallet/import", "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad mnemonic", http.MethodPost, "/v1/wallet/import", map[string]string{"mnemonic": "one two three", "password": "pw"}, http.StatusBadRequest, "INVALID_MNEMONIC"},
		{"bad word count", http.MethodPost, "/v1/wallet/mnemonic", map[string]any{"password": "pw", "words": 13}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad key", http.MethodPost, "/v1/wallet/import-key", map[string]string{"key": "zz", "password": "pw"}, http.StatusBadRequest, "INVALID_KEY"},
		{"no wallet", http.MethodGet, "/v1/wallet", nil, http.StatusNotFound, "WALLET_NOT_FOUND"},
		{"connect without wallet", http.MethodPost, "/v1/session/connect", map[string]string{"kind": "local"}, http.StatusNotFound, "WALLET_NOT_FOUND"},
		{"unknown kind", http.MethodPost, "/v1/session/connect", map[string]string{"kind": "metanet"}, http.StatusBadRequest, "INVALID_KIND"},
		{"pay disconnected", http.MethodPost, "/v1/pay", map[string]any{"to": recipient, "satoshis": 10}, http.StatusConflict, "NO_WALLET_CONNECTED"},
		{"history disconnected", http.MethodGet, "/v1/history", nil, http.StatusConflict, "NO_WALLET_CONNECTED"},
		{"stale credential", http.MethodPost, "/v1/session/credential", map[string]string{"id": "nope", "password": "pw"}, http.StatusNotFound, "NO_PENDING_REQUEST"},
		{"watch bad address", http.MethodPost, "/v1/watch", map[string]string{"address": "xyz"}, http.StatusBadRequest, "INVALID_ADDRESS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, ts.do(t, tt.method, tt.path, tt.body), tt.status, tt.code)
		})
	}
}

func TestPay_BroadcastFailureCarriesRawTx(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/wallet/random", map[string]string{"password": "pw"})

	resp := ts.do(t, http.MethodPost, "/v1/pay", map[string]any{"to": recipient, "satoshis": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	signed := decodeBody[models.SignedTransaction](t, resp)
	if signed.RawHex != "01000000ff" {
		t.Errorf("signed = %+v", signed)
	}

	ts.payer.err = &models.BroadcastError{Status: 400, Body: `{"error":"missing inputs"}`, RawTx: "01000000ff"}
	e := expectError(t, ts.do(t, http.MethodPost, "/v1/pay", map[string]any{"to": recipient, "satoshis": 10}), http.StatusBadGateway, "BROADCAST_FAILED")
	if e.RawTx != "01000000ff" || !strings.Contains(e.Message, "missing inputs") {
		t.Errorf("error = %+v", e)
	}
}

func TestWatchOnlySession(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/session/connect", map[string]string{"kind": "watch-only", "address": recipient})
	st := decodeBody[SessionResponse](t, resp)
	if st.Kind != session.KindWatchOnly || st.Address != recipient {
		t.Fatalf("session = %+v", st.Status)
	}

	expectError(t, ts.do(t, http.MethodPost, "/v1/pay", map[string]any{"to": recipient, "satoshis": 10}), http.StatusConflict, "UNSUPPORTED_OPERATION")
	expectError(t, ts.do(t, http.MethodPost, "/v1/sign", map[string]string{"raw_tx": "0100"}), http.StatusConflict, "UNSUPPORTED_OPERATION")

	ev := decodeBody[models.BalanceEvent](t, ts.do(t, http.MethodPost, "/v1/balances/refresh", nil))
	if ev.Failed || ev.Balances[recipient].Sats != 100_000_000 || ev.Balances[recipient].USD != 50 {
		t.Errorf("refresh = %+v", ev)
	}
	bal := decodeBody[models.BalanceEvent](t, ts.do(t, http.MethodGet, "/v1/balances", nil))
	if bal.Balances[recipient].BSV != 1 {
		t.Errorf("balances = %+v", bal)
	}

	hist := decodeBody[[]models.HistoryEntry](t, ts.do(t, http.MethodGet, "/v1/history", nil))
	if len(hist) != 1 {
		t.Errorf("history = %+v", hist)
	}

	st = decodeBody[SessionResponse](t, ts.do(t, http.MethodPost, "/v1/session/disconnect", nil))
	if st.State != session.StateDisconnected || st.LastMessage != "Wallet disconnected" {
		t.Errorf("after disconnect = %+v", st.Status)
	}
}

func TestSign_CredentialFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/wallet/random", map[string]string{"password": "pw"})
	st := decodeBody[SessionResponse](t, ts.do(t, http.MethodPost, "/v1/session/lock", nil))
	if st.State != session.StateLocked {
		t.Fatalf("state = %s", st.State)
	}

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := ts.send(http.MethodPost, "/v1/sign", map[string]string{"raw_tx": "0100"})
		done <- result{resp, err}
	}()

	req := <-ts.creds.Requests()
	pending := decodeBody[SessionResponse](t, ts.do(t, http.MethodGet, "/v1/session", nil))
	if len(pending.PendingCredentials) != 1 || pending.PendingCredentials[0].ID != req.ID {
		t.Errorf("pending = %+v", pending.PendingCredentials)
	}
	resp := ts.do(t, http.MethodPost, "/v1/session/credential", map[string]string{"id": req.ID, "password": "pw"})
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("credential status = %d", resp.StatusCode)
	}

	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	defer res.resp.Body.Close()
	resp = res.resp
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign status = %d", resp.StatusCode)
	}
	if signed := decodeBody[models.SignedTransaction](t, resp); signed.RawHex != "010000" {
		t.Errorf("signed = %+v", signed)
	}
}

func TestDerivedAddresses(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/wallet/mnemonic", map[string]any{"password": "pw"})

	resp := ts.do(t, http.MethodPost, "/v1/wallet/addresses", map[string]any{"password": "pw", "count": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	list := decodeBody[[]models.DerivedAddress](t, resp)
	if len(list) != 2 || list[1].DerivationPath != wallet.DerivationPath(1) {
		t.Errorf("addresses = %+v", list)
	}

	expectError(t, ts.do(t, http.MethodPost, "/v1/wallet/addresses", map[string]any{"password": "pw", "count": 500}), http.StatusBadRequest, "INVALID_REQUEST")
	expectError(t, ts.do(t, http.MethodPost, "/v1/wallet/addresses", map[string]any{"password": "nope"}), http.StatusUnauthorized, "DECRYPTION_FAILED")
}

func TestRekeyAndDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/wallet/random", map[string]string{"password": "old"})

	expectError(t, ts.do(t, http.MethodPost, "/v1/wallet/rekey", map[string]string{"old_password": "bad", "new_password": "new"}), http.StatusUnauthorized, "DECRYPTION_FAILED")
	if resp := ts.do(t, http.MethodPost, "/v1/wallet/rekey", map[string]string{"old_password": "old", "new_password": "new"}); resp.StatusCode != http.StatusNoContent {
		t.Errorf("rekey status = %d", resp.StatusCode)
	}

	if resp := ts.do(t, http.MethodDelete, "/v1/wallet", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	expectError(t, ts.do(t, http.MethodGet, "/v1/wallet", nil), http.StatusNotFound, "WALLET_NOT_FOUND")
}

func TestWatchAddress(t *testing.T) {
	ts := newTestServer(t)
	pub := "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	resp := ts.do(t, http.MethodPost, "/v1/watch", map[string]string{"address": pub})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := decodeBody[watchRequest](t, resp); got.Address != recipient {
		t.Errorf("watched %s, want %s", got.Address, recipient)
	}
	if resp := ts.do(t, http.MethodDelete, "/v1/watch/"+recipient, nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("unwatch status = %d", resp.StatusCode)
	}
	expectError(t, ts.do(t, http.MethodDelete, "/v1/watch/"+recipient, nil), http.StatusNotFound, "NOT_WATCHED")
}

func TestSubmitRecord(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/v1/wallet/random", map[string]string{"password": "pw"})
	w := decodeBody[WalletResponse](t, ts.do(t, http.MethodGet, "/v1/wallet", nil))

	resp := ts.do(t, http.MethodPost, "/v1/records", map[string]any{
		"to":        recipient,
		"satoshis":  10,
		"form_data": map[string]any{"resourceType": "Observation", "value": 37.2},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	rec := decodeBody[RecordResponse](t, resp)
	want, _ := records.FormHash([]byte(`{"resourceType":"Observation","value":37.2}`))
	if rec.FormHash != want || rec.TxID != strings.Repeat("cd", 32) {
		t.Errorf("record = %+v", rec)
	}

	sent := <-ts.got
	if sent.PubKey != w.PubKey || sent.FormHash != want || sent.RawTx != "01000000ff" {
		t.Errorf("backend got %+v", sent)
	}

	expectError(t, ts.do(t, http.MethodPost, "/v1/records", map[string]any{"to": recipient, "satoshis": 10}), http.StatusBadRequest, "INVALID_REQUEST")

	list := decodeBody[map[string]string](t, ts.do(t, http.MethodGet, "/v1/records", nil))
	if list["path"] != "/patient/records/"+w.PubKey {
		t.Errorf("records request went to %q", list["path"])
	}
}

func TestResubmit(t *testing.T) {
	ts := newTestServer(t)
	txid := strings.Repeat("cd", 32)

	signed := decodeBody[models.SignedTransaction](t, ts.do(t, http.MethodPost, "/v1/tx/"+txid+"/resubmit", nil))
	if signed.TxID != txid {
		t.Errorf("signed = %+v", signed)
	}
	expectError(t, ts.do(t, http.MethodPost, "/v1/tx/"+strings.Repeat("00", 32)+"/resubmit", nil), http.StatusNotFound, "TX_NOT_FOUND")
}

func TestSwaggerDoc(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/swagger/doc.json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	doc := decodeBody[map[string]any](t, resp)
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/v1/pay"]; !ok {
		t.Error("doc should describe /v1/pay")
	}
}
