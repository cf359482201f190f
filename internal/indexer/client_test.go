package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

const sampleTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestClient_ListUnspent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/address/1abc/unspent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"height":800000,"tx_pos":1,"tx_hash":"` + sampleTxID + `","value":1500},{"height":0,"tx_pos":0,"tx_hash":"` + sampleTxID + `","value":20}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	utxos, err := c.ListUnspent(context.Background(), "1abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(utxos) != 2 {
		t.Fatalf("got %d utxos", len(utxos))
	}
	if utxos[0].TxID != sampleTxID || utxos[0].Vout != 1 || utxos[0].Value != 1500 || utxos[0].Height != 800000 {
		t.Errorf("utxo[0] = %+v", utxos[0])
	}
}

func TestClient_BalanceAndHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/address/1abc/balance":
			w.Write([]byte(`{"confirmed":1000,"unconfirmed":-200}`))
		case "/address/1abc/history":
			w.Write([]byte(`[{"tx_hash":"` + sampleTxID + `","height":12}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	bal, err := c.Balance(context.Background(), "1abc")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Confirmed != 1000 || bal.Unconfirmed != -200 || bal.Total() != 800 {
		t.Errorf("balance = %+v", bal)
	}

	hist, err := c.History(context.Background(), "1abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].TxID != sampleTxID || hist[0].Height != 12 {
		t.Errorf("history = %+v", hist)
	}

	if _, err := c.Balance(context.Background(), "1missing"); err == nil {
		t.Error("404 should be an error")
	}
}

func TestClient_RawTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tx/"+sampleTxID+"/hex" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("0100000000\n"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	raw, err := c.RawTransaction(context.Background(), sampleTxID)
	if err != nil {
		t.Fatal(err)
	}
	if raw != "0100000000" {
		t.Errorf("raw = %q", raw)
	}
}

func TestClient_Broadcast(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantTxID string
		wantErr  bool
	}{
		{"txid field", 200, `{"txid":"` + sampleTxID + `"}`, sampleTxID, false},
		{"result field", 200, `{"result":"` + sampleTxID + `"}`, sampleTxID, false},
		{"data.txid", 200, `{"data":{"txid":"` + sampleTxID + `"}}`, sampleTxID, false},
		{"bare json string", 200, `"` + sampleTxID + `"`, sampleTxID, false},
		{"error object", 200, `{"error":"missing inputs"}`, "", true},
		{"http error", 400, `{"txid":"` + sampleTxID + `"}`, "", true},
		{"non-txid string", 200, `"ok"`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				var body map[string]string
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Error(err)
				}
				if body["rawtx"] != "deadbeef" {
					t.Errorf("body = %v", body)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BroadcastURL: srv.URL, Mode: ModeARC})
			txid, err := c.Broadcast(context.Background(), "deadbeef")
			if tt.wantErr {
				var be *models.BroadcastError
				if !errors.As(err, &be) {
					t.Fatalf("err = %v, want *BroadcastError", err)
				}
				if be.RawTx != "deadbeef" || be.Body != tt.body {
					t.Errorf("broadcast error = %+v", be)
				}
				if !errors.Is(err, models.ErrBroadcast) {
					t.Error("should match ErrBroadcast")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if txid != tt.wantTxID {
				t.Errorf("txid = %s, want %s", txid, tt.wantTxID)
			}
		})
	}
}

func TestClient_BroadcastIndexerMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tx/raw" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["txhex"] != "cafe" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(`"` + sampleTxID + `"`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Mode: ModeIndexer})
	txid, err := c.Broadcast(context.Background(), "cafe")
	if err != nil {
		t.Fatal(err)
	}
	if txid != sampleTxID {
		t.Errorf("txid = %s", txid)
	}
}

func TestClient_BroadcastTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BroadcastURL: url})
	_, err := c.Broadcast(context.Background(), "beef")
	var be *models.BroadcastError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BroadcastError", err)
	}
	if be.Err == nil || be.RawTx != "beef" {
		t.Errorf("broadcast error = %+v", be)
	}
	if !strings.Contains(be.Error(), "broadcast failed") {
		t.Errorf("message = %s", be.Error())
	}
}
