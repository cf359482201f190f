package records

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"sorted keys", `{"b":1,"a":{"d":true,"c":null}}`, `{"a":{"c":null,"d":true},"b":1}`},
		{"whitespace", "{ \"a\" : [ 1, 2 ] }\n", `{"a":[1,2]}`},
		{"numbers kept", `{"x":1.50,"y":12345678901234567890}`, `{"x":1.50,"y":12345678901234567890}`},
		{"no html escaping", `{"note":"<b>&</b>"}`, `{"note":"<b>&</b>"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalJSON([]byte(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	for _, bad := range []string{``, `{"a":`, `{} {}`} {
		if _, err := CanonicalJSON([]byte(bad)); err == nil {
			t.Errorf("CanonicalJSON(%q) should fail", bad)
		}
	}
}

func TestFormHash_KeyOrderIndependent(t *testing.T) {
	h1, err := FormHash([]byte(`{"resourceType":"Observation","value":98.6}`))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := FormHash([]byte(`{"value":98.6, "resourceType":"Observation"}`))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s vs %s", h1, h2)
	}
	sum := sha256.Sum256([]byte(`{"resourceType":"Observation","value":98.6}`))
	if h1 != hex.EncodeToString(sum[:]) {
		t.Errorf("hash = %s", h1)
	}
}

func TestNewPayload(t *testing.T) {
	signed := &models.SignedTransaction{TxID: "ab", RawHex: "0100"}
	p, err := NewPayload("02aa", signed, []byte(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.PubKey != "02aa" || p.TxID != "ab" || p.RawTx != "0100" {
		t.Errorf("payload = %+v", p)
	}
	if string(p.FormData) != `{"a":1,"b":2}` {
		t.Errorf("form data = %s", p.FormData)
	}
	want, _ := FormHash([]byte(`{"a":1,"b":2}`))
	if p.FormHash != want {
		t.Errorf("form hash = %s, want %s", p.FormHash, want)
	}

	if _, err := NewPayload("02aa", nil, []byte(`{}`)); err == nil {
		t.Error("missing tx should fail")
	}
	if _, err := NewPayload("", signed, []byte(`{}`)); err == nil {
		t.Error("missing pubkey should fail")
	}
}

func TestClient_Submit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/health/submit-fhir" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		for _, k := range []string{"pubKey", "txid", "rawTx", "formHash", "formData"} {
			if _, ok := body[k]; !ok {
				t.Errorf("missing %s in %v", k, body)
			}
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p, err := NewPayload("02aa", &models.SignedTransaction{TxID: "ab", RawHex: "0100"}, []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewClient(srv.URL+"/", 0).Submit(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"ok":true}` {
		t.Errorf("response = %s", out)
	}
}

func TestClient_SubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate txid", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Submit(context.Background(), &models.RecordPayload{TxID: "ab"})
	if err == nil || !strings.Contains(err.Error(), "duplicate txid") {
		t.Errorf("err = %v", err)
	}
}

func TestClient_Records(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/patient/records/02aa" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"txid":"ab"}]`))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, 0).Records(context.Background(), "02aa")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `[{"txid":"ab"}]` {
		t.Errorf("records = %s", out)
	}
}
