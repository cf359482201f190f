// Package records hands paid health-record submissions to the portal backend.
package records

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

const submitPath = "/api/health/submit-fhir"

// CanonicalJSON re-encodes raw with object keys sorted and no HTML
// escaping, so equal forms hash equally whatever their key order.
func CanonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode form data: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode form data: trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode form data: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FormHash is the hex SHA-256 of the canonical form data.
func FormHash(formData []byte) (string, error) {
	canon, err := CanonicalJSON(formData)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// NewPayload builds the submission for a paid transaction.
func NewPayload(pubKey string, signed *models.SignedTransaction, formData []byte) (*models.RecordPayload, error) {
	if signed == nil || signed.TxID == "" {
		return nil, errors.New("payload needs a signed transaction")
	}
	if pubKey == "" {
		return nil, errors.New("payload needs a public key")
	}
	canon, err := CanonicalJSON(formData)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canon)
	return &models.RecordPayload{
		PubKey:   pubKey,
		TxID:     signed.TxID,
		RawTx:    signed.RawHex,
		FormHash: hex.EncodeToString(sum[:]),
		FormData: canon,
	}, nil
}

// Client posts payloads to the portal backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default().With("component", "records"),
	}
}

// Submit posts p and returns the backend's JSON answer.
func (c *Client) Submit(ctx context.Context, p *models.RecordPayload) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	out, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit data: %w", err)
	}
	c.logger.InfoContext(ctx, "record submitted", "txid", p.TxID, "form_hash", p.FormHash)
	return out, nil
}

// Records lists the records the backend holds for pubKey.
func (c *Client) Records(ctx context.Context, pubKey string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/patient/records/"+url.PathEscape(pubKey), nil)
	if err != nil {
		return nil, err
	}
	out, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	return out, nil
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, errors.New("backend answered with invalid JSON")
	}
	return body, nil
}
