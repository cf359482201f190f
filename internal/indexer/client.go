// Package indexer talks to a WhatsOnChain-compatible ledger indexer.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
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

// BroadcastMode selects the broadcast endpoint and body shape.
type BroadcastMode string

const (
	// ModeARC posts {"rawtx": hex} to the broadcast URL.
	ModeARC BroadcastMode = "arc"
	// ModeIndexer posts {"txhex": hex} to {base}/tx/raw.
	ModeIndexer BroadcastMode = "indexer"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Config holds the indexer endpoints.
type Config struct {
	BaseURL      string // e.g. https://api.whatsonchain.com/v1/bsv/main
	BroadcastURL string // used in ModeARC
	Mode         BroadcastMode
	Timeout      time.Duration
}

// Client is a WhatsOnChain-compatible HTTP client.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates an indexer client with a traced transport.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeARC
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default().With("component", "indexer"),
	}
}

// ListUnspent returns the spendable outputs of address in indexer order.
func (c *Client) ListUnspent(ctx context.Context, address string) ([]models.UnspentOutput, error) {
	var out []models.UnspentOutput
	if err := c.getJSON(ctx, "/address/"+url.PathEscape(address)+"/unspent", &out); err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}
	return out, nil
}

// Balance returns the confirmed and unconfirmed balance of address.
func (c *Client) Balance(ctx context.Context, address string) (*models.Balance, error) {
	var out models.Balance
	if err := c.getJSON(ctx, "/address/"+url.PathEscape(address)+"/balance", &out); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return &out, nil
}

// History returns the transactions touching address.
func (c *Client) History(ctx context.Context, address string) ([]models.HistoryEntry, error) {
	var out []models.HistoryEntry
	if err := c.getJSON(ctx, "/address/"+url.PathEscape(address)+"/history", &out); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return out, nil
}

// RawTransaction returns the raw hex of txid.
func (c *Client) RawTransaction(ctx context.Context, txid string) (string, error) {
	body, status, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/tx/"+url.PathEscape(txid)+"/hex", nil)
	if err != nil {
		return "", fmt.Errorf("raw transaction: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("raw transaction %s: status %d", txid, status)
	}
	return strings.Trim(strings.TrimSpace(string(body)), `"`), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, status, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, status, truncate(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, payload any) ([]byte, int, error) {
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte) string {
	const n = 256
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
