// Package fiat fetches coin prices in fiat currencies.
package fiat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

const (
	coingeckoAPI  = "https://api.coingecko.com/api/v3"
	defaultCoinID = "bitcoin-sv"
)

// CoinGeckoClient client for CoinGecko API
type CoinGeckoClient struct {
	baseURL string
	coinID  string
	client  *http.Client
}

// NewCoinGeckoClient creates a new CoinGecko client. Empty values fall back
// to the public API and the BSV coin id.
func NewCoinGeckoClient(baseURL, coinID string, timeout time.Duration) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoAPI
	}
	if coinID == "" {
		coinID = defaultCoinID
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		coinID:  coinID,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// GetRates returns the coin price in USD, EUR and GBP. Currencies missing
// from the response are zero.
func (c *CoinGeckoClient) GetRates(ctx context.Context) (*models.FiatRates, error) {
	q := url.Values{}
	q.Set("ids", c.coinID)
	q.Set("vs_currencies", "usd,eur,gbp")
	target := fmt.Sprintf("%s/simple/price?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get rates: status %d", resp.StatusCode)
	}

	var prices map[string]models.FiatRates
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}
	rates := prices[c.coinID]
	return &rates, nil
}
