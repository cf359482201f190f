package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// Broadcast submits rawHex and returns the accepted txid. It succeeds only
// on a 2xx response that names a txid. Anything else is a
// *models.BroadcastError carrying the response body and rawHex.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	target, payload := c.cfg.BroadcastURL, any(map[string]string{"rawtx": rawHex})
	if c.cfg.Mode == ModeIndexer {
		target, payload = c.cfg.BaseURL+"/tx/raw", map[string]string{"txhex": rawHex}
	}

	body, status, err := c.do(ctx, http.MethodPost, target, payload)
	if err != nil {
		return "", &models.BroadcastError{Status: status, RawTx: rawHex, Err: err}
	}
	if status < 200 || status > 299 {
		return "", &models.BroadcastError{Status: status, Body: string(body), RawTx: rawHex}
	}

	txid := extractTxID(body)
	if txid == "" {
		return "", &models.BroadcastError{Status: status, Body: string(body), RawTx: rawHex}
	}
	c.logger.Info("broadcast accepted", "txid", txid, "mode", string(c.cfg.Mode))
	return txid, nil
}

// extractTxID looks for txid, result or data.txid, or a bare txid string.
func extractTxID(body []byte) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		if isTxID(s) {
			return s
		}
		return ""
	}

	var resp struct {
		TxID   string `json:"txid"`
		Result any    `json:"result"`
		Data   struct {
			TxID string `json:"txid"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		// some indexers answer with the txid as plain text
		if t := strings.TrimSpace(string(body)); isTxID(t) {
			return t
		}
		return ""
	}
	if resp.TxID != "" {
		return resp.TxID
	}
	if r, ok := resp.Result.(string); ok && r != "" {
		return r
	}
	return resp.Data.TxID
}

func isTxID(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
