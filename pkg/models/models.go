package models

import "encoding/json"

// Network identifies the ledger the wallet operates on.
type Network string

// Supported ledgers. Both use P2PKH Base58Check addresses.
const (
	NetworkMain Network = "bsv-main"
	NetworkTest Network = "bsv-test"
)

// MaxSatoshis is the total coin supply. No amount or output value can exceed it.
const MaxSatoshis uint64 = 21_000_000 * 100_000_000

// KeyMaterial is an unlocked private key with its derived public data.
// It lives in memory only for the duration of a signing operation.
type KeyMaterial struct {
	PrivateKey []byte `json:"-"` // 32-byte secp256k1 scalar
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
}

// Zero wipes the private scalar.
func (k *KeyMaterial) Zero() {
	if k == nil {
		return
	}
	clear(k.PrivateKey)
	k.PrivateKey = nil
}

// DerivedAddress holds a generated address with its derivation path
type DerivedAddress struct {
	Network        Network `json:"network"`
	Address        string  `json:"address"`
	DerivationPath string  `json:"derivation_path"`
	PublicKey      string  `json:"public_key"`
}

// EncryptedVaultRecord is the at-rest form of the wallet secret.
// An empty Salt marks a record written with the historical fixed salt.
type EncryptedVaultRecord struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt,omitempty"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// UnspentOutput is a spendable output as reported by the ledger indexer.
type UnspentOutput struct {
	TxID   string `json:"tx_hash"`
	Vout   uint32 `json:"tx_pos"`
	Value  uint64 `json:"value"`
	Height int64  `json:"height,omitempty"`
}

// PaymentRequest is a single payment to one recipient.
type PaymentRequest struct {
	Recipient string `json:"to"`
	Amount    uint64 `json:"satoshis"`
}

// TxOutput describes one output of a built transaction.
type TxOutput struct {
	Address  string `json:"address"`
	Satoshis uint64 `json:"satoshis"`
	Change   bool   `json:"change"`
}

// SignedTransaction is an immutable, fully signed transaction.
type SignedTransaction struct {
	RawHex      string          `json:"raw_tx"`
	TxID        string          `json:"txid"`
	Fee         uint64          `json:"fee"`
	InputTotal  uint64          `json:"input_total"`
	OutputTotal uint64          `json:"output_total"`
	Inputs      []UnspentOutput `json:"inputs"`
	Outputs     []TxOutput      `json:"outputs"`
}

// Balance is the indexer's view of an address balance, in satoshis.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// Total returns confirmed plus unconfirmed satoshis.
func (b Balance) Total() int64 {
	return b.Confirmed + b.Unconfirmed
}

// FiatRates holds the price of one coin in fiat currencies.
type FiatRates struct {
	USD float64 `json:"usd"`
	EUR float64 `json:"eur"`
	GBP float64 `json:"gbp"`
}

// AddressBalance is a refreshed balance of one address with fiat values.
type AddressBalance struct {
	Address string  `json:"address"`
	Sats    int64   `json:"sats"`
	BSV     float64 `json:"bsv"`
	USD     float64 `json:"usd"`
	EUR     float64 `json:"eur"`
	GBP     float64 `json:"gbp"`
}

// HistoryEntry is one transaction touching an address.
type HistoryEntry struct {
	TxID   string `json:"tx_hash"`
	Height int64  `json:"height"`
}

// BalanceEvent is emitted by the balance monitor after each refresh.
type BalanceEvent struct {
	Balances map[string]AddressBalance `json:"balances"`
	Message  string                    `json:"message"`
	Failed   bool                      `json:"failed,omitempty"`
}

// RecordPayload is handed to the records backend after a successful payment.
type RecordPayload struct {
	PubKey   string          `json:"pubKey"`
	TxID     string          `json:"txid"`
	RawTx    string          `json:"rawTx"`
	FormHash string          `json:"formHash"`
	FormData json.RawMessage `json:"formData"`
}
