package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configurable parameters for the wallet.
type Config struct {
	// Ledger
	Network string `envconfig:"NETWORK" default:"bsv-main"`

	// Indexer and broadcast endpoints
	IndexerURL    string `envconfig:"INDEXER_URL" default:"https://api.whatsonchain.com/v1/bsv/main"`
	BroadcastURL  string `envconfig:"BROADCAST_URL" default:"https://arc.whatsonchain.com/v1/broadcast"`
	BroadcastMode string `envconfig:"BROADCAST_MODE" default:"arc"` // arc | indexer

	// Fiat rates
	FiatURL    string `envconfig:"FIAT_URL" default:"https://api.coingecko.com/api/v3"`
	FiatCoinID string `envconfig:"FIAT_COIN_ID" default:"bitcoin-sv"`

	// Fees: FeeRate is sat/byte for coin selection, FeeSatsPerKB for the final fee
	FeeRate      uint64 `envconfig:"FEE_RATE" default:"1"`
	FeeSatsPerKB uint64 `envconfig:"FEE_SATS_PER_KB" default:"1000"`

	SighashMode      string        `envconfig:"SIGHASH_MODE" default:"forkid"`        // forkid | legacy
	CoinSelection    string        `envconfig:"COIN_SELECTION" default:"as-received"` // as-received | largest-first | smallest-first
	DerivationScheme string        `envconfig:"DERIVATION_SCHEME" default:"seed-prefix"`
	HDAddressCount   uint32        `envconfig:"HD_ADDRESS_COUNT" default:"5"`
	BalanceRefresh   time.Duration `envconfig:"BALANCE_REFRESH_INTERVAL" default:"15s"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	// Storage
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"file"` // memory | file | leveldb | sqlite | mysql
	StorageDSN    string `envconfig:"STORAGE_DSN" default:"wallet.json"`

	// HTTP API
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Tracing
	OtelEnabled      bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OtelEndpoint     string  `envconfig:"OTEL_ENDPOINT" default:"localhost:4317"`
	OtelServiceName  string  `envconfig:"OTEL_SERVICE_NAME" default:"healthchain-wallet"`
	OtelSamplingRate float64 `envconfig:"OTEL_SAMPLING_RATE" default:"1.0"`

	// Records backend
	BackendURL string `envconfig:"BACKEND_URL" default:"http://localhost:3000"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Network:          "bsv-main",
		IndexerURL:       "https://api.whatsonchain.com/v1/bsv/main",
		BroadcastURL:     "https://arc.whatsonchain.com/v1/broadcast",
		BroadcastMode:    "arc",
		FiatURL:          "https://api.coingecko.com/api/v3",
		FiatCoinID:       "bitcoin-sv",
		FeeRate:          1,
		FeeSatsPerKB:     1000,
		SighashMode:      "forkid",
		CoinSelection:    "as-received",
		DerivationScheme: "seed-prefix",
		HDAddressCount:   5,
		BalanceRefresh:   15 * time.Second,
		HTTPTimeout:      15 * time.Second,
		StorageDriver:    "file",
		StorageDSN:       "wallet.json",
		Port:             "8080",
		LogLevel:         "info",
		OtelEndpoint:     "localhost:4317",
		OtelServiceName:  "healthchain-wallet",
		OtelSamplingRate: 1.0,
		BackendURL:       "http://localhost:3000",
	}
}

// FromEnv returns a Config populated from environment variables,
// falling back to defaults for unset values.
func FromEnv() (Config, error) {
	cfg := Default()
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the wallet cannot run with.
func (c Config) Validate() error {
	switch c.Network {
	case "bsv-main", "bsv-test":
	default:
		return fmt.Errorf("config: unknown network %q", c.Network)
	}
	switch c.BroadcastMode {
	case "arc", "indexer":
	default:
		return fmt.Errorf("config: unknown broadcast mode %q", c.BroadcastMode)
	}
	switch c.SighashMode {
	case "forkid", "legacy":
	default:
		return fmt.Errorf("config: unknown sighash mode %q", c.SighashMode)
	}
	switch c.CoinSelection {
	case "as-received", "largest-first", "smallest-first":
	default:
		return fmt.Errorf("config: unknown coin selection %q", c.CoinSelection)
	}
	switch c.DerivationScheme {
	case "seed-prefix", "bip44":
	default:
		return fmt.Errorf("config: unknown derivation scheme %q", c.DerivationScheme)
	}
	if c.FeeRate == 0 || c.FeeSatsPerKB == 0 {
		return fmt.Errorf("config: fee rates must be positive")
	}
	if c.BalanceRefresh <= 0 {
		return fmt.Errorf("config: balance refresh interval must be positive")
	}
	return nil
}
