// Package app wires the wallet services from a Config. Both the daemon and
// the CLI build on it.
package app

import (
	"fmt"

	"github.com/OKaluzny/healthchain-wallet/internal/config"
	"github.com/OKaluzny/healthchain-wallet/internal/fiat"
	"github.com/OKaluzny/healthchain-wallet/internal/indexer"
	"github.com/OKaluzny/healthchain-wallet/internal/records"
	"github.com/OKaluzny/healthchain-wallet/internal/session"
	"github.com/OKaluzny/healthchain-wallet/internal/storage"
	"github.com/OKaluzny/healthchain-wallet/internal/tx"
	"github.com/OKaluzny/healthchain-wallet/internal/utxo"
	"github.com/OKaluzny/healthchain-wallet/internal/wallet"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// Services is the wired wallet.
type Services struct {
	Config  config.Config
	KV      storage.KV
	Indexer *indexer.Client
	Payer   *tx.Payer
	Session *session.Session
	Manager *session.Manager
	Monitor *session.BalanceMonitor
	Records *records.Client
}

// New opens storage and builds every service. creds answers unlock
// requests; the daemon passes a ChannelCredentials, the CLI a terminal
// prompt.
func New(cfg config.Config, creds session.CredentialSource) (*Services, error) {
	network := models.Network(cfg.Network)
	sighash, err := tx.ParseSighashMode(cfg.SighashMode)
	if err != nil {
		return nil, err
	}
	strategy, err := utxo.ParseStrategy(cfg.CoinSelection)
	if err != nil {
		return nil, err
	}
	scheme, err := wallet.ParseScheme(cfg.DerivationScheme)
	if err != nil {
		return nil, err
	}

	kv, err := storage.Open(cfg.StorageDriver, cfg.StorageDSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	idx := indexer.NewClient(indexer.Config{
		BaseURL:      cfg.IndexerURL,
		BroadcastURL: cfg.BroadcastURL,
		Mode:         indexer.BroadcastMode(cfg.BroadcastMode),
		Timeout:      cfg.HTTPTimeout,
	})
	builder := tx.NewBuilder(tx.BuilderConfig{
		Network: network,
		Fee:     tx.SatoshisPerKilobyte{Satoshis: cfg.FeeSatsPerKB},
		Sighash: sighash,
	})
	payer := tx.NewPayer(tx.PayerConfig{FeeRate: cfg.FeeRate, Strategy: strategy},
		builder, idx, idx, storage.NewKVTxStore(kv))

	wallets := storage.NewWalletStore(kv)
	s := session.New(session.Deps{
		Network:     network,
		Wallets:     wallets,
		Credentials: creds,
		Payer:       payer,
		Signer:      builder,
		Ledger:      idx,
		Rates:       fiat.NewCoinGeckoClient(cfg.FiatURL, cfg.FiatCoinID, cfg.HTTPTimeout),
	})

	var rec *records.Client
	if cfg.BackendURL != "" {
		rec = records.NewClient(cfg.BackendURL, cfg.HTTPTimeout)
	}

	return &Services{
		Config:  cfg,
		KV:      kv,
		Indexer: idx,
		Payer:   payer,
		Session: s,
		Manager: session.NewManager(wallets, s, network, scheme),
		Monitor: session.NewBalanceMonitor(s, storage.NewKVWatchStore(kv), cfg.BalanceRefresh),
		Records: rec,
	}, nil
}

// Close releases storage.
func (s *Services) Close() error {
	return s.KV.Close()
}
