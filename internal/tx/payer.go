package tx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OKaluzny/healthchain-wallet/internal/storage"
	"github.com/OKaluzny/healthchain-wallet/internal/utxo"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// UTXOSource lists spendable outputs of an address.
type UTXOSource interface {
	ListUnspent(ctx context.Context, address string) ([]models.UnspentOutput, error)
}

// Broadcaster submits a signed transaction and returns the accepted txid.
type Broadcaster interface {
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// PayerConfig holds the coin selection parameters.
type PayerConfig struct {
	FeeRate  uint64 // sat/byte used by the selector estimate
	Strategy utxo.Strategy
}

// Payer runs a payment end to end: fetch outputs, select, build and sign,
// store, broadcast. It never retries a broadcast.
type Payer struct {
	builder *Builder
	utxos   UTXOSource
	bcast   Broadcaster
	txStore storage.TxStore
	cfg     PayerConfig
	logger  *slog.Logger
}

// NewPayer wires a payer.
func NewPayer(cfg PayerConfig, b *Builder, src UTXOSource, bc Broadcaster, txs storage.TxStore) *Payer {
	if cfg.FeeRate == 0 {
		cfg.FeeRate = utxo.DefaultFeeRate
	}
	if cfg.Strategy == nil {
		cfg.Strategy = utxo.AsReceived
	}
	return &Payer{
		builder: b,
		utxos:   src,
		bcast:   bc,
		txStore: txs,
		cfg:     cfg,
		logger:  slog.Default().With("component", "payer"),
	}
}

// PayRequest represents a request to pay one recipient.
type PayRequest struct {
	IdempotencyKey string // optional; repeats return the first successful tx
	Recipient      string
	Amount         uint64
	Key            *models.KeyMaterial
}

// Pay builds, signs and broadcasts a payment from Key's address, with change
// back to the same address. When the broadcast fails the signed transaction
// is still returned together with a *models.BroadcastError.
func (p *Payer) Pay(ctx context.Context, req PayRequest) (*models.SignedTransaction, error) {
	if req.Key == nil || req.Key.Address == "" {
		return nil, fmt.Errorf("%w: no key material", models.ErrSigningFailed)
	}

	if req.IdempotencyKey != "" {
		existing, err := p.txStore.Get(ctx, idemKey(req.IdempotencyKey))
		if err != nil {
			return nil, fmt.Errorf("tx store get: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate request, returning existing tx",
				"idempotency_key", req.IdempotencyKey,
				"txid", existing.TxID,
			)
			return existing, nil
		}
	}

	available, err := p.utxos.ListUnspent(ctx, req.Key.Address)
	if err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("%w: no unspent outputs for %s", models.ErrInsufficientFunds, req.Key.Address)
	}

	sel, err := utxo.SelectWith(p.cfg.Strategy, available, req.Amount, p.cfg.FeeRate)
	if err != nil {
		return nil, err
	}

	p.logger.Info("building payment",
		"from", req.Key.Address,
		"to", req.Recipient,
		"amount", req.Amount,
		"inputs", len(sel.Selected),
		"estimated_fee", sel.EstimatedFee,
	)

	signed, err := p.builder.BuildAndSign(sel.Selected, req.Recipient, req.Amount, req.Key.Address, req.Key)
	if err != nil {
		return nil, err
	}

	// Keep the signed tx before broadcasting so it can be resubmitted.
	if err := p.txStore.Put(ctx, signed.TxID, signed); err != nil {
		return nil, fmt.Errorf("tx store put: %w", err)
	}

	if err := p.broadcast(ctx, signed); err != nil {
		return signed, err
	}

	if req.IdempotencyKey != "" {
		if err := p.txStore.Put(ctx, idemKey(req.IdempotencyKey), signed); err != nil {
			p.logger.Warn("failed to record idempotency key",
				"idempotency_key", req.IdempotencyKey,
				"error", err,
			)
		}
	}
	return signed, nil
}

// Resubmit broadcasts a previously signed transaction again.
func (p *Payer) Resubmit(ctx context.Context, txid string) (*models.SignedTransaction, error) {
	signed, err := p.txStore.Get(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("tx store get: %w", err)
	}
	if signed == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrTxNotFound, txid)
	}
	if err := p.broadcast(ctx, signed); err != nil {
		return signed, err
	}
	return signed, nil
}

func (p *Payer) broadcast(ctx context.Context, signed *models.SignedTransaction) error {
	txid, err := p.bcast.Broadcast(ctx, signed.RawHex)
	if err != nil {
		p.logger.Warn("broadcast failed",
			"txid", signed.TxID,
			"error", err,
		)
		var be *models.BroadcastError
		if errors.As(err, &be) {
			if be.RawTx == "" {
				be.RawTx = signed.RawHex
			}
			return be
		}
		return &models.BroadcastError{RawTx: signed.RawHex, Err: err}
	}
	if txid != "" && txid != signed.TxID {
		p.logger.Warn("broadcaster reported a different txid",
			"txid", signed.TxID,
			"reported", txid,
		)
	}
	p.logger.Info("transaction broadcast successful", "txid", signed.TxID)
	return nil
}

func idemKey(k string) string {
	return "idem/" + k
}
