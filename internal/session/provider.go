package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/OKaluzny/healthchain-wallet/internal/tx"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// Capability is a set of operations a provider supports.
type Capability uint8

const (
	CapSign Capability = 1 << iota
	CapPay
	CapTokens
	CapDisconnect
)

// Has reports whether every flag in f is set.
func (c Capability) Has(f Capability) bool {
	return c&f == f
}

// Names lists the set flags in a stable order.
func (c Capability) Names() []string {
	var out []string
	for _, n := range []struct {
		f    Capability
		name string
	}{
		{CapSign, "sign"},
		{CapPay, "pay"},
		{CapTokens, "getTokens"},
		{CapDisconnect, "disconnect"},
	} {
		if c.Has(n.f) {
			out = append(out, n.name)
		}
	}
	return out
}

func (c Capability) String() string {
	return strings.Join(c.Names(), "|")
}

// Kind names a provider variant. It is what gets remembered as the last
// provider between runs.
type Kind string

const (
	KindLocal     Kind = "local"
	KindWatchOnly Kind = "watch-only"
)

// ParseKind parses a provider kind; "" means local.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindLocal:
		return KindLocal, nil
	case KindWatchOnly:
		return KindWatchOnly, nil
	}
	return "", fmt.Errorf("unknown wallet kind %q", s)
}

// PayRequest is a payment to one recipient.
type PayRequest struct {
	IdempotencyKey string
	Recipient      string
	Amount         uint64
}

// Provider is a connected wallet. Calls outside Capabilities fail with
// models.ErrUnsupportedOperation.
type Provider interface {
	Kind() Kind
	Capabilities() Capability
	PubKey() string
	Address() string
	Sign(ctx context.Context, rawHex string) (*models.SignedTransaction, error)
	Pay(ctx context.Context, req PayRequest) (*models.SignedTransaction, error)
	Tokens(ctx context.Context) (map[string]models.AddressBalance, error)
	Disconnect() error
}

func unsupported(p Provider, op string) error {
	return fmt.Errorf("%w: %s wallet does not support %s", models.ErrUnsupportedOperation, p.Kind(), op)
}

// Payer runs a payment with an unlocked key.
type Payer interface {
	Pay(ctx context.Context, req tx.PayRequest) (*models.SignedTransaction, error)
}

// RawSigner signs the key's own inputs of an externally built transaction.
type RawSigner interface {
	SignRaw(ctx context.Context, rawHex string, key *models.KeyMaterial, prev tx.PrevTxFetcher) (*models.SignedTransaction, error)
}

// LocalProvider signs with the wallet sealed in the local vault. The key is
// unlocked for each operation and wiped when it returns.
type LocalProvider struct {
	pubKey  string
	address string
	unlock  func(ctx context.Context) (*models.KeyMaterial, error)
	payer   Payer
	signer  RawSigner
	prev    tx.PrevTxFetcher
	reader  *BalanceReader
}

func (p *LocalProvider) Kind() Kind { return KindLocal }

func (p *LocalProvider) Capabilities() Capability {
	return CapSign | CapPay | CapTokens | CapDisconnect
}

func (p *LocalProvider) PubKey() string  { return p.pubKey }
func (p *LocalProvider) Address() string { return p.address }

func (p *LocalProvider) Sign(ctx context.Context, rawHex string) (*models.SignedTransaction, error) {
	key, err := p.unlock(ctx)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return p.signer.SignRaw(ctx, rawHex, key, p.prev)
}

func (p *LocalProvider) Pay(ctx context.Context, req PayRequest) (*models.SignedTransaction, error) {
	key, err := p.unlock(ctx)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return p.payer.Pay(ctx, tx.PayRequest{
		IdempotencyKey: req.IdempotencyKey,
		Recipient:      req.Recipient,
		Amount:         req.Amount,
		Key:            key,
	})
}

func (p *LocalProvider) Tokens(ctx context.Context) (map[string]models.AddressBalance, error) {
	return p.reader.Read(ctx, []string{p.address})
}

func (p *LocalProvider) Disconnect() error { return nil }

// WatchOnlyProvider tracks an address it holds no key for.
type WatchOnlyProvider struct {
	pubKey  string
	address string
	reader  *BalanceReader
}

func (p *WatchOnlyProvider) Kind() Kind               { return KindWatchOnly }
func (p *WatchOnlyProvider) Capabilities() Capability { return CapTokens | CapDisconnect }
func (p *WatchOnlyProvider) PubKey() string           { return p.pubKey }
func (p *WatchOnlyProvider) Address() string          { return p.address }

func (p *WatchOnlyProvider) Sign(context.Context, string) (*models.SignedTransaction, error) {
	return nil, unsupported(p, "sign")
}

func (p *WatchOnlyProvider) Pay(context.Context, PayRequest) (*models.SignedTransaction, error) {
	return nil, unsupported(p, "pay")
}

func (p *WatchOnlyProvider) Tokens(ctx context.Context) (map[string]models.AddressBalance, error) {
	return p.reader.Read(ctx, []string{p.address})
}

func (p *WatchOnlyProvider) Disconnect() error { return nil }
