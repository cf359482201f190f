// Package session owns the connected wallet: which provider is active, the
// lock state of the local vault and the last refreshed balances.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/OKaluzny/healthchain-wallet/internal/storage"
	"github.com/OKaluzny/healthchain-wallet/internal/tx"
	"github.com/OKaluzny/healthchain-wallet/internal/vault"
	"github.com/OKaluzny/healthchain-wallet/internal/wallet"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// State is the lifecycle position of a session.
type State string

const (
	StateDisconnected       State = "disconnected"
	StateLocked             State = "locked"
	StateAwaitingCredential State = "awaiting_credential"
	StateActive             State = "active"
)

// Status messages shown by the wallet panel.
const (
	msgDisconnected   = "Wallet disconnected"
	msgRefreshFailed  = "Failed to refresh balances"
	msgBalancesUpdate = "Balances updated"
)

// Ledger is the read side of the indexer the session needs.
type Ledger interface {
	BalanceSource
	tx.PrevTxFetcher
	History(ctx context.Context, address string) ([]models.HistoryEntry, error)
}

// Deps are the services a session drives.
type Deps struct {
	Network     models.Network
	Wallets     *storage.WalletStore
	Credentials CredentialSource
	Payer       Payer
	Signer      RawSigner
	Ledger      Ledger
	Rates       RateSource
}

// Status is a snapshot of the session.
type Status struct {
	ID           string                           `json:"id,omitempty"`
	State        State                            `json:"state"`
	Kind         Kind                             `json:"kind,omitempty"`
	PubKey       string                           `json:"pubkey,omitempty"`
	Address      string                           `json:"address,omitempty"`
	Capabilities []string                         `json:"capabilities,omitempty"`
	LastMessage  string                           `json:"last_message,omitempty"`
	Balances     map[string]models.AddressBalance `json:"balances,omitempty"`
}

// Session is the single connected wallet of this process.
//
// Disconnected -> Locked on Connect. A signing operation in Locked asks the
// CredentialSource for the password (AwaitingCredential) and moves to Active
// once the vault opens. Lock returns to Locked, Disconnect to Disconnected.
// In Active only the password is kept; the private key is unlocked for each
// operation and wiped afterwards.
type Session struct {
	deps   Deps
	reader *BalanceReader
	logger *slog.Logger

	mu          sync.Mutex
	id          string
	state       State
	provider    Provider
	password    []byte
	lastMessage string
	balances    map[string]models.AddressBalance
}

// New creates a disconnected session.
func New(deps Deps) *Session {
	return &Session{
		deps:   deps,
		reader: NewBalanceReader(deps.Ledger, deps.Rates),
		logger: slog.Default().With("component", "session"),
		state:  StateDisconnected,
	}
}

// Connect attaches a provider. KindLocal uses the stored wallet and needs no
// argument; KindWatchOnly takes an address or public key.
func (s *Session) Connect(ctx context.Context, kind Kind, target string) (*Status, error) {
	var p Provider
	switch kind {
	case KindLocal:
		info, err := s.deps.Wallets.LoadPublic(ctx)
		if err != nil {
			return nil, err
		}
		p, err = s.localProvider(info)
		if err != nil {
			return nil, err
		}
	case KindWatchOnly:
		addr, err := wallet.ParseRecipient(target, s.deps.Network)
		if err != nil {
			return nil, err
		}
		wp := &WatchOnlyProvider{address: addr.EncodeAddress(), reader: s.reader}
		if target != wp.address {
			wp.pubKey = target
		}
		p = wp
	default:
		return nil, fmt.Errorf("unknown wallet kind %q", kind)
	}

	s.attach(p, nil)
	if err := s.deps.Wallets.SetLastProvider(ctx, string(kind)); err != nil {
		s.logger.Warn("failed to remember provider", "error", err)
	}
	return s.Status(), nil
}

// Restore reconnects the provider used in the previous run, if any.
func (s *Session) Restore(ctx context.Context) error {
	last, err := s.deps.Wallets.LastProvider(ctx)
	if err != nil || last != string(KindLocal) {
		return err
	}
	ok, err := s.deps.Wallets.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info("remembered wallet is gone, clearing provider")
		return s.deps.Wallets.SetLastProvider(ctx, "")
	}
	_, err = s.Connect(ctx, KindLocal, "")
	return err
}

// connectLocal attaches a freshly created or imported wallet. The password
// that sealed it starts the session Active.
func (s *Session) connectLocal(ctx context.Context, info *storage.PublicInfo, password []byte) error {
	p, err := s.localProvider(info)
	if err != nil {
		return err
	}
	s.attach(p, append([]byte(nil), password...))
	if err := s.deps.Wallets.SetLastProvider(ctx, string(KindLocal)); err != nil {
		s.logger.Warn("failed to remember provider", "error", err)
	}
	return nil
}

func (s *Session) localProvider(info *storage.PublicInfo) (*LocalProvider, error) {
	addr := info.Address
	if addr == "" {
		// Browser-written wallets stored only the public key.
		a, err := wallet.ParseRecipient(info.PubKey, s.deps.Network)
		if err != nil {
			return nil, err
		}
		addr = a.EncodeAddress()
	}
	return &LocalProvider{
		pubKey:  info.PubKey,
		address: addr,
		unlock:  s.unlock,
		payer:   s.deps.Payer,
		signer:  s.deps.Signer,
		prev:    s.deps.Ledger,
		reader:  s.reader,
	}, nil
}

func (s *Session) attach(p Provider, password []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.password)
	s.id = uuid.NewString()
	s.provider = p
	s.password = password
	s.state = StateLocked
	if password != nil {
		s.state = StateActive
	}
	s.balances = nil
	s.lastMessage = fmt.Sprintf("Connected via %s", p.Kind())
	s.logger.Info("wallet connected",
		"session", s.id,
		"kind", string(p.Kind()),
		"address", p.Address(),
	)
}

// Lock forgets the password. The provider stays connected.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return
	}
	clear(s.password)
	s.password = nil
	s.state = StateLocked
	s.logger.Info("session locked", "session", s.id)
}

// Disconnect drops the provider and forgets the remembered provider kind.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	p := s.provider
	if p != nil && p.Capabilities().Has(CapDisconnect) {
		if err := p.Disconnect(); err != nil {
			s.logger.Warn("disconnect error", "error", err)
		}
	}
	clear(s.password)
	s.password = nil
	s.provider = nil
	s.balances = nil
	s.state = StateDisconnected
	s.lastMessage = msgDisconnected
	id := s.id
	s.id = ""
	s.mu.Unlock()

	if err := s.deps.Wallets.SetLastProvider(ctx, ""); err != nil {
		s.logger.Warn("failed to clear provider", "error", err)
	}
	if p != nil {
		s.logger.Info("wallet disconnected", "session", id)
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &Status{
		ID:          s.id,
		State:       s.state,
		LastMessage: s.lastMessage,
	}
	if s.provider != nil {
		st.Kind = s.provider.Kind()
		st.PubKey = s.provider.PubKey()
		st.Address = s.provider.Address()
		st.Capabilities = s.provider.Capabilities().Names()
	}
	if len(s.balances) > 0 {
		st.Balances = make(map[string]models.AddressBalance, len(s.balances))
		for k, v := range s.balances {
			st.Balances[k] = v
		}
	}
	return st
}

// Connected reports whether a provider is attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider != nil
}

// Pay sends a payment through the connected provider. When the broadcast
// fails the signed transaction is returned with a *models.BroadcastError.
func (s *Session) Pay(ctx context.Context, req PayRequest) (*models.SignedTransaction, error) {
	p, err := s.require(CapPay, "pay")
	if err != nil {
		return nil, err
	}
	signed, err := p.Pay(ctx, req)
	if signed != nil {
		s.setMessage(fmt.Sprintf("Payment signed: %s", signed.TxID))
	}
	return signed, err
}

// Sign signs the wallet's inputs of rawHex through the connected provider.
func (s *Session) Sign(ctx context.Context, rawHex string) (*models.SignedTransaction, error) {
	p, err := s.require(CapSign, "sign")
	if err != nil {
		return nil, err
	}
	return p.Sign(ctx, rawHex)
}

// History lists the transactions of the connected address.
func (s *Session) History(ctx context.Context) ([]models.HistoryEntry, error) {
	s.mu.Lock()
	p := s.provider
	s.mu.Unlock()
	if p == nil {
		return nil, models.ErrSessionLocked
	}
	return s.deps.Ledger.History(ctx, p.Address())
}

// RefreshBalances reads the balances of the connected address and of extra.
// Failures only show up in the returned event and the status message.
func (s *Session) RefreshBalances(ctx context.Context, extra ...string) models.BalanceEvent {
	p, err := s.require(CapTokens, "getTokens")
	if errors.Is(err, models.ErrSessionLocked) {
		return models.BalanceEvent{}
	}
	var balances map[string]models.AddressBalance
	if err == nil {
		balances, err = p.Tokens(ctx)
	}
	if err == nil {
		var rest []string
		for _, a := range extra {
			if _, ok := balances[a]; !ok {
				rest = append(rest, a)
			}
		}
		if len(rest) > 0 {
			var more map[string]models.AddressBalance
			more, err = s.reader.Read(ctx, rest)
			for k, v := range more {
				balances[k] = v
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != p {
		// disconnected or replaced while refreshing
		return models.BalanceEvent{}
	}
	if err != nil {
		s.logger.Warn("refresh balances failed", "error", err)
		s.lastMessage = msgRefreshFailed
		return models.BalanceEvent{Message: msgRefreshFailed, Failed: true}
	}
	s.balances = balances
	s.lastMessage = msgBalancesUpdate
	return models.BalanceEvent{Balances: balances, Message: msgBalancesUpdate}
}

func (s *Session) require(c Capability, op string) (Provider, error) {
	s.mu.Lock()
	p := s.provider
	s.mu.Unlock()
	if p == nil {
		return nil, models.ErrSessionLocked
	}
	if !p.Capabilities().Has(c) {
		return nil, unsupported(p, op)
	}
	return p, nil
}

func (s *Session) setMessage(msg string) {
	s.mu.Lock()
	s.lastMessage = msg
	s.mu.Unlock()
}

// unlock opens the vault and returns the key. The caller zeroes it.
func (s *Session) unlock(ctx context.Context) (*models.KeyMaterial, error) {
	s.mu.Lock()
	if s.provider == nil {
		s.mu.Unlock()
		return nil, models.ErrSessionLocked
	}
	id := s.id
	password := append([]byte(nil), s.password...)
	prompted := s.password == nil
	if prompted {
		s.state = StateAwaitingCredential
	}
	s.mu.Unlock()
	defer clear(password)

	if prompted {
		pw, err := s.deps.Credentials.Credential(ctx, CredentialRequest{
			ID:        uuid.NewString(),
			SessionID: id,
			Reason:    "unlock wallet",
		})
		if err != nil {
			s.relock(id)
			return nil, fmt.Errorf("credential: %w", err)
		}
		password = pw
	}

	key, err := s.openKey(ctx, password)
	if err != nil {
		s.relock(id)
		return nil, err
	}

	s.mu.Lock()
	if s.id == id && prompted {
		s.password = append([]byte(nil), password...)
		s.state = StateActive
	}
	s.mu.Unlock()
	return key, nil
}

func (s *Session) openKey(ctx context.Context, password []byte) (*models.KeyMaterial, error) {
	rec, err := s.deps.Wallets.LoadRecord(ctx)
	if err != nil {
		return nil, err
	}
	secret, err := vault.Open(rec, password)
	if err != nil {
		return nil, err
	}
	defer secret.Zero()

	priv, err := wallet.ParsePrivateKey(secret.WIF, s.deps.Network)
	if err != nil {
		return nil, err
	}
	defer clear(priv)
	return wallet.KeyMaterialFromPrivate(priv, s.deps.Network)
}

// relock drops a password that failed and returns to Locked, unless the
// session changed meanwhile.
func (s *Session) relock(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != id || s.provider == nil {
		return
	}
	clear(s.password)
	s.password = nil
	s.state = StateLocked
}
