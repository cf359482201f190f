package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OKaluzny/healthchain-wallet/internal/storage"
	"github.com/OKaluzny/healthchain-wallet/internal/vault"
	"github.com/OKaluzny/healthchain-wallet/internal/wallet"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// CreatedWallet is returned by wallet creation. Mnemonic is only ever
// returned here; it is not readable afterwards.
type CreatedWallet struct {
	Mnemonic string `json:"mnemonic,omitempty"`
	PubKey   string `json:"pubkey"`
	Address  string `json:"address"`
}

// Manager creates, imports and deletes the local wallet. Every create or
// import overwrites the stored wallet and connects the session to it.
type Manager struct {
	wallets *storage.WalletStore
	session *Session
	network models.Network
	scheme  wallet.Scheme
	logger  *slog.Logger
}

func NewManager(wallets *storage.WalletStore, s *Session, network models.Network, scheme wallet.Scheme) *Manager {
	if scheme == "" {
		scheme = wallet.SchemeSeedPrefix
	}
	return &Manager{
		wallets: wallets,
		session: s,
		network: network,
		scheme:  scheme,
		logger:  slog.Default().With("component", "wallet_manager"),
	}
}

// CreateMnemonicWallet generates a 12 or 24 word phrase and stores a wallet
// derived from it.
func (m *Manager) CreateMnemonicWallet(ctx context.Context, password []byte, words int) (*CreatedWallet, error) {
	phrase, err := wallet.GenerateMnemonic(words)
	if err != nil {
		return nil, err
	}
	info, err := m.storeMnemonic(ctx, phrase, password)
	if err != nil {
		return nil, err
	}
	return &CreatedWallet{Mnemonic: phrase, PubKey: info.PubKey, Address: info.Address}, nil
}

// ImportMnemonicWallet restores a wallet from an existing phrase.
func (m *Manager) ImportMnemonicWallet(ctx context.Context, phrase string, password []byte) (*storage.PublicInfo, error) {
	if err := wallet.ValidateMnemonic(phrase); err != nil {
		return nil, err
	}
	return m.storeMnemonic(ctx, wallet.NormalizeMnemonic(phrase), password)
}

// CreateRandomWallet stores a wallet with a fresh random key and no phrase.
func (m *Manager) CreateRandomWallet(ctx context.Context, password []byte) (*storage.PublicInfo, error) {
	key, err := wallet.DeriveKeyMaterial(wallet.RandomSeed{}, m.network)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return m.store(ctx, key, "", password)
}

// ImportPrivateKey stores a wallet from a hex scalar or WIF.
func (m *Manager) ImportPrivateKey(ctx context.Context, hexOrWIF string, password []byte) (*storage.PublicInfo, error) {
	priv, err := wallet.ParsePrivateKey(hexOrWIF, m.network)
	if err != nil {
		return nil, err
	}
	defer clear(priv)
	key, err := wallet.KeyMaterialFromPrivate(priv, m.network)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return m.store(ctx, key, "", password)
}

// DeleteWallet disconnects and removes the stored wallet.
func (m *Manager) DeleteWallet(ctx context.Context) error {
	m.session.Disconnect(ctx)
	if err := m.wallets.Delete(ctx); err != nil {
		return err
	}
	m.logger.Info("local wallet deleted")
	return nil
}

// Rekey re-encrypts the stored wallet under a new password. Records written
// with the legacy fixed salt get a fresh salt on the way.
func (m *Manager) Rekey(ctx context.Context, oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return fmt.Errorf("%w: new password is empty", models.ErrInvalidRequest)
	}
	rec, err := m.wallets.LoadRecord(ctx)
	if err != nil {
		return err
	}
	info, err := m.wallets.LoadPublic(ctx)
	if err != nil {
		return err
	}
	legacy := vault.IsLegacy(rec)
	next, err := vault.Rekey(rec, oldPassword, newPassword)
	if err != nil {
		return err
	}
	if err := m.wallets.Save(ctx, next, info.PubKey, info.Address); err != nil {
		return err
	}
	m.session.Lock()
	m.logger.Info("wallet password changed", "migrated_legacy", legacy)
	return nil
}

// DerivedAddresses opens the vault and lists the first count BIP-44 receive
// addresses of the stored mnemonic.
func (m *Manager) DerivedAddresses(ctx context.Context, password []byte, count uint32) ([]*models.DerivedAddress, error) {
	rec, err := m.wallets.LoadRecord(ctx)
	if err != nil {
		return nil, err
	}
	secret, err := vault.Open(rec, password)
	if err != nil {
		return nil, err
	}
	defer secret.Zero()
	if secret.Mnemonic == "" {
		return nil, fmt.Errorf("%w: wallet was imported from a private key", models.ErrUnsupportedOperation)
	}

	seed, err := wallet.Seed(secret.Mnemonic)
	if err != nil {
		return nil, err
	}
	defer clear(seed)
	return wallet.Addresses(wallet.NewHDGenerator(m.network), seed, count)
}

func (m *Manager) Network() models.Network {
	return m.network
}

// Public returns the stored public key and address.
func (m *Manager) Public(ctx context.Context) (*storage.PublicInfo, error) {
	return m.wallets.LoadPublic(ctx)
}

func (m *Manager) storeMnemonic(ctx context.Context, phrase string, password []byte) (*storage.PublicInfo, error) {
	key, err := wallet.DeriveKeyMaterial(wallet.MnemonicSeed{Phrase: phrase, Scheme: m.scheme}, m.network)
	if err != nil {
		return nil, err
	}
	defer key.Zero()
	return m.store(ctx, key, phrase, password)
}

func (m *Manager) store(ctx context.Context, key *models.KeyMaterial, phrase string, password []byte) (*storage.PublicInfo, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password is empty", models.ErrInvalidRequest)
	}
	wif, err := wallet.EncodeWIF(key.PrivateKey, m.network)
	if err != nil {
		return nil, err
	}
	secret := &vault.Secret{Mnemonic: phrase, WIF: wif}
	defer secret.Zero()

	rec, err := secret.Seal(password)
	if err != nil {
		return nil, err
	}
	if err := m.wallets.Save(ctx, rec, key.PublicKey, key.Address); err != nil {
		return nil, err
	}
	info := &storage.PublicInfo{PubKey: key.PublicKey, Address: key.Address}
	if err := m.session.connectLocal(ctx, info, password); err != nil {
		return nil, err
	}
	m.logger.Info("local wallet stored", "address", key.Address, "has_mnemonic", phrase != "")
	return info, nil
}
