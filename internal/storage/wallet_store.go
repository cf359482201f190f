package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/OKaluzny/healthchain-wallet/internal/vault"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// Well-known keys. The first two match what the browser wallet wrote to
// localStorage so exported state can be loaded as is.
const (
	KeyWallet        = "localWallet"
	KeyWalletPubkey  = "localWalletPubkey"
	KeyWalletAddress = "localWalletAddress"
	KeyLastProvider  = "lastProvider"

	txKeyPrefix = "tx/"
	keyWatched  = "watched"
)

// PublicInfo is the non-secret part of a stored wallet.
type PublicInfo struct {
	PubKey  string `json:"pubkey"`
	Address string `json:"address"`
}

// WalletStore persists the single local wallet. Only the sealed vault record
// and public data are written.
type WalletStore struct {
	kv KV
}

func NewWalletStore(kv KV) *WalletStore {
	return &WalletStore{kv: kv}
}

// Save replaces any stored wallet. If a write fails the previous wallet is
// put back, so a vault record never sits next to another wallet's public data.
func (s *WalletStore) Save(ctx context.Context, rec *models.EncryptedVaultRecord, pubKey, address string) error {
	raw, err := vault.EncodeRecord(rec)
	if err != nil {
		return err
	}
	keys := []string{KeyWalletPubkey, KeyWalletAddress, KeyWallet}
	values := [][]byte{[]byte(pubKey), []byte(address), raw}

	prev := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := s.kv.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", k, err)
		}
		prev[k] = v
	}

	for i, k := range keys {
		if err := s.kv.Put(ctx, k, values[i]); err != nil {
			err = fmt.Errorf("save %s: %w", k, err)
			return errors.Join(err, s.restore(ctx, keys[:i+1], prev))
		}
	}
	return nil
}

// restore puts back the values in prev for keys, deleting keys it lacks.
func (s *WalletStore) restore(ctx context.Context, keys []string, prev map[string][]byte) error {
	var errs []error
	for _, k := range keys {
		var err error
		if v, ok := prev[k]; ok {
			err = s.kv.Put(ctx, k, v)
		} else {
			err = s.kv.Delete(ctx, k)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// LoadRecord returns the sealed vault record or ErrWalletNotFound.
func (s *WalletStore) LoadRecord(ctx context.Context) (*models.EncryptedVaultRecord, error) {
	raw, err := s.kv.Get(ctx, KeyWallet)
	if errors.Is(err, ErrNotFound) {
		return nil, models.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load vault record: %w", err)
	}
	return vault.DecodeRecord(raw)
}

// LoadPublic returns the stored public key and address. The address may be
// empty for wallets written by the browser, which stored only the key.
func (s *WalletStore) LoadPublic(ctx context.Context) (*PublicInfo, error) {
	pub, err := s.kv.Get(ctx, KeyWalletPubkey)
	if errors.Is(err, ErrNotFound) {
		return nil, models.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}
	addr, err := s.kv.Get(ctx, KeyWalletAddress)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load address: %w", err)
	}
	return &PublicInfo{PubKey: string(pub), Address: string(addr)}, nil
}

// Exists reports whether a vault record is stored.
func (s *WalletStore) Exists(ctx context.Context) (bool, error) {
	_, err := s.kv.Get(ctx, KeyWallet)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the wallet and its public data.
func (s *WalletStore) Delete(ctx context.Context) error {
	for _, k := range []string{KeyWallet, KeyWalletPubkey, KeyWalletAddress} {
		if err := s.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// LastProvider returns the provider kind used in the previous session, or "".
func (s *WalletStore) LastProvider(ctx context.Context) (string, error) {
	v, err := s.kv.Get(ctx, KeyLastProvider)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetLastProvider records the provider kind; "" clears it.
func (s *WalletStore) SetLastProvider(ctx context.Context, kind string) error {
	if kind == "" {
		return s.kv.Delete(ctx, KeyLastProvider)
	}
	return s.kv.Put(ctx, KeyLastProvider, []byte(kind))
}

// KVTxStore is a TxStore on top of a KV.
type KVTxStore struct {
	kv KV
}

func NewKVTxStore(kv KV) *KVTxStore {
	return &KVTxStore{kv: kv}
}

func (s *KVTxStore) Get(ctx context.Context, key string) (*models.SignedTransaction, error) {
	raw, err := s.kv.Get(ctx, txKeyPrefix+key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tx models.SignedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode stored tx %s: %w", key, err)
	}
	return &tx, nil
}

func (s *KVTxStore) Put(ctx context.Context, key string, tx *models.SignedTransaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode tx: %w", err)
	}
	return s.kv.Put(ctx, txKeyPrefix+key, raw)
}

// KVWatchStore is a WatchStore persisted as one sorted JSON list.
type KVWatchStore struct {
	mu sync.Mutex
	kv KV
}

func NewKVWatchStore(kv KV) *KVWatchStore {
	return &KVWatchStore{kv: kv}
}

func (s *KVWatchStore) Add(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.load(ctx)
	if err != nil {
		return err
	}
	set[address] = true
	return s.save(ctx, set)
}

func (s *KVWatchStore) Remove(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.load(ctx)
	if err != nil {
		return err
	}
	delete(set, address)
	return s.save(ctx, set)
}

func (s *KVWatchStore) List(ctx context.Context) ([]string, error) {
	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

func (s *KVWatchStore) Contains(ctx context.Context, address string) (bool, error) {
	set, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return set[address], nil
}

func (s *KVWatchStore) load(ctx context.Context) (map[string]bool, error) {
	set := make(map[string]bool)
	raw, err := s.kv.Get(ctx, keyWatched)
	if errors.Is(err, ErrNotFound) {
		return set, nil
	}
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode watch list: %w", err)
	}
	for _, a := range list {
		set[a] = true
	}
	return set, nil
}

func (s *KVWatchStore) save(ctx context.Context, set map[string]bool) error {
	raw, err := json.Marshal(sortedKeys(set))
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, keyWatched, raw)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
