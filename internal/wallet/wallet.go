package wallet

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tyler-smith/go-bip39"
)

// Generator defines the interface for HD address generation.
type Generator interface {
	// Network returns which ledger this generator supports
	Network() models.Network

	// GenerateFromSeed derives an address from HD seed bytes at the given index
	GenerateFromSeed(seed []byte, index uint32) (*models.DerivedAddress, error)
}

// Scheme selects how a mnemonic seed becomes a private key.
type Scheme string

const (
	// SchemeSeedPrefix uses the first 32 bytes of the BIP-39 seed as the key.
	// Wallets created by the portal before HD support use this scheme.
	SchemeSeedPrefix Scheme = "seed-prefix"
	// SchemeBIP44 derives m/44'/236'/0'/0/{index}.
	SchemeBIP44 Scheme = "bip44"
)

// ParseScheme maps a config value to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeSeedPrefix, "":
		return SchemeSeedPrefix, nil
	case SchemeBIP44:
		return SchemeBIP44, nil
	}
	return "", fmt.Errorf("unknown derivation scheme %q", s)
}

// Source is where a private key comes from.
type Source interface {
	privateKey() ([]byte, error)
}

// RandomSeed draws a fresh key from Reader, crypto/rand when nil.
type RandomSeed struct {
	Reader io.Reader
}

// maxDraws bounds redraws of out-of-range scalars. A healthy CSPRNG needs one.
const maxDraws = 16

func (s RandomSeed) privateKey() ([]byte, error) {
	r := s.Reader
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, 32)
	for i := 0; i < maxDraws; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read entropy: %w", err)
		}
		if validScalar(buf) {
			return buf, nil
		}
	}
	clear(buf)
	return nil, errors.New("entropy source kept producing invalid scalars")
}

// MnemonicSeed derives a key from a BIP-39 phrase.
type MnemonicSeed struct {
	Phrase     string
	Passphrase string
	Scheme     Scheme
	Index      uint32
}

func (s MnemonicSeed) privateKey() ([]byte, error) {
	phrase := NormalizeMnemonic(s.Phrase)
	if err := ValidateMnemonic(phrase); err != nil {
		return nil, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidMnemonic, err)
	}
	defer clear(seed)

	switch s.Scheme {
	case SchemeBIP44:
		return deriveKey(seed, CoinTypeBSV, s.Index)
	case SchemeSeedPrefix, "":
		key := make([]byte, 32)
		copy(key, seed[:32])
		if !validScalar(key) {
			clear(key)
			return nil, models.ErrInvalidKey
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unknown derivation scheme %q", s.Scheme)
	}
}

// DeriveKeyMaterial produces key material for network from src.
// The result is a pure function of the private key.
func DeriveKeyMaterial(src Source, network models.Network) (*models.KeyMaterial, error) {
	priv, err := src.privateKey()
	if err != nil {
		return nil, err
	}
	km, err := KeyMaterialFromPrivate(priv, network)
	clear(priv)
	if err != nil {
		return nil, err
	}
	return km, nil
}

// KeyMaterialFromPrivate computes the public key and address of a 32-byte scalar.
// The returned KeyMaterial holds its own copy of priv.
func KeyMaterialFromPrivate(priv []byte, network models.Network) (*models.KeyMaterial, error) {
	if len(priv) != 32 || !validScalar(priv) {
		return nil, models.ErrInvalidKey
	}
	params, err := Params(network)
	if err != nil {
		return nil, err
	}
	pub := compressedPubKey(priv)
	addr, err := p2pkhAddress(pub, params)
	if err != nil {
		return nil, err
	}
	key := make([]byte, 32)
	copy(key, priv)
	return &models.KeyMaterial{
		PrivateKey: key,
		PublicKey:  hexString(pub),
		Address:    addr,
	}, nil
}

// validScalar reports whether b is a non-zero scalar below the curve order.
func validScalar(b []byte) bool {
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(b); overflow {
		return false
	}
	return !s.IsZero()
}
