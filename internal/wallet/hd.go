package wallet

import (
	"fmt"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
	"github.com/tyler-smith/go-bip32"
)

// CoinTypeBSV is the SLIP-44 coin type registered for Bitcoin SV.
const CoinTypeBSV = 236

// HDGenerator generates BSV P2PKH addresses using BIP-44 derivation.
// Derivation path: m/44'/236'/0'/0/{index}
type HDGenerator struct {
	network models.Network
}

// NewHDGenerator returns an address generator for network.
func NewHDGenerator(network models.Network) *HDGenerator {
	return &HDGenerator{network: network}
}

// Network returns the ledger identifier.
func (g *HDGenerator) Network() models.Network {
	return g.network
}

// GenerateFromSeed derives an address from a BIP-39 seed.
func (g *HDGenerator) GenerateFromSeed(seed []byte, index uint32) (*models.DerivedAddress, error) {
	params, err := Params(g.network)
	if err != nil {
		return nil, err
	}

	key, err := deriveKey(seed, CoinTypeBSV, index)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer clear(key)

	pubKey := compressedPubKey(key)
	address, err := p2pkhAddress(pubKey, params)
	if err != nil {
		return nil, err
	}

	return &models.DerivedAddress{
		Network:        g.network,
		Address:        address,
		DerivationPath: DerivationPath(index),
		PublicKey:      hexString(pubKey),
	}, nil
}

// Addresses lists the first count receive addresses of seed.
func Addresses(gen Generator, seed []byte, count uint32) ([]*models.DerivedAddress, error) {
	out := make([]*models.DerivedAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		addr, err := gen.GenerateFromSeed(seed, i)
		if err != nil {
			return nil, fmt.Errorf("address %d: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// DerivationPath returns the BIP-44 receive path for index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", CoinTypeBSV, index)
}

// deriveKey walks m/44'/{coinType}'/0'/0/{index} and returns the child scalar.
func deriveKey(seed []byte, coinType uint32, index uint32) ([]byte, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	path := []struct {
		name  string
		index uint32
	}{
		{"purpose", bip32.FirstHardenedChild + 44},
		{"coin", bip32.FirstHardenedChild + coinType},
		{"account", bip32.FirstHardenedChild},
		{"change", 0},
		{"child", index},
	}

	key := masterKey
	for _, step := range path {
		key, err = key.NewChildKey(step.index)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", step.name, err)
		}
	}

	out := make([]byte, 32)
	copy(out, key.Key)
	return out, nil
}
