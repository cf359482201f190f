package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Params returns the address/WIF parameters of a network.
// BSV keeps Bitcoin's version bytes, so the btcd parameter sets apply.
func Params(network models.Network) (*chaincfg.Params, error) {
	switch network {
	case models.NetworkMain, "":
		return &chaincfg.MainNetParams, nil
	case models.NetworkTest:
		return &chaincfg.TestNet3Params, nil
	}
	return nil, fmt.Errorf("unsupported network %q", network)
}

// EncodeWIF encodes a private key as compressed WIF.
func EncodeWIF(priv []byte, network models.Network) (string, error) {
	if len(priv) != 32 || !validScalar(priv) {
		return "", models.ErrInvalidKey
	}
	params, err := Params(network)
	if err != nil {
		return "", err
	}
	key, _ := btcec.PrivKeyFromBytes(priv)
	defer key.Zero()
	wif, err := btcutil.NewWIF(key, params, true)
	if err != nil {
		return "", fmt.Errorf("encode wif: %w", err)
	}
	return wif.String(), nil
}

// DecodeWIF returns the 32-byte scalar of a WIF string for network.
func DecodeWIF(s string, network models.Network) ([]byte, error) {
	params, err := Params(network)
	if err != nil {
		return nil, err
	}
	wif, err := btcutil.DecodeWIF(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidKey, err)
	}
	if !wif.IsForNet(params) {
		return nil, fmt.Errorf("%w: wif is not for %s", models.ErrInvalidKey, network)
	}
	return wif.PrivKey.Serialize(), nil
}

// ParsePrivateKey accepts a 64-char hex scalar or a WIF string.
func ParsePrivateKey(hexOrWIF string, network models.Network) ([]byte, error) {
	s := strings.TrimSpace(hexOrWIF)
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			if !validScalar(b) {
				return nil, models.ErrInvalidKey
			}
			return b, nil
		}
	}
	return DecodeWIF(s, network)
}

// ParseRecipient accepts a P2PKH address or a hex-encoded public key and
// returns the P2PKH address to pay.
func ParseRecipient(s string, network models.Network) (*btcutil.AddressPubKeyHash, error) {
	params, err := Params(network)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)

	if addr, err := btcutil.DecodeAddress(s, params); err == nil {
		pkh, ok := addr.(*btcutil.AddressPubKeyHash)
		if ok && pkh.IsForNet(params) {
			return pkh, nil
		}
	}

	if raw, err := hex.DecodeString(s); err == nil {
		if pub, err := btcec.ParsePubKey(raw); err == nil {
			return btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
		}
	}
	return nil, fmt.Errorf("%w: %q", models.ErrInvalidAddress, s)
}

// --- helpers ---

func compressedPubKey(privKeyBytes []byte) []byte {
	_, pubKey := btcec.PrivKeyFromBytes(privKeyBytes)
	return pubKey.SerializeCompressed()
}

// p2pkhAddress is Base58Check(version + Hash160(pubKey)).
func p2pkhAddress(pubKey []byte, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pubKey), params)
	if err != nil {
		return "", fmt.Errorf("p2pkh address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
