package wallet

import (
	"fmt"
	"strings"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
	"github.com/tyler-smith/go-bip39"
)

// GenerateMnemonic returns a new English BIP-39 phrase of 12 or 24 words.
func GenerateMnemonic(words int) (string, error) {
	var bits int
	switch words {
	case 12:
		bits = 128
	case 24:
		bits = 256
	default:
		return "", fmt.Errorf("%w: mnemonic must have 12 or 24 words, got %d", models.ErrInvalidRequest, words)
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	defer clear(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic accepts 12 or 24 word phrases with valid words and checksum.
func ValidateMnemonic(phrase string) error {
	phrase = NormalizeMnemonic(phrase)
	n := len(strings.Fields(phrase))
	if n != 12 && n != 24 {
		return fmt.Errorf("%w: expected 12 or 24 words, got %d", models.ErrInvalidMnemonic, n)
	}
	if !bip39.IsMnemonicValid(phrase) {
		return models.ErrInvalidMnemonic
	}
	return nil
}

// NormalizeMnemonic lowercases the phrase and collapses whitespace.
func NormalizeMnemonic(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// Seed returns the BIP-39 seed of phrase with an empty passphrase.
func Seed(phrase string) ([]byte, error) {
	phrase = NormalizeMnemonic(phrase)
	if err := ValidateMnemonic(phrase); err != nil {
		return nil, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidMnemonic, err)
	}
	return seed, nil
}
