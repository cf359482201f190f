package vault

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// Secret is the sealed payload of a wallet. Mnemonic is empty for wallets
// imported from a raw private key.
type Secret struct {
	Mnemonic string `json:"mnemonic,omitempty"`
	WIF      string `json:"wif"`
}

// Seal encrypts s under password.
func (s *Secret) Seal(password []byte) (*models.EncryptedVaultRecord, error) {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal secret: %w", err)
	}
	defer clear(plaintext)
	return Encrypt(plaintext, password)
}

// Open decrypts rec and decodes the secret inside.
func Open(rec *models.EncryptedVaultRecord, password []byte) (*Secret, error) {
	plaintext, err := Decrypt(rec, password)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)

	var s Secret
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("%w: malformed secret", models.ErrDecryptionFailed)
	}
	if s.WIF == "" {
		return nil, fmt.Errorf("%w: secret has no key", models.ErrDecryptionFailed)
	}
	return &s, nil
}

// Zero drops references to the secret strings. Go strings are immutable, so
// this only shortens how long they stay reachable.
func (s *Secret) Zero() {
	s.Mnemonic = ""
	s.WIF = ""
}

// browserRecord is how the portal's browser vault serialised a record:
// byte arrays as JSON number lists and no salt field.
type browserRecord struct {
	IV   []int `json:"iv"`
	Data []int `json:"data"`
}

// DecodeRecord parses a stored record in either the current format or the
// browser vault format.
func DecodeRecord(raw []byte) (*models.EncryptedVaultRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode vault record: %w", err)
	}

	if _, ok := fields["data"]; ok {
		var br browserRecord
		if err := json.Unmarshal(raw, &br); err != nil {
			return nil, fmt.Errorf("decode browser vault record: %w", err)
		}
		iv, err := intsToBytes(br.IV)
		if err != nil {
			return nil, err
		}
		data, err := intsToBytes(br.Data)
		if err != nil {
			return nil, err
		}
		return &models.EncryptedVaultRecord{
			Version:    1,
			KDF:        KDF,
			Iterations: Iterations,
			IV:         iv,
			Ciphertext: data,
		}, nil
	}

	var rec models.EncryptedVaultRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode vault record: %w", err)
	}
	if len(rec.Ciphertext) == 0 {
		return nil, errors.New("decode vault record: missing ciphertext")
	}
	return &rec, nil
}

// EncodeRecord serialises rec in the current format.
func EncodeRecord(rec *models.EncryptedVaultRecord) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode vault record: %w", err)
	}
	return b, nil
}

func intsToBytes(in []int) ([]byte, error) {
	out := make([]byte, len(in))
	for i, v := range in {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("decode browser vault record: byte %d out of range", v)
		}
		out[i] = byte(v)
	}
	return out, nil
}
