// Package vault seals wallet secrets under a password.
//
// Records are AES-256-GCM ciphertexts keyed by PBKDF2-HMAC-SHA256. Each
// record carries its own random salt. Records written before per-record
// salts existed have no salt and are opened with the historical fixed salt.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/OKaluzny/healthchain-wallet/pkg/models"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version of records written by Encrypt.
	Version = 2
	// KDF names the key derivation recorded in each record.
	KDF = "pbkdf2-sha256"
	// Iterations of PBKDF2. Matches what browser-side vaults used.
	Iterations = 200_000

	keyLen  = 32
	saltLen = 16
	ivLen   = 12
)

// legacySalt opened every record before salts were stored per record.
var legacySalt = []byte("bsv-healthchain-wallet-salt")

// Encrypt seals plaintext under password with a fresh salt and IV.
func Encrypt(plaintext, password []byte) (*models.EncryptedVaultRecord, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	gcm, err := newGCM(password, salt, Iterations)
	if err != nil {
		return nil, err
	}

	return &models.EncryptedVaultRecord{
		Version:    Version,
		KDF:        KDF,
		Iterations: Iterations,
		Salt:       salt,
		IV:         iv,
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
	}, nil
}

// Decrypt opens rec with password. Any authentication failure, including a
// wrong password, is reported as ErrDecryptionFailed.
func Decrypt(rec *models.EncryptedVaultRecord, password []byte) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: empty record", models.ErrDecryptionFailed)
	}
	if len(rec.IV) != ivLen {
		return nil, fmt.Errorf("%w: iv must be %d bytes", models.ErrDecryptionFailed, ivLen)
	}
	if rec.KDF != "" && rec.KDF != KDF {
		return nil, fmt.Errorf("%w: unsupported kdf %q", models.ErrDecryptionFailed, rec.KDF)
	}

	salt := rec.Salt
	if len(salt) == 0 {
		salt = legacySalt
	}
	iter := rec.Iterations
	if iter <= 0 {
		iter = Iterations
	}

	gcm, err := newGCM(password, salt, iter)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, rec.IV, rec.Ciphertext, nil)
	if err != nil {
		return nil, models.ErrDecryptionFailed
	}
	return plaintext, nil
}

// Rekey opens rec with oldPassword and seals the plaintext again under
// newPassword with a fresh salt. Legacy records come out salted.
func Rekey(rec *models.EncryptedVaultRecord, oldPassword, newPassword []byte) (*models.EncryptedVaultRecord, error) {
	plaintext, err := Decrypt(rec, oldPassword)
	if err != nil {
		return nil, err
	}
	defer clear(plaintext)
	return Encrypt(plaintext, newPassword)
}

// IsLegacy reports whether rec was written with the fixed salt.
func IsLegacy(rec *models.EncryptedVaultRecord) bool {
	return rec != nil && len(rec.Salt) == 0
}

func newGCM(password, salt []byte, iter int) (cipher.AEAD, error) {
	key := pbkdf2.Key(password, salt, iter, keyLen, sha256.New)
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
