package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMnemonic is returned for phrases failing the word list or checksum.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrDecryptionFailed is returned when the vault cannot be opened, usually a wrong password.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInsufficientFunds is returned when the available outputs cannot cover amount plus fee.
	ErrInsufficientFunds = errors.New("insufficient funds: cannot cover amount + fee")

	// ErrSigningFailed is returned when key material is missing or a signature cannot be produced.
	ErrSigningFailed = errors.New("signing failed")

	// ErrBroadcast is the sentinel behind every BroadcastError.
	ErrBroadcast = errors.New("broadcast failed")

	// ErrUnsupportedOperation is returned when a wallet provider lacks a capability.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrWalletNotFound is returned when no wallet has been created or imported.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidAddress is returned for recipients that are neither a P2PKH address nor a public key.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidKey is returned for private keys outside the curve order or badly encoded.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrSessionLocked is returned when an operation needs a connected session.
	ErrSessionLocked = errors.New("no wallet connected")

	// ErrTxNotFound is returned when no signed transaction is stored under a txid.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrAddressNotWatched is returned when removing an address that is not watched.
	ErrAddressNotWatched = errors.New("address is not watched")

	// ErrInvalidRequest is returned for malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
)

// BroadcastError reports a rejected or failed broadcast. RawTx carries the
// signed transaction so it can be resubmitted by hand.
type BroadcastError struct {
	Status int
	Body   string
	RawTx  string
	Err    error
}

func (e *BroadcastError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("broadcast failed: %v", e.Err)
	case e.Status != 0:
		return fmt.Sprintf("broadcast failed: status %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("broadcast failed: %s", e.Body)
	}
}

// Unwrap lets errors.Is match ErrBroadcast and the transport error.
func (e *BroadcastError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBroadcast, e.Err}
	}
	return []error{ErrBroadcast}
}
