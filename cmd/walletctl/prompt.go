package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/OKaluzny/healthchain-wallet/internal/session"
)

// readSecret reads one line from the terminal without echo.
func readSecret(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal: run walletctl interactively")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("input cannot be empty")
	}
	return raw, nil
}

// newPassword asks twice and returns the password if both entries match.
func newPassword(prompt string) ([]byte, error) {
	first, err := readSecret(prompt)
	if err != nil {
		return nil, err
	}
	second, err := readSecret("Repeat password: ")
	if err != nil {
		clear(first)
		return nil, err
	}
	defer clear(second)
	if !bytes.Equal(first, second) {
		clear(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

// readPhrase reads a mnemonic without echo.
func readPhrase() (string, error) {
	raw, err := readSecret("Mnemonic: ")
	if err != nil {
		return "", err
	}
	defer clear(raw)
	return strings.TrimSpace(string(raw)), nil
}

func promptCredential(_ context.Context, req session.CredentialRequest) ([]byte, error) {
	return readSecret(fmt.Sprintf("Wallet password (%s): ", req.Reason))
}
