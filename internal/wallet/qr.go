package wallet

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// AddressQR renders address as a PNG QR code of size pixels.
func AddressQR(address string, size int) ([]byte, error) {
	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("create QR code: %w", err)
	}
	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("generate PNG: %w", err)
	}
	return png, nil
}

// AddressQRBase64 is AddressQR encoded for embedding in JSON.
func AddressQRBase64(address string) (string, error) {
	png, err := AddressQR(address, 256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
