package dispatch

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderPNG encodes content as a QR code PNG of size x size pixels.
func RenderPNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return png, nil
}

// RenderTerminal draws content as a QR code with half-block characters.
func RenderTerminal(content string) (string, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return q.ToSmallString(false), nil
}
