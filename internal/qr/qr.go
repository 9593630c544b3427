// Package qr renders pairing landing URLs as QR codes.
package qr

import (
	"encoding/base64"
	"fmt"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultPNGSize is the edge length in pixels of generated PNGs.
const DefaultPNGSize = 256

// Terminal writes the code as half-block characters, suitable for a TTY.
type Terminal struct {
	W io.Writer

	// Inverse swaps dark and light modules for light-on-dark terminals.
	Inverse bool
}

// Render implements pairing.QRRenderer.
func (t Terminal) Render(url string) error {
	s, err := String(url, t.Inverse)
	if err != nil {
		return err
	}
	_, err = io.WriteString(t.W, s)
	return err
}

// String encodes content as a compact terminal QR code.
func String(content string, inverse bool) (string, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return code.ToSmallString(inverse), nil
}

// PNG encodes content as a PNG image of size x size pixels.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPNGSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return png, nil
}

// DataURL encodes content as a base64 PNG data URL for embedding in HTML.
func DataURL(content string) (string, error) {
	png, err := PNG(content, DefaultPNGSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// File renders to a PNG file at path.
type File struct {
	Path string
	Size int
}

// Render implements pairing.QRRenderer.
func (f File) Render(url string) error {
	size := f.Size
	if size <= 0 {
		size = DefaultPNGSize
	}
	if err := qrcode.WriteFile(url, qrcode.Medium, size, f.Path); err != nil {
		return fmt.Errorf("write qr png: %w", err)
	}
	return nil
}
