// Package qr renders QR codes for result links.
package qr

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Size is the edge length of the PNG rendering in pixels.
const Size = 200

// Code is a QR code for Content in the renderings the kiosk views need.
type Code struct {
	Content  string
	PNG      []byte
	Terminal string
}

// Generate encodes content with high error correction.
func Generate(content string) (*Code, error) {
	if content == "" {
		return nil, errors.New("qr content is empty")
	}

	code, err := qrcode.New(content, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	png, err := code.PNG(Size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	return &Code{
		Content:  content,
		PNG:      png,
		Terminal: code.ToSmallString(false),
	}, nil
}
