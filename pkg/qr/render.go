package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const (
	// SessionSize is the PNG edge in pixels for session codes.
	SessionSize = 512
	// BatchSize is the PNG edge in pixels for batch codes, which carry more data.
	BatchSize = 640
)

// RenderSession draws the payload at high error correction.
func RenderSession(p SessionPayload) ([]byte, error) {
	content, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return render(content, qrcode.High, SessionSize)
}

// RenderBatch draws the payload at medium error correction.
func RenderBatch(p BatchPayload) ([]byte, error) {
	content, err := Encode(p)
	if err != nil {
		return nil, err
	}
	return render(content, qrcode.Medium, BatchSize)
}

func render(content string, level qrcode.RecoveryLevel, size int) ([]byte, error) {
	code, err := qrcode.New(content, level)
	if err != nil {
		return nil, fmt.Errorf("build qr code: %w", err)
	}
	png, err := code.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}
