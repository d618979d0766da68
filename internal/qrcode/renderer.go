package qrcode

import (
	"encoding/base64"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 200

	dataURLPrefix = "data:image/png;base64,"
)

// Renderer turns an opaque payload into an embeddable PNG data URL.
type Renderer interface {
	Render(payload string) (string, error)
}

type pngRenderer struct {
	size  int
	level goqrcode.RecoveryLevel
}

func NewRenderer(size int) Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &pngRenderer{
		size:  size,
		level: goqrcode.Medium,
	}
}

func (r *pngRenderer) Render(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("qr payload cannot be empty")
	}
	png, err := goqrcode.Encode(payload, r.level, r.size)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
