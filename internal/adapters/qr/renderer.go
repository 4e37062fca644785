package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"ticketbooth/internal/domain"
)

type pngRenderer struct {
	level qrcode.RecoveryLevel
}

// NewPNGRenderer returns a domain.QRRenderer that encodes redemption URLs as
// PNG QR codes with medium error recovery.
func NewPNGRenderer() domain.QRRenderer {
	return &pngRenderer{level: qrcode.Medium}
}

func (r *pngRenderer) RenderPNG(url string, size int) ([]byte, error) {
	png, err := qrcode.Encode(url, r.level, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
