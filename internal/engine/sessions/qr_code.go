package sessions

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

// GenerateQRCode renders a pairing payload as a PNG for the client to
// scan with the WhatsApp app.
func GenerateQRCode(payload string, size int) ([]byte, error) {
	// Default size
	if size == 0 {
		size = 512
	}

	// Validate size
	if size < 128 || size > 2048 {
		return nil, errors.New("invalid size: must be between 128 and 2048")
	}

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	qr.DisableBorder = false

	return qr.PNG(size)
}
