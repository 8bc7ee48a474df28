package qrcode

import (
	"fmt"
	"os"
	"time"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

// Generate creates a QR code image for a pool join link and returns the
// path of the written file. The caller removes it after sending.
func Generate(joinURL string) (string, error) {
	qrc, err := qrcode.New(joinURL)
	if err != nil {
		return "", fmt.Errorf("error creating QR code: %w", err)
	}

	// Generate a unique filename
	filename := fmt.Sprintf("qr_join_%d.jpg", time.Now().UnixNano())
	fileWriter, err := standard.New(filename)
	if err != nil {
		return "", fmt.Errorf("error creating file writer: %w", err)
	}

	if err = qrc.Save(fileWriter); err != nil {
		os.Remove(filename) // Clean up on error
		return "", fmt.Errorf("error saving QR code: %w", err)
	}

	return filename, nil
}

// Remove deletes the QR code file
func Remove(filename string) error {
	return os.Remove(filename)
}
