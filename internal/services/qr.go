package services

import (
	"bytes"
	"fmt"
	"image/png"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// QR image size bounds in pixels.
const (
	MinQRSize     = 100
	MaxQRSize     = 1000
	DefaultQRSize = 256
)

// QRService renders QR codes linking to stored predictions, so a result can
// be opened on another device at the bedside.
type QRService struct {
	baseURL string
}

// NewQRService creates a QR service for links under baseURL.
func NewQRService(baseURL string) *QRService {
	return &QRService{baseURL: strings.TrimRight(baseURL, "/")}
}

// PredictionLink returns the API link to a stored prediction.
func (s *QRService) PredictionLink(predictionID string) string {
	return s.baseURL + "/v1/predictions/" + url.PathEscape(predictionID)
}

// PredictionPNG renders the prediction link as a PNG. Size is clamped to
// [MinQRSize, MaxQRSize].
func (s *QRService) PredictionPNG(predictionID string, size int) ([]byte, error) {
	if size < MinQRSize {
		size = MinQRSize
	}
	if size > MaxQRSize {
		size = MaxQRSize
	}

	qr, err := qrcode.New(s.PredictionLink(predictionID), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(size)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PredictionText renders the prediction link as a terminal-printable QR.
func (s *QRService) PredictionText(predictionID string) (string, error) {
	qr, err := qrcode.New(s.PredictionLink(predictionID), qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return qr.ToSmallString(false), nil
}
