package barcode

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// DefaultRenderSize is the edge length in pixels used when none is given.
const DefaultRenderSize = 800

// Render draws text as a square QR code image of size×size pixels.
func Render(text string, size int) (image.Image, error) {
	if size <= 0 {
		size = DefaultRenderSize
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return matrix, nil
}

// WritePNG renders text and writes it to w as PNG.
func WritePNG(w io.Writer, text string, size int) error {
	img, err := Render(text, size)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}
