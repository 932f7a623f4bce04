package barcode

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	// Image decoders register themselves with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

var (
	// ErrImageOpen is returned when the input is not a decodable image.
	ErrImageOpen = errors.New("Error opening image")

	// ErrNoCode is returned when no QR code could be located or read.
	ErrNoCode = errors.New("No QR code detected or unable to decode")

	// ErrEmptyCode is returned when a QR code was read but holds no data.
	ErrEmptyCode = errors.New("QR code data is empty")
)

// Scanner reads the first QR code found in an image.
// A Scanner is safe for concurrent use; each call creates its own reader.
type Scanner struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewScanner creates a Scanner that spends extra effort locating codes,
// which matters for phone photos of printed cards.
func NewScanner() *Scanner {
	return &Scanner{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Scan decodes the image in r and returns the text of its QR code.
func (s *Scanner) Scan(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageOpen, err)
	}
	return s.ScanImage(img)
}

// ScanImage returns the text of the QR code in img.
//
// Invalid UTF-8 in the code is replaced with U+FFFD rather than rejected.
func (s *Scanner) ScanImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageOpen, err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, s.hints)
	if err != nil {
		return "", ErrNoCode
	}

	return codeText(result.GetText())
}

// codeText normalises the raw text of a code: invalid UTF-8 sequences
// become U+FFFD and an empty code is ErrEmptyCode.
func codeText(raw string) (string, error) {
	text := strings.ToValidUTF8(raw, "\uFFFD")
	if text == "" {
		return "", ErrEmptyCode
	}
	return text, nil
}
