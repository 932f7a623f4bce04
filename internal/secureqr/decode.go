package secureqr

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"

	"github.com/shinji-kodama/secureqr/internal/model"
)

const (
	// delimiter separates the text fields of a payload.
	delimiter = 0xFF

	// DefaultMaxDigits bounds the length of the base-10 input. Real codes
	// hold a few thousand digits.
	DefaultMaxDigits = 16384

	// DefaultMaxDecompressedBytes bounds the size of the inflated payload.
	DefaultMaxDecompressedBytes = 1 << 20
)

// gzipMagic opens every gzip stream.
var gzipMagic = []byte{0x1f, 0x8b}

// Decoder turns the base-10 text of a secure QR code into a Record.
// The zero value is not usable; create one with NewDecoder.
// A Decoder is safe for concurrent use.
type Decoder struct {
	maxDigits            int
	maxDecompressedBytes int64
	verifier             Verifier
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxDigits sets the maximum accepted input length in digits.
// Zero or negative values keep the default.
func WithMaxDigits(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxDigits = n
		}
	}
}

// WithMaxDecompressedBytes sets the maximum inflated payload size.
// Zero or negative values keep the default.
func WithMaxDecompressedBytes(n int64) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxDecompressedBytes = n
		}
	}
}

// WithVerifier enables signature verification.
func WithVerifier(v Verifier) Option {
	return func(d *Decoder) {
		d.verifier = v
	}
}

// NewDecoder creates a Decoder with the given options applied over the
// defaults.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		maxDigits:            DefaultMaxDigits,
		maxDecompressedBytes: DefaultMaxDecompressedBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// defaultDecoder backs the package-level Decode.
var defaultDecoder = NewDecoder()

// Decode decodes qr with default limits and no signature verification.
func Decode(qr string) (*model.Record, error) {
	return defaultDecoder.Decode(qr)
}

// Decode converts the base-10 text of a secure QR code into a Record.
// Every failure is a *DecodeError.
func (d *Decoder) Decode(qr string) (*model.Record, error) {
	// Step 1: base-10 text → big-endian bytes.
	compressed, err := d.toBytes(qr)
	if err != nil {
		return nil, newDecodeError(StageConvert, err)
	}

	// Step 2: inflate.
	raw, err := d.decompress(compressed)
	if err != nil {
		return nil, newDecodeError(StageDecompress, err)
	}

	// Step 3: locate the sixteen delimiters.
	positions := delimiterPositions(raw, model.TextFieldCount)
	if len(positions) < model.TextFieldCount {
		return nil, ErrNotEnoughDelimiters
	}

	// Step 4: decode the text fields as ISO-8859-1.
	fields, err := decodeTextFields(raw, positions)
	if err != nil {
		return nil, newDecodeError(StageFields, err)
	}
	rec := &model.Record{}
	if err := rec.SetTextFields(fields); err != nil {
		return nil, newDecodeError(StageFields, err)
	}

	// Step 5: the indicator decides the tail length.
	indicator, err := model.ParseIndicator(rec.Indicator)
	if err != nil {
		return nil, newDecodeError(StageIndicator, err)
	}

	photoStart := positions[len(positions)-1] + 1
	tailStart := len(raw) - indicator.TailLength()
	if tailStart < photoStart {
		return nil, newDecodeError(StageLayout, fmt.Errorf(
			"%d bytes after the text fields, indicator %s needs at least %d",
			len(raw)-photoStart, indicator, indicator.TailLength()))
	}

	// Step 6: optional signature check over everything but the signature.
	if d.verifier != nil {
		sigStart := len(raw) - model.SignatureLength
		if err := d.verifier.Verify(raw[:sigStart], raw[sigStart:]); err != nil {
			return nil, newDecodeError(StageSignature, err)
		}
	}

	// Step 7: photo and hashes.
	rec.Photo = base64.StdEncoding.EncodeToString(raw[photoStart:tailStart])

	offset := tailStart
	if indicator.HasMobile() {
		rec.Mobile = reversedHex(raw[offset : offset+model.HashLength])
		offset += model.HashLength
	}
	if indicator.HasEmail() {
		rec.Email = reversedHex(raw[offset : offset+model.HashLength])
	}

	return rec, nil
}

// toBytes parses qr as a non-negative base-10 integer and returns its
// minimal big-endian representation.
func (d *Decoder) toBytes(qr string) ([]byte, error) {
	s := strings.TrimSpace(qr)
	if s == "" {
		return nil, errors.New("empty input")
	}
	if len(s) > d.maxDigits {
		return nil, fmt.Errorf("input has %d digits, limit is %d", len(s), d.maxDigits)
	}

	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid base-10 integer %q", abbreviate(s, 32))
	}
	if n.Sign() < 0 {
		return nil, errors.New("can't convert negative int to unsigned")
	}
	return n.Bytes(), nil
}

// decompress inflates data as gzip when it carries the gzip magic and as
// zlib otherwise.
func (d *Decoder) decompress(data []byte) ([]byte, error) {
	var (
		r   io.ReadCloser
		err error
	)
	if bytes.HasPrefix(data, gzipMagic) {
		r, err = gzip.NewReader(bytes.NewReader(data))
	} else {
		r, err = zlib.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	// Read one byte past the limit so an oversized stream is detected
	// rather than silently truncated.
	out, err := io.ReadAll(io.LimitReader(r, d.maxDecompressedBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > d.maxDecompressedBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", d.maxDecompressedBytes)
	}
	return out, nil
}

// delimiterPositions returns the indexes of the first n delimiter bytes.
func delimiterPositions(raw []byte, n int) []int {
	positions := make([]int, 0, n)
	for i, b := range raw {
		if b == delimiter {
			positions = append(positions, i)
			if len(positions) == n {
				break
			}
		}
	}
	return positions
}

// decodeTextFields decodes the bytes before each delimiter position.
func decodeTextFields(raw []byte, positions []int) ([]string, error) {
	dec := charmap.ISO8859_1.NewDecoder()
	fields := make([]string, 0, len(positions))
	start := 0
	for _, pos := range positions {
		field, err := dec.Bytes(raw[start:pos])
		if err != nil {
			return nil, err
		}
		fields = append(fields, string(field))
		start = pos + 1
	}
	return fields, nil
}

// reversedHex returns the hex encoding of b in reverse byte order.
// b is not modified.
func reversedHex(b []byte) string {
	rev := make([]byte, len(b))
	for i := range b {
		rev[len(b)-1-i] = b[i]
	}
	return hex.EncodeToString(rev)
}

// abbreviate shortens s for error messages.
func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
