package secureqr

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/charmap"

	"github.com/shinji-kodama/secureqr/internal/model"
)

// SignFunc produces the 256-byte signature over the payload bytes that
// precede it.
type SignFunc func(signed []byte) ([]byte, error)

// Encoder builds the base-10 text of a secure QR code from a Record.
// It is the inverse of Decoder and is mainly used to produce fixtures.
type Encoder struct {
	// Gzip selects gzip framing instead of zlib.
	Gzip bool

	// Sign produces the signature. When nil the signature is all zeros.
	Sign SignFunc
}

// Encode encodes rec with zlib framing and a zero signature.
func Encode(rec *model.Record) (string, error) {
	return Encoder{}.Encode(rec)
}

// Encode builds the payload described by rec, compresses it and returns
// the base-10 text. rec.Photo must be base64; rec.Mobile and rec.Email
// must be 64 hex characters when the indicator requires them.
func (e Encoder) Encode(rec *model.Record) (string, error) {
	raw, err := e.payload(rec)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	var w io.WriteCloser
	if e.Gzip {
		w = gzip.NewWriter(&buf)
	} else {
		w = zlib.NewWriter(&buf)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("compress payload: %w", err)
	}

	return new(big.Int).SetBytes(buf.Bytes()).String(), nil
}

// payload assembles the uncompressed payload bytes.
func (e Encoder) payload(rec *model.Record) ([]byte, error) {
	indicator, err := model.ParseIndicator(rec.Indicator)
	if err != nil {
		return nil, err
	}

	photo, err := base64.StdEncoding.DecodeString(rec.Photo)
	if err != nil {
		return nil, fmt.Errorf("photo is not base64: %w", err)
	}

	var buf bytes.Buffer
	enc := charmap.ISO8859_1.NewEncoder()
	for i, field := range rec.TextFields() {
		b, err := enc.Bytes([]byte(field))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", model.TextFieldNames[i], err)
		}
		if bytes.IndexByte(b, delimiter) >= 0 {
			return nil, fmt.Errorf("field %s contains the delimiter byte", model.TextFieldNames[i])
		}
		buf.Write(b)
		buf.WriteByte(delimiter)
	}
	buf.Write(photo)

	if indicator.HasMobile() {
		h, err := reversedHash(rec.Mobile)
		if err != nil {
			return nil, fmt.Errorf("mobile hash: %w", err)
		}
		buf.Write(h)
	}
	if indicator.HasEmail() {
		h, err := reversedHash(rec.Email)
		if err != nil {
			return nil, fmt.Errorf("email hash: %w", err)
		}
		buf.Write(h)
	}

	sig := make([]byte, model.SignatureLength)
	if e.Sign != nil {
		sig, err = e.Sign(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("sign payload: %w", err)
		}
		if len(sig) != model.SignatureLength {
			return nil, fmt.Errorf("signature is %d bytes, want %d", len(sig), model.SignatureLength)
		}
	}
	buf.Write(sig)

	return buf.Bytes(), nil
}

// reversedHash decodes a hex hash and reverses it into payload order.
func reversedHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != model.HashLength {
		return nil, fmt.Errorf("hash is %d bytes, want %d", len(b), model.HashLength)
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b, nil
}
