package secureqr

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/secureqr/internal/model"
)

const (
	testMobileHash = "1f2e3d4c5b6a79880102030405060708090a0b0c0d0e0f101112131415161718"
	testEmailHash  = "a0a1a2a3a4a5a6a7a8a9aaabacadaeafb0b1b2b3b4b5b6b7b8b9babbbcbdbebf"
)

// sampleRecord returns a fully populated record for the given indicator.
func sampleRecord(indicator string) *model.Record {
	rec := &model.Record{
		Indicator:   indicator,
		ReferenceID: "123420190101120000000",
		Name:        "Jöhn Doe",
		DOB:         "01-01-1990",
		Gender:      "M",
		CareOf:      "S/O Père",
		District:    "Bangalore",
		Landmark:    "Near Park",
		House:       "12",
		Location:    "Koramangala",
		PinCode:     "560034",
		PostOffice:  "Koramangala",
		State:       "Karnataka",
		Street:      "1st Main",
		SubDistrict: "Bangalore South",
		VTC:         "Bangalore",
		Photo:       base64.StdEncoding.EncodeToString([]byte("\x00\x00\x00\x0cjP  \r\n\x87\nphoto")),
	}
	ind, _ := model.ParseIndicator(indicator)
	if ind.HasMobile() {
		rec.Mobile = testMobileHash
	}
	if ind.HasEmail() {
		rec.Email = testEmailHash
	}
	return rec
}

// zlibNumber compresses raw and returns the base-10 text of the result.
func zlibNumber(t *testing.T, raw []byte) string {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return new(big.Int).SetBytes(buf.Bytes()).String()
}

// TestDecode_HandBuiltPayload decodes a payload assembled byte by byte,
// independent of Encoder, to pin the layout.
func TestDecode_HandBuiltPayload(t *testing.T) {
	var raw bytes.Buffer
	fields := []string{"3", "ref", "N\xe4me"}
	for len(fields) < model.TextFieldCount {
		fields = append(fields, "f")
	}
	for _, f := range fields {
		raw.WriteString(f)
		raw.WriteByte(0xFF)
	}
	raw.Write([]byte{0xCA, 0xFE})

	mobile := make([]byte, 32)
	email := make([]byte, 32)
	for i := 0; i < 32; i++ {
		mobile[i] = byte(i)
		email[i] = byte(0x80 + i)
	}
	raw.Write(mobile)
	raw.Write(email)
	raw.Write(make([]byte, 256))

	rec, err := Decode(zlibNumber(t, raw.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, "3", rec.Indicator)
	assert.Equal(t, "ref", rec.ReferenceID)
	assert.Equal(t, "Näme", rec.Name, "text fields are ISO-8859-1")
	assert.Equal(t, "f", rec.VTC)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xCA, 0xFE}), rec.Photo)

	// Hashes are reported byte-reversed.
	assert.True(t, strings.HasPrefix(rec.Mobile, "1f1e1d"), rec.Mobile)
	assert.True(t, strings.HasSuffix(rec.Mobile, "020100"), rec.Mobile)
	assert.True(t, strings.HasPrefix(rec.Email, "9f9e9d"), rec.Email)
	assert.True(t, strings.HasSuffix(rec.Email, "828180"), rec.Email)
}

// TestEncodeDecode_Indicators verifies that every indicator value
// survives an encode/decode cycle with the right hashes present.
func TestEncodeDecode_Indicators(t *testing.T) {
	tests := []struct {
		indicator string
		mobile    string
		email     string
	}{
		{"0", "", ""},
		{"1", testMobileHash, ""},
		{"2", "", testEmailHash},
		{"3", testMobileHash, testEmailHash},
	}

	for _, tt := range tests {
		t.Run("indicator "+tt.indicator, func(t *testing.T) {
			want := sampleRecord(tt.indicator)

			qr, err := Encode(want)
			require.NoError(t, err)

			got, err := Decode(qr)
			require.NoError(t, err)

			assert.Equal(t, want, got)
			assert.Equal(t, tt.mobile, got.Mobile)
			assert.Equal(t, tt.email, got.Email)
		})
	}
}

// TestDecode_Gzip verifies that gzip-framed payloads are accepted too.
func TestDecode_Gzip(t *testing.T) {
	want := sampleRecord("1")
	qr, err := Encoder{Gzip: true}.Encode(want)
	require.NoError(t, err)

	got, err := Decode(qr)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestDecode_UnknownIndicatorHasNoHashes covers indicator values outside
// 0-3, which reserve only the signature.
func TestDecode_UnknownIndicatorHasNoHashes(t *testing.T) {
	want := sampleRecord("5")
	qr, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(qr)
	require.NoError(t, err)
	assert.Empty(t, got.Mobile)
	assert.Empty(t, got.Email)
	assert.Equal(t, want.Photo, got.Photo)
}

// TestDecode_Whitespace verifies that surrounding whitespace is ignored,
// as scanners often append a newline.
func TestDecode_Whitespace(t *testing.T) {
	qr, err := Encode(sampleRecord("0"))
	require.NoError(t, err)

	_, err = Decode("  " + qr + "\n")
	assert.NoError(t, err)
}

// TestDecode_Errors checks the stage and message of every failure path.
func TestDecode_Errors(t *testing.T) {
	fewDelims := zlibNumber(t, []byte("1\xffonly\xfftwo\xff"))
	badIndicator := func() string {
		var raw bytes.Buffer
		raw.WriteString("x")
		for i := 0; i < model.TextFieldCount; i++ {
			raw.WriteByte(0xFF)
		}
		raw.Write(make([]byte, 300))
		return zlibNumber(t, raw.Bytes())
	}()
	short := func() string {
		var raw bytes.Buffer
		raw.WriteString("3")
		for i := 0; i < model.TextFieldCount; i++ {
			raw.WriteByte(0xFF)
		}
		raw.Write(make([]byte, 100))
		return zlibNumber(t, raw.Bytes())
	}()

	tests := []struct {
		name   string
		input  string
		stage  Stage
		prefix string
	}{
		{"empty", "   ", StageConvert, "Error converting QR data to bytes"},
		{"letters", "12ab34", StageConvert, "Error converting QR data to bytes"},
		{"negative", "-1234", StageConvert, "Error converting QR data to bytes"},
		{"not compressed", "123456789", StageDecompress, "Decompression failed"},
		{"zero", "0", StageDecompress, "Decompression failed"},
		{"few delimiters", fewDelims, StageFields, "Not enough delimiters found; expected 16 text fields."},
		{"bad indicator", badIndicator, StageIndicator, "Invalid indicator value"},
		{"too short", short, StageLayout, "Payload too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)

			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "error should be a *DecodeError")
			assert.Equal(t, tt.stage, decErr.Stage)
			assert.True(t, strings.HasPrefix(err.Error(), tt.prefix), err.Error())
		})
	}
}

// TestDecoder_Limits verifies the digit and decompression limits.
func TestDecoder_Limits(t *testing.T) {
	qr, err := Encode(sampleRecord("3"))
	require.NoError(t, err)

	t.Run("max digits", func(t *testing.T) {
		d := NewDecoder(WithMaxDigits(len(qr) - 1))
		_, err := d.Decode(qr)
		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, StageConvert, decErr.Stage)
	})

	t.Run("max decompressed bytes", func(t *testing.T) {
		d := NewDecoder(WithMaxDecompressedBytes(64))
		_, err := d.Decode(qr)
		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, StageDecompress, decErr.Stage)
		assert.Contains(t, err.Error(), "exceeds 64 bytes")
	})

	t.Run("non-positive values keep defaults", func(t *testing.T) {
		d := NewDecoder(WithMaxDigits(0), WithMaxDecompressedBytes(-1))
		_, err := d.Decode(qr)
		assert.NoError(t, err)
	})
}

// TestEncode_Rejects covers records that cannot be encoded.
func TestEncode_Rejects(t *testing.T) {
	t.Run("delimiter in field", func(t *testing.T) {
		rec := sampleRecord("0")
		rec.Name = "ÿ" // U+00FF encodes to 0xFF in Latin-1
		_, err := Encode(rec)
		assert.Error(t, err)
	})

	t.Run("bad photo", func(t *testing.T) {
		rec := sampleRecord("0")
		rec.Photo = "!!"
		_, err := Encode(rec)
		assert.Error(t, err)
	})

	t.Run("missing hash", func(t *testing.T) {
		rec := sampleRecord("1")
		rec.Mobile = ""
		_, err := Encode(rec)
		assert.Error(t, err)
	})

	t.Run("bad signature length", func(t *testing.T) {
		enc := Encoder{Sign: func([]byte) ([]byte, error) { return []byte{1, 2, 3}, nil }}
		_, err := enc.Encode(sampleRecord("0"))
		assert.Error(t, err)
	})
}

// TestDecode_Signature verifies optional RSA signature checking.
func TestDecode_Signature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	sign := func(signed []byte) ([]byte, error) {
		digest := sha256.Sum256(signed)
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	}

	want := sampleRecord("3")
	signedQR, err := Encoder{Sign: sign}.Encode(want)
	require.NoError(t, err)
	unsignedQR, err := Encode(want)
	require.NoError(t, err)

	d := NewDecoder(WithVerifier(NewRSAVerifier(&key.PublicKey)))

	t.Run("valid", func(t *testing.T) {
		got, err := d.Decode(signedQR)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := d.Decode(unsignedQR)
		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, StageSignature, decErr.Stage)
		assert.True(t, strings.HasPrefix(err.Error(), "Signature verification failed"))
	})

	t.Run("not checked without verifier", func(t *testing.T) {
		_, err := Decode(unsignedQR)
		assert.NoError(t, err)
	})
}

// TestParseCertificate verifies PEM and DER certificate loading.
func TestParseCertificate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "uidai-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	for name, data := range map[string][]byte{"pem": pemBytes, "der": der} {
		t.Run(name, func(t *testing.T) {
			v, err := ParseCertificate(data)
			require.NoError(t, err)
			assert.Equal(t, 0, key.PublicKey.N.Cmp(v.key.N))
		})
	}

	_, err = ParseCertificate([]byte("not a certificate"))
	assert.Error(t, err)
}
