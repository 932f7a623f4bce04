package secureqr

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// Verifier checks the signature that closes a secure QR payload.
type Verifier interface {
	// Verify returns nil when signature is valid for signed.
	Verify(signed, signature []byte) error
}

// RSAVerifier checks SHA256withRSA (PKCS #1 v1.5) signatures, the scheme
// UIDAI uses for secure QR codes.
type RSAVerifier struct {
	key *rsa.PublicKey
}

// NewRSAVerifier returns a verifier for key.
func NewRSAVerifier(key *rsa.PublicKey) *RSAVerifier {
	return &RSAVerifier{key: key}
}

// Verify implements Verifier.
func (v *RSAVerifier) Verify(signed, signature []byte) error {
	digest := sha256.Sum256(signed)
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], signature)
}

// LoadCertificate reads an X.509 certificate in PEM or DER form and
// returns a verifier for its RSA public key.
func LoadCertificate(path string) (*RSAVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate %s: %w", path, err)
	}
	return ParseCertificate(data)
}

// ParseCertificate parses a PEM or DER certificate.
func ParseCertificate(data []byte) (*RSAVerifier, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not hold an RSA public key")
	}
	return NewRSAVerifier(key), nil
}
