// Package secureqr decodes and encodes UIDAI secure QR payloads.
//
// A secure QR code carries one very large base-10 integer. Its big-endian
// bytes are a zlib (or gzip) stream which inflates to:
//
//	field0 0xFF field1 0xFF ... field15 0xFF photo [mobile] [email] signature
//
// The sixteen text fields are ISO-8859-1. The first field is the
// email/mobile indicator, which decides how many 32-byte hashes sit
// between the photo and the 256-byte RSA signature. Hashes are stored
// byte-reversed and reported as hex.
//
// Signature verification is optional: a Decoder only checks it when a
// Verifier is configured.
package secureqr
