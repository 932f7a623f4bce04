// Package model holds the types shared by every other secureqr package.
//
// Record mirrors the field layout of a UIDAI secure QR payload: sixteen
// delimited text fields followed by a photo, optional mobile and email
// hashes and a signature. Instance describes a service container started
// by "secureqr image run"; it is rebuilt from Docker labels whenever it is
// needed, so nothing here is ever written to disk.
//
// ExitCode and CLIError let any layer fail with the process exit status the
// CLI should report.
package model
