// Package main is the entry point for the secureqr binary.
//
// secureqr decodes UIDAI secure QR codes, either over HTTP ("serve") or
// from the command line ("decode"), and can package itself as a container
// image ("image build"). All commands live in internal/cli.
//
// Build-time variables (version, commit, date) are injected via ldflags,
// for example by the embedded Dockerfile:
//
//	go build -ldflags "-X main.version=1.2.0" ./cmd/secureqr
package main

import (
	"github.com/shinji-kodama/secureqr/internal/cli"
)

// version, commit, and date identify the binary in --version output.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
