// Package cli implements the cobra-based commands of the secureqr binary.
//
// Each subcommand lives in its own file: serve runs the HTTP API, decode
// and encode work on secure QR payloads locally, and the image group
// (build, run, ps, rm) packages and runs the service as a container.
// This file defines the root command and the global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/model"
)

// Global flag variables shared across all subcommands. They are bound to
// persistent flags on the root command.
var (
	// jsonOutput switches command output (and errors) to JSON.
	jsonOutput bool

	// verbose prints extra progress to stderr and lowers the log level
	// to debug.
	verbose bool

	// configPath is the optional YAML/JSON config file.
	configPath string

	// envFile is the optional .env file loaded before the environment.
	envFile string
)

// Build information, injected from the main package.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates the root command with every subcommand attached.
//
// The root command itself does nothing; it carries help text and the
// global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "secureqr",
		Short: "Decode UIDAI secure QR codes over HTTP",
		Long: `secureqr reads the QR code printed on an Aadhaar card or e-Aadhaar
letter and decodes its secure QR payload: demographic fields, photo and
the mobile/email hashes.

Run "secureqr serve" to start the HTTP API (POST /upload), or use
"secureqr decode" to decode a single image from the command line.
The "image" commands build and run the service as a container.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .yml, .json, .jsonc)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file loaded before the environment (ignored if missing)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewDecodeCommand())
	rootCmd.AddCommand(NewEncodeCommand())
	rootCmd.AddCommand(NewImageCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code carried by a
// returned CLIError (1 for any other error).
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(os.Stderr, cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(os.Stderr, err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError writes an error as text or, with --json, as
// {"error": {"message": ..., "detail": ...}}.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"message": message,
		}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		_, _ = fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// VerboseLog prints to stderr when --verbose is set.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput reports whether --json is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to encode output", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
