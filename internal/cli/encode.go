// encode.go implements "secureqr encode", which turns a JSON record into
// secure QR text or a QR code image. It produces test fixtures and sample
// cards; it cannot produce a genuinely signed code.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/barcode"
	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/secureqr"
)

// encodeFlags holds the flag values for the encode command.
type encodeFlags struct {
	// input is the JSON record file. Empty or "-" reads stdin.
	input string

	// gzip selects gzip framing instead of zlib.
	gzip bool

	// png, when set, writes a QR code image to this path instead of
	// printing the digits.
	png string

	// size is the PNG edge length in pixels.
	size int
}

// NewEncodeCommand creates the "encode" command.
func NewEncodeCommand() *cobra.Command {
	flags := &encodeFlags{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a record as secure QR text or image",
		Long: `Encode a record (the JSON printed by "decode --json", with or without
the "decoded_data" wrapper) as secure QR text.

The signature is left as zeros, so the result only decodes when no
signature certificate is configured.

Examples:
  secureqr encode --input record.json
  secureqr encode --input record.json --gzip --png card.png
  secureqr decode --json --image card.png | secureqr encode`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", `JSON record file (default stdin)`)
	cmd.Flags().BoolVar(&flags.gzip, "gzip", false, "Compress with gzip instead of zlib")
	cmd.Flags().StringVar(&flags.png, "png", "", "Write a QR code PNG to this path")
	cmd.Flags().IntVar(&flags.size, "size", barcode.DefaultRenderSize, "PNG width and height in pixels")

	return cmd
}

// runEncode reads the record, encodes it and writes digits or a PNG.
func runEncode(cmd *cobra.Command, flags *encodeFlags) error {
	rec, err := readRecord(cmd.InOrStdin(), flags.input)
	if err != nil {
		return err
	}

	text, err := secureqr.Encoder{Gzip: flags.gzip}.Encode(rec)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "failed to encode record", err)
	}
	VerboseLog("Encoded %d digits", len(text))

	if flags.png == "" {
		if IsJSONOutput() {
			return printJSON(cmd.OutOrStdout(), map[string]string{"data": text})
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	}

	f, err := os.Create(flags.png)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to create image file", err)
	}
	if err := barcode.WritePNG(f, text, flags.size); err != nil {
		_ = f.Close()
		return model.WrapCLIError(model.ExitInvalidInput, "failed to render QR code", err)
	}
	if err := f.Close(); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write image file", err)
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"png": flags.png, "digits": len(text)})
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d digits)\n", flags.png, len(text))
	return err
}

// readRecord parses a Record from path (or stdin). A top-level
// "decoded_data" object, as printed by decode, is unwrapped.
func readRecord(stdin io.Reader, path string) (*model.Record, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput, "failed to read record", err)
	}

	var wrapped struct {
		DecodedData *model.Record `json:"decoded_data"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.DecodedData != nil {
		return wrapped.DecodedData, nil
	}

	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput, "invalid record JSON", err)
	}
	return &rec, nil
}
