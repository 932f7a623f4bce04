// decode.go implements "secureqr decode", which decodes one secure QR code
// from an image file, a digit string or stdin, without running a server.

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/barcode"
	"github.com/shinji-kodama/secureqr/internal/model"
)

// decodeFlags holds the flag values for the decode command.
type decodeFlags struct {
	// image is the path of an image containing the QR code. "-" reads the
	// image from stdin.
	image string
}

// NewDecodeCommand creates the "decode" command.
func NewDecodeCommand() *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode [digits]",
		Short: "Decode a secure QR code",
		Long: `Decode a secure QR code and print its contents.

The QR code is read from an image with --image, or its text (the long
decimal number) is given as an argument or on stdin.

Examples:
  secureqr decode --image aadhaar.png
  secureqr decode --json 6979414848205548481619299442879901900893978332594614407044767717485...
  zbarimg -q --raw card.jpg | secureqr decode`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.image, "image", "i", "", `Image file containing the QR code ("-" for stdin)`)

	return cmd
}

// runDecode reads the QR text, decodes it and prints the record.
func runDecode(cmd *cobra.Command, args []string, flags *decodeFlags) error {
	if flags.image != "" && len(args) > 0 {
		return model.NewCLIError(model.ExitInvalidInput, "give either --image or digits, not both")
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	decoder, err := newDecoder(cfg.Decoder)
	if err != nil {
		return err
	}

	text, err := readQRText(cmd.InOrStdin(), args, flags.image)
	if err != nil {
		return err
	}

	rec, err := decoder.Decode(text)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "decode failed", err)
	}

	if IsJSONOutput() {
		return printJSON(cmd.OutOrStdout(), map[string]*model.Record{"decoded_data": rec})
	}
	printRecordText(cmd.OutOrStdout(), rec)
	return nil
}

// readQRText returns the QR text from the image, the argument or stdin,
// in that order of preference.
func readQRText(stdin io.Reader, args []string, image string) (string, error) {
	switch {
	case image != "":
		var r io.Reader = stdin
		if image != "-" {
			f, err := os.Open(image)
			if err != nil {
				return "", model.WrapCLIError(model.ExitInvalidInput, "failed to open image", err)
			}
			defer func() { _ = f.Close() }()
			r = f
		}
		VerboseLog("Scanning %s", image)
		text, err := barcode.NewScanner().Scan(r)
		if err != nil {
			return "", model.WrapCLIError(model.ExitInvalidInput, "failed to read QR code", err)
		}
		return text, nil

	case len(args) == 1:
		return args[0], nil

	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", model.WrapCLIError(model.ExitInvalidInput, "failed to read stdin", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", model.WrapCLIError(model.ExitInvalidInput, "no QR data given", barcode.ErrEmptyCode)
		}
		return text, nil
	}
}

// printRecordText prints one "key: value" line per field, in payload order.
// The photo is summarised by its size.
func printRecordText(w io.Writer, rec *model.Record) {
	fields := rec.TextFields()
	for i, name := range model.TextFieldNames {
		_, _ = fmt.Fprintf(w, "%-13s %s\n", name+":", fields[i])
	}
	_, _ = fmt.Fprintf(w, "%-13s %d base64 chars\n", "photo:", len(rec.Photo))
	if rec.Mobile != "" {
		_, _ = fmt.Fprintf(w, "%-13s %s\n", "mobile:", rec.Mobile)
	}
	if rec.Email != "" {
		_, _ = fmt.Fprintf(w, "%-13s %s\n", "email:", rec.Email)
	}
}
