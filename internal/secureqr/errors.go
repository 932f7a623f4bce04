package secureqr

import "fmt"

// Stage identifies the decoding step that failed.
type Stage string

const (
	// StageConvert is the base-10 to byte conversion.
	StageConvert Stage = "convert"

	// StageDecompress is the zlib/gzip inflation.
	StageDecompress Stage = "decompress"

	// StageFields is the extraction of the sixteen text fields.
	StageFields Stage = "fields"

	// StageIndicator is the parsing of the email/mobile indicator.
	StageIndicator Stage = "indicator"

	// StageLayout is the split of photo, hashes and signature.
	StageLayout Stage = "layout"

	// StageSignature is the optional signature check.
	StageSignature Stage = "signature"
)

// stagePrefixes holds the message prefix of each stage. Clients of the
// HTTP API match on these strings, so they are kept stable.
var stagePrefixes = map[Stage]string{
	StageConvert:    "Error converting QR data to bytes",
	StageDecompress: "Decompression failed",
	StageFields:     "Error decoding text field",
	StageIndicator:  "Invalid indicator value",
	StageLayout:     "Payload too short",
	StageSignature:  "Signature verification failed",
}

// ErrNotEnoughDelimiters is returned when the inflated payload holds fewer
// than sixteen 0xFF delimiters.
var ErrNotEnoughDelimiters = &DecodeError{
	Stage:   StageFields,
	message: "Not enough delimiters found; expected 16 text fields.",
}

// DecodeError reports a failed decode together with the stage it failed in.
type DecodeError struct {
	Stage Stage
	Err   error

	// message overrides the "<prefix>: <cause>" form when set.
	message string
}

func newDecodeError(stage Stage, err error) *DecodeError {
	return &DecodeError{Stage: stage, Err: err}
}

// Error returns the message in the form "<stage prefix>: <cause>".
func (e *DecodeError) Error() string {
	if e.message != "" {
		return e.message
	}
	prefix := stagePrefixes[e.Stage]
	if e.Err == nil {
		return prefix
	}
	return fmt.Sprintf("%s: %v", prefix, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
