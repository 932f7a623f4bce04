package cli

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/secureqr"
)

// testRecord returns a record with both hashes present.
func testRecord() *model.Record {
	return &model.Record{
		Indicator:   "3",
		ReferenceID: "567820190420103015123",
		Name:        "Kiran Patil",
		DOB:         "02-11-1990",
		Gender:      "M",
		CareOf:      "S/O Mohan Patil",
		District:    "Pune",
		Landmark:    "Near Temple",
		House:       "12B",
		Location:    "Kothrud",
		PinCode:     "411038",
		PostOffice:  "Kothrud",
		State:       "Maharashtra",
		Street:      "Paud Road",
		SubDistrict: "Haveli",
		VTC:         "Pune",
		Photo:       base64.StdEncoding.EncodeToString([]byte("photo-bytes")),
		Mobile:      strings.Repeat("1f", model.HashLength),
		Email:       strings.Repeat("e0", model.HashLength),
	}
}

// encodeTestRecord returns the QR text of testRecord.
func encodeTestRecord(t *testing.T) string {
	t.Helper()
	text, err := secureqr.Encode(testRecord())
	require.NoError(t, err)
	return text
}

// runRoot executes the root command with args and stdin, returning what
// it wrote to stdout.
func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	// t.Setenv restores the variable after the test; the variable itself
	// must be absent so that config files can set a certificate.
	t.Setenv("SECUREQR_SIGNATURE_CERT", "")
	require.NoError(t, os.Unsetenv("SECUREQR_SIGNATURE_CERT"))

	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)

	err := root.Execute()
	return out.String(), err
}

// requireExitCode asserts that err is a CLIError with the given code.
func requireExitCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	require.Error(t, err)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected *model.CLIError, got %T: %v", err, err)
	require.Equal(t, code, cliErr.Code, "error: %v", err)
}
