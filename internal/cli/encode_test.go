package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/secureqr/internal/barcode"
	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/secureqr"
)

// writeRecordFile writes v as JSON and returns the path.
func writeRecordFile(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestEncode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		args  []string
	}{
		{
			name:  "bare record zlib",
			input: testRecord(),
		},
		{
			name:  "decode output wrapper",
			input: map[string]interface{}{"decoded_data": testRecord()},
		},
		{
			name:  "gzip",
			input: testRecord(),
			args:  []string{"--gzip"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"encode", "--input", writeRecordFile(t, tt.input)}, tt.args...)
			out, err := runRoot(t, "", args...)
			require.NoError(t, err)

			rec, err := secureqr.Decode(strings.TrimSpace(out))
			require.NoError(t, err)
			assert.Equal(t, testRecord(), rec)
		})
	}
}

func TestEncode_Stdin(t *testing.T) {
	data, err := json.Marshal(testRecord())
	require.NoError(t, err)

	out, err := runRoot(t, string(data), "--json", "encode")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, encodeTestRecord(t), got["data"])
}

func TestEncode_PNG(t *testing.T) {
	pngPath := filepath.Join(t.TempDir(), "card.png")

	out, err := runRoot(t, "", "encode", "--input", writeRecordFile(t, testRecord()), "--png", pngPath, "--size", "600")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+pngPath)

	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	text, err := barcode.NewScanner().Scan(f)
	require.NoError(t, err)
	assert.Equal(t, encodeTestRecord(t), text)
}

func TestEncode_Errors(t *testing.T) {
	bad := testRecord()
	bad.Mobile = "abc"

	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantMsg string
	}{
		{
			name:    "invalid JSON",
			stdin:   "{not json",
			args:    []string{"encode"},
			wantMsg: "invalid record JSON",
		},
		{
			name:    "missing file",
			args:    []string{"encode", "--input", filepath.Join(t.TempDir(), "nope.json")},
			wantMsg: "failed to read record",
		},
		{
			name:    "bad mobile hash",
			args:    []string{"encode", "--input", writeRecordFile(t, bad)},
			wantMsg: "mobile hash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runRoot(t, tt.stdin, tt.args...)
			requireExitCode(t, err, model.ExitInvalidInput)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
