package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/vcs"
)

// writeTestTree creates files (path → content) under a temp dir.
func writeTestTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// tarFiles returns the regular files in a tar stream with their content.
func tarFiles(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	files := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		assert.Equal(t, 0, hdr.Uid, hdr.Name)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = string(data)
	}
	return files
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TestArchiveContext_DockerIgnore verifies ignore patterns, exceptions and
// extra entries.
func TestArchiveContext_DockerIgnore(t *testing.T) {
	dir := writeTestTree(t, map[string]string{
		".dockerignore":        ".git\n*.env\ndocs\n!docs/keep.md\n",
		"go.mod":               "module example\n",
		"cmd/secureqr/main.go": "package main\n",
		".git/config":          "[core]\n",
		"prod.env":             "SECRET=1\n",
		"docs/notes.md":        "notes\n",
		"docs/keep.md":         "keep\n",
	})

	patterns, err := ReadIgnorePatterns(dir)
	require.NoError(t, err)

	rc, err := ArchiveContext(dir, patterns, map[string][]byte{"extra.txt": []byte("hi")})
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	files := tarFiles(t, rc)
	assert.Equal(t, []string{
		".dockerignore",
		"cmd/secureqr/main.go",
		"docs/keep.md",
		"extra.txt",
		"go.mod",
	}, keys(files))
	assert.Equal(t, "hi", files["extra.txt"])
}

// TestReadIgnorePatterns_Default verifies the fallback patterns.
func TestReadIgnorePatterns_Default(t *testing.T) {
	patterns, err := ReadIgnorePatterns(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultIgnorePatterns, patterns)
}

// TestArchiveContext_Errors verifies upfront validation.
func TestArchiveContext_Errors(t *testing.T) {
	_, err := ArchiveContext(filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.Error(t, err)

	_, err = ArchiveContext(t.TempDir(), []string{"["}, nil)
	assert.Error(t, err)
}

// TestEmbeddedDockerfile verifies the packaging contract of the image.
func TestEmbeddedDockerfile(t *testing.T) {
	df := string(EmbeddedDockerfile())

	for _, want := range []string{
		"FROM golang:${GO_VERSION}-alpine AS build",
		"FROM alpine:3.20",
		"RUN go mod download",
		"COPY . .",
		"EXPOSE 5000",
		"ENV PORT=5000",
		`CMD ["serve"]`,
	} {
		assert.Contains(t, df, want)
	}
}

// TestImageLabels verifies OCI labels with and without git metadata.
func TestImageLabels(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	labels := ImageLabels(nil, "1.2.3", created)
	assert.Equal(t, map[string]string{
		OCITitle:   "secureqr",
		OCICreated: "2024-05-06T07:08:09Z",
		OCIVersion: "1.2.3",
	}, labels)

	labels = ImageLabels(&vcs.SourceInfo{Revision: "abc123", Dirty: true, Remote: "https://example.com/r.git"}, "dev", created)
	assert.Equal(t, "abc123-dirty", labels[OCIRevision])
	assert.Equal(t, "https://example.com/r.git", labels[OCISource])
}

// TestBuildImage verifies the request sent to the daemon and the rendered
// progress output.
func TestBuildImage(t *testing.T) {
	dir := writeTestTree(t, map[string]string{"go.mod": "module example\n"})
	f := &fakeEngine{buildStream: `{"stream":"Step 1/12 : FROM golang\n"}` + "\n" + `{"stream":"Successfully tagged secureqr:latest\n"}` + "\n"}

	var out bytes.Buffer
	err := BuildImage(context.Background(), newFakeClient(f), BuildOptions{
		ContextDir: dir,
		Tags:       []string{DefaultImage},
		Labels:     map[string]string{OCIVersion: "dev"},
		BuildArgs:  map[string]string{"VERSION": "dev"},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, embeddedDockerfileName, f.buildOpts.Dockerfile)
	assert.Equal(t, []string{DefaultImage}, f.buildOpts.Tags)
	require.Contains(t, f.buildOpts.BuildArgs, "VERSION")
	assert.Equal(t, "dev", *f.buildOpts.BuildArgs["VERSION"])
	assert.True(t, f.buildOpts.Remove)

	files := tarFiles(t, bytes.NewReader(f.buildContext))
	assert.Equal(t, string(embeddedDockerfile), files[embeddedDockerfileName])
	assert.Contains(t, files, "go.mod")

	assert.Equal(t, "Step 1/12 : FROM golang\nSuccessfully tagged secureqr:latest\n", out.String())
}

// TestBuildImage_CustomDockerfile verifies that a context Dockerfile is
// used as-is and the embedded one is not added.
func TestBuildImage_CustomDockerfile(t *testing.T) {
	dir := writeTestTree(t, map[string]string{"build/Dockerfile": "FROM scratch\n"})
	f := &fakeEngine{}

	require.NoError(t, BuildImage(context.Background(), newFakeClient(f), BuildOptions{
		ContextDir: dir,
		Dockerfile: "build/Dockerfile",
	}, io.Discard))

	assert.Equal(t, "build/Dockerfile", f.buildOpts.Dockerfile)
	assert.NotContains(t, tarFiles(t, bytes.NewReader(f.buildContext)), embeddedDockerfileName)
}

// TestBuildImage_Errors verifies the exit codes of failing builds.
func TestBuildImage_Errors(t *testing.T) {
	dir := writeTestTree(t, map[string]string{"go.mod": "module example\n"})

	f := &fakeEngine{buildStream: `{"errorDetail":{"message":"go: missing go.sum entry"},"error":"go: missing go.sum entry"}` + "\n"}
	err := BuildImage(context.Background(), newFakeClient(f), BuildOptions{ContextDir: dir}, io.Discard)
	requireCode(t, err, model.ExitGeneralError)
	assert.True(t, strings.Contains(err.Error(), "missing go.sum entry"))

	err = BuildImage(context.Background(), newFakeClient(&fakeEngine{buildErr: errDaemon}), BuildOptions{ContextDir: dir}, io.Discard)
	requireCode(t, err, model.ExitDockerNotRunning)
}
