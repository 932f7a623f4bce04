package docker

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/term"

	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/vcs"
)

// embeddedDockerfile is the recipe used unless a build names its own.
//
//go:embed assets/Dockerfile
var embeddedDockerfile []byte

// embeddedDockerfileName is the context path the embedded Dockerfile is
// written to. The leading dot keeps it out of the way of a project's own
// Dockerfile.
const embeddedDockerfileName = ".secureqr.Dockerfile"

// DefaultImage is the image reference used when none is given.
const DefaultImage = "secureqr:latest"

// OCI image annotation keys set on built images.
const (
	OCITitle    = "org.opencontainers.image.title"
	OCICreated  = "org.opencontainers.image.created"
	OCIVersion  = "org.opencontainers.image.version"
	OCIRevision = "org.opencontainers.image.revision"
	OCISource   = "org.opencontainers.image.source"
)

// EmbeddedDockerfile returns a copy of the built-in Dockerfile.
func EmbeddedDockerfile() []byte {
	out := make([]byte, len(embeddedDockerfile))
	copy(out, embeddedDockerfile)
	return out
}

// BuildOptions describes an image build.
type BuildOptions struct {
	// ContextDir is the directory sent to the daemon as the build context.
	ContextDir string

	// Dockerfile is a path inside ContextDir. Empty selects the embedded
	// Dockerfile.
	Dockerfile string

	// Tags are the image references to tag the result with.
	Tags []string

	// Labels are set on the image, usually from ImageLabels.
	Labels map[string]string

	// BuildArgs are passed as --build-arg values.
	BuildArgs map[string]string

	// NoCache disables the build cache; Pull always pulls base images.
	NoCache bool
	Pull    bool
}

// ImageLabels returns the OCI labels for an image built from src.
// src may be nil when the context is not a Git repository.
func ImageLabels(src *vcs.SourceInfo, version string, created time.Time) map[string]string {
	labels := map[string]string{
		OCITitle:   "secureqr",
		OCICreated: created.UTC().Format(time.RFC3339),
		OCIVersion: version,
	}
	if src != nil {
		revision := src.Revision
		if src.Dirty {
			revision += "-dirty"
		}
		labels[OCIRevision] = revision
		if src.Remote != "" {
			labels[OCISource] = src.Remote
		}
	}
	return labels
}

// BuildImage builds an image and streams the daemon's progress to out.
//
// Progress is rendered the way the docker CLI renders it: with cursor
// movement when out is a terminal, as plain lines otherwise. A failing
// build step is returned as a model.CLIError with ExitGeneralError; an
// unreachable daemon as ExitDockerNotRunning.
func BuildImage(ctx context.Context, cli *Client, opts BuildOptions, out io.Writer) error {
	patterns, err := ReadIgnorePatterns(opts.ContextDir)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "failed to read .dockerignore", err)
	}

	dockerfile := opts.Dockerfile
	var extra map[string][]byte
	if dockerfile == "" {
		dockerfile = embeddedDockerfileName
		extra = map[string][]byte{embeddedDockerfileName: embeddedDockerfile}
	}

	buildCtx, err := ArchiveContext(opts.ContextDir, patterns, extra)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "failed to prepare build context", err)
	}
	defer func() { _ = buildCtx.Close() }()

	args := make(map[string]*string, len(opts.BuildArgs))
	for k, v := range opts.BuildArgs {
		v := v
		args[k] = &v
	}

	resp, err := cli.api.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        opts.Tags,
		Dockerfile:  dockerfile,
		Labels:      opts.Labels,
		BuildArgs:   args,
		NoCache:     opts.NoCache,
		PullParent:  opts.Pull,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning, "image build request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	fd, isTerminal := term.GetFdInfo(out)
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, fd, isTerminal, nil); err != nil {
		var jerr *jsonmessage.JSONError
		if errors.As(err, &jerr) {
			return model.WrapCLIError(model.ExitGeneralError, "image build failed", jerr)
		}
		return model.WrapCLIError(model.ExitDockerNotRunning, "failed to read build output", err)
	}
	return nil
}
