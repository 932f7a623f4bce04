package docker

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeEngine records calls and returns canned results.
type fakeEngine struct {
	pingErr error

	containers []container.Summary
	listErr    error
	listOpts   container.ListOptions

	createCfg  *container.Config
	createHost *container.HostConfig
	createName string
	createErr  error
	startErr   error

	stopped []string
	removed []string
	forced  []bool

	buildContext []byte
	buildOpts    build.ImageBuildOptions
	buildStream  string
	buildErr     error
}

func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeEngine) ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error) {
	if f.buildErr != nil {
		return build.ImageBuildResponse{}, f.buildErr
	}
	data, err := io.ReadAll(buildContext)
	if err != nil {
		return build.ImageBuildResponse{}, err
	}
	f.buildContext = data
	f.buildOpts = options
	return build.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.buildStream))}, nil
}

func (f *fakeEngine) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.listOpts = options
	return f.containers, f.listErr
}

func (f *fakeEngine) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
	networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.createCfg = config
	f.createHost = hostConfig
	f.createName = containerName
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	return container.CreateResponse{ID: "c0ffee"}, nil
}

func (f *fakeEngine) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return f.startErr
}

func (f *fakeEngine) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.stopped = append(f.stopped, containerID)
	return nil
}

func (f *fakeEngine) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.removed = append(f.removed, containerID)
	f.forced = append(f.forced, options.Force)
	return nil
}

func (f *fakeEngine) Close() error { return nil }

// errDaemon stands in for any daemon-side failure.
var errDaemon = errors.New("daemon unavailable")

func newFakeClient(f *fakeEngine) *Client {
	return &Client{api: f}
}
