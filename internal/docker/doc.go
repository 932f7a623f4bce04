// Package docker wraps the Docker Engine API for secureqr's packaging
// commands.
//
// This package handles:
//   - client initialization with automatic socket detection (Linux,
//     macOS, Windows)
//   - image builds from an embedded Dockerfile and a build context
//     filtered by .dockerignore
//   - the lifecycle of service containers: run, list, stop, remove
//   - container labels, which are the only record of which containers
//     secureqr manages and which host ports they hold
//
// The package uses github.com/docker/docker/client as the underlying SDK,
// with API version negotiation enabled for broad daemon compatibility.
package docker
