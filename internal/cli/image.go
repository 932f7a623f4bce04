// image.go groups the container commands: build, run, ps and rm. They talk
// to the Docker Engine API directly; the docker CLI is not required.

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/docker"
)

// NewImageCommand creates the "image" command group.
func NewImageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Build and run the service as a container",
		Long: `Build the secureqr image and manage service containers.

Containers started with "image run" are labelled secureqr.managed-by=secureqr
and are found again through those labels; no state is kept on disk.

Examples:
  secureqr image build
  secureqr image run staging --port 8080
  secureqr image ps
  secureqr image rm staging`,
	}

	cmd.AddCommand(newImageBuildCommand())
	cmd.AddCommand(newImageRunCommand())
	cmd.AddCommand(newImagePsCommand())
	cmd.AddCommand(newImageRmCommand())

	return cmd
}

// connectDocker creates a Docker client and checks that the daemon answers.
// The caller must Close the client.
func connectDocker(ctx context.Context) (*docker.Client, error) {
	cli, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	VerboseLog("Connected to Docker daemon")
	return cli, nil
}
