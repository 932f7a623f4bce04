// image_run.go implements "secureqr image run".

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/config"
	"github.com/shinji-kodama/secureqr/internal/docker"
	"github.com/shinji-kodama/secureqr/internal/model"
	"github.com/shinji-kodama/secureqr/internal/port"
)

// imageRunFlags holds the flag values for the image run command.
type imageRunFlags struct {
	image string

	// port is the preferred host port. Zero means the container port.
	port int

	// env holds extra KEY=VALUE pairs passed to the container.
	env []string
}

func newImageRunCommand() *cobra.Command {
	flags := &imageRunFlags{}

	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Start a service container",
		Long: fmt.Sprintf(`Create and start a service container named <name>.

The service listens on port %d inside the container. It is published on
--port, or on %d by default. If that port is taken by another process or
another secureqr container, the next free port is used and reported.

Examples:
  secureqr image run staging
  secureqr image run demo --port 8080 --env SECUREQR_LOG_FORMAT=json`, config.DefaultPort, config.DefaultPort),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageRun(cmd.Context(), cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.image, "image", docker.DefaultImage, "Image to run")
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Preferred host port (default: container port)")
	cmd.Flags().StringArrayVarP(&flags.env, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")

	return cmd
}

// runImageRun allocates a host port and starts the container.
func runImageRun(ctx context.Context, cmd *cobra.Command, name string, flags *imageRunFlags) error {
	if err := model.ValidateName(name); err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "invalid instance name", err)
	}
	for _, kv := range flags.env {
		if !strings.Contains(kv, "=") {
			return model.NewCLIError(model.ExitInvalidInput,
				fmt.Sprintf("invalid --env %q: expected KEY=VALUE", kv))
		}
		if docker.IsPortEnv(kv) {
			return model.NewCLIError(model.ExitInvalidInput,
				fmt.Sprintf("--env %s is not allowed: the service listens on %d in the container; use --port to choose the host port", kv, config.DefaultPort))
		}
	}

	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	existing, err := docker.ListInstances(ctx, cli)
	if err != nil {
		return err
	}
	for _, inst := range existing {
		if inst.Name == name {
			return model.NewCLIError(model.ExitInvalidInput,
				fmt.Sprintf("instance %q already exists (remove it with \"secureqr image rm %s\")", name, name))
		}
	}

	allocator := port.NewAllocator(port.NewScanner(""))
	allocator.SetExistingAllocations(docker.PortAllocations(existing))
	alloc, err := allocator.Allocate(name, config.DefaultPort, flags.port)
	if err != nil {
		return model.WrapCLIError(model.ExitPortAllocationFailed, "failed to allocate a host port", err)
	}
	if flags.port != 0 && alloc.HostPort != flags.port {
		VerboseLog("Port %d is in use, using %d", flags.port, alloc.HostPort)
	}

	inst := &model.Instance{
		Name:          name,
		Image:         flags.image,
		HostPort:      alloc.HostPort,
		ContainerPort: alloc.ContainerPort,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	opts := docker.RunOptions{
		Name:          name,
		Image:         flags.image,
		HostPort:      alloc.HostPort,
		ContainerPort: alloc.ContainerPort,
		Env:           flags.env,
	}
	if err := docker.RunInstance(ctx, cli, opts, inst); err != nil {
		return err
	}

	printRunResult(cmd, inst)
	return nil
}

// printRunResult reports the started instance in text or JSON form.
func printRunResult(cmd *cobra.Command, inst *model.Instance) {
	w := cmd.OutOrStdout()
	if IsJSONOutput() {
		_ = printJSON(w, instanceToJSON(*inst))
		return
	}
	_, _ = fmt.Fprintf(w, "Started %q (%s)\n", inst.Name, shortID(inst.Container.ContainerID))
	_, _ = fmt.Fprintf(w, "  Image: %s\n", inst.Image)
	_, _ = fmt.Fprintf(w, "  URL:   http://localhost:%d/upload\n", inst.HostPort)
}
