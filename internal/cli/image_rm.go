// image_rm.go implements "secureqr image rm", which stops and removes a
// service container. By default it asks for confirmation first.

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/docker"
	"github.com/shinji-kodama/secureqr/internal/model"
)

// imageRmFlags holds the flag values for the image rm command.
type imageRmFlags struct {
	// force skips the confirmation prompt and kills a running container
	// instead of stopping it gracefully.
	force bool
}

func newImageRmCommand() *cobra.Command {
	flags := &imageRmFlags{}

	cmd := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Stop and remove a service container",
		Long: `Stop and remove the service container <name>.

Unless --force is given the command asks for confirmation, and a running
container gets a graceful stop before it is removed.

Examples:
  secureqr image rm staging
  secureqr image rm --force demo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImageRm(cmd.Context(), cmd, args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation, killing the container if running")

	return cmd
}

// runImageRm finds the instance, confirms and removes it.
func runImageRm(ctx context.Context, cmd *cobra.Command, name string, flags *imageRmFlags) error {
	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	inst, err := docker.FindInstance(ctx, cli, name)
	if err != nil {
		return err
	}
	VerboseLog("Found instance %q (%s)", name, shortID(inst.Container.ContainerID))

	if !flags.force {
		confirmed, err := promptConfirmation(cmd.InOrStdin(), cmd.ErrOrStderr(), inst)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitGeneralError, "operation cancelled by user")
		}
	}

	if err := docker.RemoveInstance(ctx, cli, inst, flags.force); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if IsJSONOutput() {
		return printJSON(w, map[string]interface{}{
			"name":        inst.Name,
			"action":      "removed",
			"containerId": inst.Container.ContainerID,
			"hostPort":    inst.HostPort,
		})
	}
	_, err = fmt.Fprintf(w, "Removed %q (port %d released)\n", inst.Name, inst.HostPort)
	return err
}

// promptConfirmation describes what will be removed and reads a y/N answer
// from in. EOF counts as "no".
func promptConfirmation(in io.Reader, out io.Writer, inst *model.Instance) (bool, error) {
	_, _ = fmt.Fprintf(out, "About to remove instance %q:\n", inst.Name)
	_, _ = fmt.Fprintf(out, "  - container %s (%s)\n", shortID(inst.Container.ContainerID), inst.Status)
	_, _ = fmt.Fprintf(out, "  - host port %d\n", inst.HostPort)
	_, _ = fmt.Fprint(out, "\nContinue? [y/N] ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}
	return false, scanner.Err()
}
