// image_ps.go implements "secureqr image ps", which lists the service
// containers found through the secureqr.managed-by label.

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/secureqr/internal/docker"
	"github.com/shinji-kodama/secureqr/internal/model"
)

// imagePsFlags holds the flag values for the image ps command.
type imagePsFlags struct {
	// status filters by lifecycle state: "running", "stopped" or "all".
	status string
}

func newImagePsCommand() *cobra.Command {
	flags := &imagePsFlags{}

	cmd := &cobra.Command{
		Use:     "ps",
		Aliases: []string{"list", "ls"},
		Short:   "List service containers",
		Long: `List the service containers started with "secureqr image run".

Examples:
  secureqr image ps
  secureqr image ps --status running
  secureqr image ps --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImagePs(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.status, "status", "all", "Filter by status: running, stopped, all")

	return cmd
}

// runImagePs lists, filters and prints the managed instances.
func runImagePs(ctx context.Context, w io.Writer, flags *imagePsFlags) error {
	var want model.InstanceStatus
	if flags.status != "all" {
		status, err := model.ParseInstanceStatus(flags.status)
		if err != nil {
			return model.WrapCLIError(model.ExitInvalidInput, "invalid --status", err)
		}
		want = status
	}

	cli, err := connectDocker(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	instances, err := docker.ListInstances(ctx, cli)
	if err != nil {
		return err
	}
	VerboseLog("Found %d managed containers", len(instances))

	instances = filterInstances(instances, want)
	if IsJSONOutput() {
		return printInstancesJSON(w, instances)
	}
	printInstancesText(w, instances, time.Now())
	return nil
}

// filterInstances keeps the instances in state want. An empty want keeps
// everything.
func filterInstances(instances []model.Instance, want model.InstanceStatus) []model.Instance {
	if want == "" {
		return instances
	}
	out := make([]model.Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Status == want {
			out = append(out, inst)
		}
	}
	return out
}

// instanceJSON is the JSON form of one instance in command output.
type instanceJSON struct {
	Name          string    `json:"name"`
	Status        string    `json:"status"`
	Image         string    `json:"image"`
	HostPort      int       `json:"hostPort"`
	ContainerPort int       `json:"containerPort"`
	ContainerID   string    `json:"containerId"`
	CreatedAt     time.Time `json:"createdAt"`
}

func instanceToJSON(inst model.Instance) instanceJSON {
	return instanceJSON{
		Name:          inst.Name,
		Status:        inst.Status.String(),
		Image:         inst.Image,
		HostPort:      inst.HostPort,
		ContainerPort: inst.ContainerPort,
		ContainerID:   inst.Container.ContainerID,
		CreatedAt:     inst.CreatedAt,
	}
}

// printInstancesJSON writes {"instances": [...]}. An empty result is [] and
// never null.
func printInstancesJSON(w io.Writer, instances []model.Instance) error {
	result := struct {
		Instances []instanceJSON `json:"instances"`
	}{
		Instances: make([]instanceJSON, 0, len(instances)),
	}
	for _, inst := range instances {
		result.Instances = append(result.Instances, instanceToJSON(inst))
	}
	return printJSON(w, result)
}

// printInstancesText writes an aligned table:
//
//	NAME        STATUS    PORTS          IMAGE            CREATED
//	staging     running   5000->5000     secureqr:latest  3 hours ago
//	demo        stopped   8080->5000     secureqr:1.2.0   2 days ago
func printInstancesText(w io.Writer, instances []model.Instance, now time.Time) {
	if len(instances) == 0 {
		_, _ = fmt.Fprintln(w, "No secureqr containers found.")
		return
	}

	_, _ = fmt.Fprintf(w, "%-20s %-10s %-14s %-24s %s\n",
		"NAME", "STATUS", "PORTS", "IMAGE", "CREATED")
	for _, inst := range instances {
		_, _ = fmt.Fprintf(w, "%-20s %-10s %-14s %-24s %s\n",
			inst.Name,
			inst.Status.String(),
			FormatPortMapping(inst),
			inst.Image,
			FormatAge(inst.CreatedAt, now),
		)
	}
}

// FormatPortMapping renders the published port as "host->container", or
// "-" when the instance has none.
func FormatPortMapping(inst model.Instance) string {
	if inst.HostPort == 0 {
		return "-"
	}
	return fmt.Sprintf("%d->%d", inst.HostPort, inst.ContainerPort)
}

// FormatAge renders the time since t in the coarse style of "docker ps".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "less than a minute ago"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 48*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	default:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// shortID returns the 12-character form of a container ID.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
