// container.go implements the lifecycle of secureqr service containers:
// run, list, find, stop and remove.
//
// Managed containers are identified by the "secureqr.managed-by" label,
// which separates them from unrelated containers on the same host.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/go-connections/nat"

	"github.com/shinji-kodama/secureqr/internal/model"
)

// stopTimeoutSeconds is how long a container gets to exit after SIGTERM.
// The service drains in-flight requests on SIGTERM, so this matches its
// default shutdown timeout.
const stopTimeoutSeconds = 10

// RunOptions describes a container to create.
type RunOptions struct {
	// Name is the instance name; it is also used as the container name.
	Name string

	// Image is the image reference to run.
	Image string

	// HostPort is the host port to publish ContainerPort on.
	HostPort int

	// ContainerPort is the port the service listens on inside the container.
	ContainerPort int

	// Env holds extra KEY=VALUE pairs for the container. PORT is always set
	// to ContainerPort; PORT entries in Env are dropped.
	Env []string
}

// ListInstances returns every managed container, running or not, sorted by
// name. Containers whose labels cannot be parsed are skipped.
func ListInstances(ctx context.Context, cli *Client) ([]model.Instance, error) {
	containers, err := cli.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue)),
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list Docker containers", err)
	}

	instances := make([]model.Instance, 0, len(containers))
	for _, c := range containers {
		inst, err := ParseLabels(c.Labels)
		if err != nil {
			continue
		}
		inst.Container = containerToInfo(c)
		inst.Status = statusFromState(c.State)
		instances = append(instances, *inst)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Name < instances[j].Name
	})
	return instances, nil
}

// FindInstance returns the managed container named name.
//
// Returns a model.CLIError with ExitInstanceNotFound when there is none.
func FindInstance(ctx context.Context, cli *Client, name string) (*model.Instance, error) {
	instances, err := ListInstances(ctx, cli)
	if err != nil {
		return nil, err
	}
	for i := range instances {
		if instances[i].Name == name {
			return &instances[i], nil
		}
	}
	return nil, model.NewCLIError(model.ExitInstanceNotFound,
		fmt.Sprintf("instance %q not found", name))
}

// RunInstance creates and starts a service container.
//
// The container publishes ContainerPort on HostPort, carries the labels
// built by BuildLabels and restarts unless stopped explicitly. If the
// start fails the created container is removed again, so a failed run
// leaves nothing behind.
func RunInstance(ctx context.Context, cli *Client, opts RunOptions, inst *model.Instance) error {
	containerPort, err := nat.NewPort("tcp", strconv.Itoa(opts.ContainerPort))
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "invalid container port", err)
	}

	env := []string{fmt.Sprintf("PORT=%d", opts.ContainerPort)}
	for _, kv := range opts.Env {
		if IsPortEnv(kv) {
			continue
		}
		env = append(env, kv)
	}

	cfg := &container.Config{
		Image:        opts.Image,
		Env:          env,
		Labels:       BuildLabels(inst),
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{{HostPort: strconv.Itoa(opts.HostPort)}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	created, err := cli.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container %q", opts.Name), err)
	}

	if err := cli.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = cli.api.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", opts.Name), err)
	}

	inst.Status = model.StatusRunning
	inst.Container = model.ContainerInfo{
		ContainerID:   created.ID,
		ContainerName: opts.Name,
		Image:         opts.Image,
		Status:        "running",
		Labels:        cfg.Labels,
	}
	return nil
}

// IsPortEnv reports whether kv sets PORT. RunInstance owns that variable:
// the service must listen on the published container port.
func IsPortEnv(kv string) bool {
	return strings.HasPrefix(kv, "PORT=") || kv == "PORT"
}

// StopContainer stops a running container, allowing stopTimeoutSeconds for
// a graceful exit before Docker kills it.
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	timeout := stopTimeoutSeconds
	if err := cli.api.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop container %q", containerID), err)
	}
	return nil
}

// RemoveContainer removes a container. It must be stopped first unless
// force is true, in which case Docker kills it.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	if err := cli.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID), err)
	}
	return nil
}

// RemoveInstance stops (unless force) and removes an instance's container.
func RemoveInstance(ctx context.Context, cli *Client, inst *model.Instance, force bool) error {
	id := inst.Container.ContainerID
	if inst.Status == model.StatusRunning && !force {
		if err := StopContainer(ctx, cli, id); err != nil {
			return err
		}
	}
	return RemoveContainer(ctx, cli, id, force)
}

// containerToInfo maps a Docker API summary to ContainerInfo. Docker
// reports names with a leading "/", which is stripped.
func containerToInfo(c container.Summary) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Image:         c.Image,
		Status:        string(c.State),
		Labels:        c.Labels,
	}
}

// statusFromState collapses Docker's container states into running/stopped.
// "restarting" counts as running because the container holds its port.
func statusFromState(state container.ContainerState) model.InstanceStatus {
	switch state {
	case container.StateRunning, container.StateRestarting:
		return model.StatusRunning
	default:
		return model.StatusStopped
	}
}
