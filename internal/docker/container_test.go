package docker

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/secureqr/internal/model"
)

// summary builds a container summary carrying the labels of inst.
func summary(inst *model.Instance, id, state string) container.Summary {
	return container.Summary{
		ID:     id,
		Names:  []string{"/" + inst.Name},
		Image:  inst.Image,
		State:  state,
		Labels: BuildLabels(inst),
	}
}

// requireCode asserts that err is a CLIError with the given exit code.
func requireCode(t *testing.T, err error, code model.ExitCode) {
	t.Helper()
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "expected CLIError, got %v", err)
	assert.Equal(t, code, cliErr.Code)
}

// TestPing verifies the daemon error mapping.
func TestPing(t *testing.T) {
	assert.NoError(t, newFakeClient(&fakeEngine{}).Ping(context.Background()))

	err := newFakeClient(&fakeEngine{pingErr: errDaemon}).Ping(context.Background())
	requireCode(t, err, model.ExitDockerNotRunning)
}

// TestListInstances verifies filtering, sorting, status mapping and that
// containers with broken labels are skipped.
func TestListInstances(t *testing.T) {
	zeta := sampleInstance()
	zeta.Name = "zeta"
	alpha := sampleInstance()
	alpha.Name = "alpha"

	broken := summary(sampleInstance(), "bad", "running")
	delete(broken.Labels, LabelHostPort)

	f := &fakeEngine{containers: []container.Summary{
		summary(zeta, "z1", "exited"),
		broken,
		summary(alpha, "a1", "running"),
	}}

	instances, err := ListInstances(context.Background(), newFakeClient(f))
	require.NoError(t, err)

	assert.True(t, f.listOpts.All, "stopped containers must be listed too")
	assert.Equal(t, []string{LabelManagedBy + "=" + ManagedByValue}, f.listOpts.Filters.Get("label"))

	require.Len(t, instances, 2)
	assert.Equal(t, "alpha", instances[0].Name)
	assert.Equal(t, model.StatusRunning, instances[0].Status)
	assert.Equal(t, "a1", instances[0].Container.ContainerID)
	assert.Equal(t, "alpha", instances[0].Container.ContainerName)
	assert.Equal(t, "zeta", instances[1].Name)
	assert.Equal(t, model.StatusStopped, instances[1].Status)
}

// TestListInstances_DaemonError verifies the exit code on list failure.
func TestListInstances_DaemonError(t *testing.T) {
	_, err := ListInstances(context.Background(), newFakeClient(&fakeEngine{listErr: errDaemon}))
	requireCode(t, err, model.ExitDockerNotRunning)
}

// TestFindInstance verifies lookup by name and the not-found exit code.
func TestFindInstance(t *testing.T) {
	f := &fakeEngine{containers: []container.Summary{summary(sampleInstance(), "a1", "running")}}
	c := newFakeClient(f)

	inst, err := FindInstance(context.Background(), c, "api")
	require.NoError(t, err)
	assert.Equal(t, "a1", inst.Container.ContainerID)

	_, err = FindInstance(context.Background(), c, "missing")
	requireCode(t, err, model.ExitInstanceNotFound)
}

// TestRunInstance verifies the container and host configuration.
func TestRunInstance(t *testing.T) {
	f := &fakeEngine{}
	inst := sampleInstance()
	opts := RunOptions{
		Name:          inst.Name,
		Image:         inst.Image,
		HostPort:      inst.HostPort,
		ContainerPort: inst.ContainerPort,
		Env:           []string{"SECUREQR_LOG_FORMAT=json"},
	}

	require.NoError(t, RunInstance(context.Background(), newFakeClient(f), opts, inst))

	assert.Equal(t, "api", f.createName)
	assert.Equal(t, DefaultImage, f.createCfg.Image)
	assert.Equal(t, []string{"PORT=5000", "SECUREQR_LOG_FORMAT=json"}, f.createCfg.Env)
	assert.Equal(t, BuildLabels(inst), f.createCfg.Labels)

	port := nat.Port("5000/tcp")
	assert.Contains(t, f.createCfg.ExposedPorts, port)
	assert.Equal(t, []nat.PortBinding{{HostPort: "5001"}}, f.createHost.PortBindings[port])
	assert.Equal(t, container.RestartPolicyUnlessStopped, f.createHost.RestartPolicy.Name)

	assert.Equal(t, model.StatusRunning, inst.Status)
	assert.Equal(t, "c0ffee", inst.Container.ContainerID)
}

// TestRunInstance_PortEnvIsNotOverridden verifies that extra env entries
// cannot move the service off the published port.
func TestRunInstance_PortEnvIsNotOverridden(t *testing.T) {
	f := &fakeEngine{}
	inst := sampleInstance()
	opts := RunOptions{
		Name:          inst.Name,
		Image:         inst.Image,
		HostPort:      inst.HostPort,
		ContainerPort: inst.ContainerPort,
		Env:           []string{"PORT=8080", "SECUREQR_LOG_LEVEL=debug", "PORT", "PORTAL=x"},
	}

	require.NoError(t, RunInstance(context.Background(), newFakeClient(f), opts, inst))
	assert.Equal(t, []string{"PORT=5000", "SECUREQR_LOG_LEVEL=debug", "PORTAL=x"}, f.createCfg.Env)
}

func TestIsPortEnv(t *testing.T) {
	assert.True(t, IsPortEnv("PORT=8080"))
	assert.True(t, IsPortEnv("PORT="))
	assert.True(t, IsPortEnv("PORT"))
	assert.False(t, IsPortEnv("PORTAL=1"))
	assert.False(t, IsPortEnv("SECUREQR_PORT=1"))
}

// TestRunInstance_StartFailureCleansUp verifies that a container which
// fails to start is removed again.
func TestRunInstance_StartFailureCleansUp(t *testing.T) {
	f := &fakeEngine{startErr: errors.New("port is already allocated")}
	inst := sampleInstance()

	err := RunInstance(context.Background(), newFakeClient(f), RunOptions{
		Name: inst.Name, Image: inst.Image, HostPort: inst.HostPort, ContainerPort: inst.ContainerPort,
	}, inst)

	requireCode(t, err, model.ExitDockerNotRunning)
	assert.Equal(t, []string{"c0ffee"}, f.removed)
	assert.Equal(t, []bool{true}, f.forced)
}

// TestRunInstance_CreateFailure verifies that nothing is started when the
// create call fails.
func TestRunInstance_CreateFailure(t *testing.T) {
	f := &fakeEngine{createErr: errors.New("No such image: secureqr:latest")}
	inst := sampleInstance()

	err := RunInstance(context.Background(), newFakeClient(f), RunOptions{
		Name: inst.Name, Image: inst.Image, HostPort: inst.HostPort, ContainerPort: inst.ContainerPort,
	}, inst)

	requireCode(t, err, model.ExitDockerNotRunning)
	assert.Empty(t, f.removed)
}

// TestRemoveInstance covers graceful and forced removal.
func TestRemoveInstance(t *testing.T) {
	tests := []struct {
		name        string
		status      model.InstanceStatus
		force       bool
		wantStopped []string
	}{
		{"running graceful", model.StatusRunning, false, []string{"a1"}},
		{"running forced", model.StatusRunning, true, nil},
		{"stopped", model.StatusStopped, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeEngine{}
			inst := sampleInstance()
			inst.Status = tt.status
			inst.Container.ContainerID = "a1"

			require.NoError(t, RemoveInstance(context.Background(), newFakeClient(f), inst, tt.force))

			assert.Equal(t, tt.wantStopped, f.stopped)
			assert.Equal(t, []string{"a1"}, f.removed)
			assert.Equal(t, []bool{tt.force}, f.forced)
		})
	}
}

// TestStatusFromState verifies the running/stopped collapse.
func TestStatusFromState(t *testing.T) {
	assert.Equal(t, model.StatusRunning, statusFromState(container.StateRunning))
	assert.Equal(t, model.StatusRunning, statusFromState(container.StateRestarting))
	assert.Equal(t, model.StatusStopped, statusFromState(container.StateExited))
	assert.Equal(t, model.StatusStopped, statusFromState(container.StateCreated))
}
