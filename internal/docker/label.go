package docker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shinji-kodama/secureqr/internal/model"
)

// Label keys persisted on service containers. Labels are the only state
// secureqr keeps about the containers it runs; there is no state file.
//
// All keys share the "secureqr." prefix so they never collide with labels
// set by other tools.
const (
	// LabelPrefix is the common prefix of every secureqr label.
	LabelPrefix = "secureqr."

	// LabelManagedBy marks containers created by secureqr. It is the label
	// used for discovery. Value: always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelName is the instance name. Value: e.g. "api-staging".
	LabelName = LabelPrefix + "name"

	// LabelImage is the image reference the instance was created from.
	LabelImage = LabelPrefix + "image"

	// LabelHostPort is the host port published for the service port.
	LabelHostPort = LabelPrefix + "host-port"

	// LabelContainerPort is the port the service listens on in the container.
	LabelContainerPort = LabelPrefix + "container-port"

	// LabelCreatedAt is the RFC3339 creation time, in UTC.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy on every managed container.
const ManagedByValue = "secureqr"

// BuildLabels returns the label map for an instance's container.
// ParseLabels is its inverse.
func BuildLabels(inst *model.Instance) map[string]string {
	return map[string]string{
		LabelManagedBy:     ManagedByValue,
		LabelName:          inst.Name,
		LabelImage:         inst.Image,
		LabelHostPort:      strconv.Itoa(inst.HostPort),
		LabelContainerPort: strconv.Itoa(inst.ContainerPort),
		LabelCreatedAt:     inst.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels rebuilds an Instance from container labels.
//
// Every label written by BuildLabels is required; all missing keys are
// reported at once. Status and Container are runtime facts and are not
// filled in here.
func ParseLabels(labels map[string]string) (*model.Instance, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelName,
		LabelImage,
		LabelHostPort,
		LabelContainerPort,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf("label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue)
	}

	hostPort, err := strconv.Atoi(labels[LabelHostPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelHostPort, err)
	}
	containerPort, err := strconv.Atoi(labels[LabelContainerPort])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelContainerPort, err)
	}
	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return &model.Instance{
		Name:          labels[LabelName],
		Image:         labels[LabelImage],
		HostPort:      hostPort,
		ContainerPort: containerPort,
		CreatedAt:     createdAt,
	}, nil
}

// PortAllocations returns the host ports held by instances, for the port
// allocator's conflict check.
func PortAllocations(instances []model.Instance) []model.PortAllocation {
	allocs := make([]model.PortAllocation, 0, len(instances))
	for _, inst := range instances {
		allocs = append(allocs, model.PortAllocation{
			InstanceName:  inst.Name,
			ContainerPort: inst.ContainerPort,
			HostPort:      inst.HostPort,
			Protocol:      "tcp",
		})
	}
	return allocs
}
