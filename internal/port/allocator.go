package port

import (
	"fmt"

	"github.com/shinji-kodama/secureqr/internal/model"
)

const (
	// maxPort is the highest valid TCP port number (2^16 - 1).
	maxPort = 65535

	// searchWindow is how far above the requested port the allocator looks
	// before giving up on a "nearby" port. Staying close keeps the chosen
	// port easy to guess (5000, 5001, 5002, ...).
	searchWindow = 100

	// dynamicRangeStart and dynamicRangeEnd bound the IANA dynamic/private
	// range used as the last resort.
	dynamicRangeStart = 49152
	dynamicRangeEnd   = 65535
)

// Allocator picks host ports for container instances.
//
// A port counts as taken when the OS refuses to bind it or when another
// managed instance has it recorded in its labels. The second check catches
// stopped containers, which hold no socket but will want their port back
// on restart.
type Allocator struct {
	scanner *Scanner

	// existingAllocations are the ports recorded on other instances.
	existingAllocations []model.PortAllocation
}

// NewAllocator creates an Allocator that probes ports with scanner.
func NewAllocator(scanner *Scanner) *Allocator {
	return &Allocator{scanner: scanner}
}

// SetExistingAllocations registers the ports held by other instances,
// usually read back from container labels.
func (a *Allocator) SetExistingAllocations(allocs []model.PortAllocation) {
	a.existingAllocations = allocs
}

// Allocate returns a host port for instanceName's containerPort.
//
// preferred is the host port to try first; zero means "same as
// containerPort". When preferred is taken the allocator searches upward
// within searchWindow ports, then falls back to the dynamic range.
// Once allocated, the port is added to the existing allocations so a
// second call in the same run cannot hand it out again.
func (a *Allocator) Allocate(instanceName string, containerPort, preferred int) (*model.PortAllocation, error) {
	if containerPort < 1 || containerPort > maxPort {
		return nil, fmt.Errorf("container port %d out of range (1-%d)", containerPort, maxPort)
	}
	if preferred == 0 {
		preferred = containerPort
	}
	if preferred < 1 || preferred > maxPort {
		return nil, fmt.Errorf("host port %d out of range (1-%d)", preferred, maxPort)
	}

	hostPort, err := a.pick(preferred)
	if err != nil {
		return nil, fmt.Errorf("no host port available for %s (wanted %d): %w", instanceName, preferred, err)
	}

	alloc := &model.PortAllocation{
		InstanceName:  instanceName,
		ContainerPort: containerPort,
		HostPort:      hostPort,
		Protocol:      "tcp",
	}
	a.existingAllocations = append(a.existingAllocations, *alloc)
	return alloc, nil
}

// pick runs the preferred, nearby, dynamic-range search.
func (a *Allocator) pick(preferred int) (int, error) {
	if a.isPortAvailableForAllocation(preferred) {
		return preferred, nil
	}

	end := preferred + searchWindow
	if end > maxPort {
		end = maxPort
	}
	for candidate := preferred + 1; candidate <= end; candidate++ {
		if a.isPortAvailableForAllocation(candidate) {
			return candidate, nil
		}
	}

	return a.findAvailablePortExcludingExisting(dynamicRangeStart, dynamicRangeEnd)
}

// isPortAvailableForAllocation checks the recorded allocations first, then
// the OS.
func (a *Allocator) isPortAvailableForAllocation(port int) bool {
	for _, alloc := range a.existingAllocations {
		if alloc.HostPort == port && alloc.Protocol == "tcp" {
			return false
		}
	}
	return a.scanner.IsPortAvailable(port)
}

// findAvailablePortExcludingExisting searches [startPort, endPort] for a port
// that is free by both measures.
func (a *Allocator) findAvailablePortExcludingExisting(startPort, endPort int) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if a.isPortAvailableForAllocation(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available tcp port found in range %d-%d", startPort, endPort)
}
