// Package engine defines the mock-server runtime boundary: the admin API
// client used to push mapping configuration, and the lifecycle interface a
// container runtime implements to host the engine itself.
package engine

import (
	"context"
	"fmt"
	"time"
)

// DefaultNetwork is the Docker network mocksmith-managed engines join.
const DefaultNetwork = "mocksmith-net"

// DefaultAdminPort is the port the engine's admin API listens on inside
// the container.
const DefaultAdminPort = 8080

// EngineSpec describes a mock-engine container to launch.
type EngineSpec struct {
	// Workspace names the workspace this engine serves. One container per
	// workspace.
	Workspace string
	// Image is the engine container image. Required.
	Image string
	// AdminPort is the in-container admin port. Zero means DefaultAdminPort.
	AdminPort int
	// NetworkName overrides the adapter's default network.
	NetworkName string
	// Env is extra environment for the container.
	Env map[string]string
}

// EngineHandle identifies a running (or stopped) engine container.
type EngineHandle struct {
	Workspace     string
	ContainerID   string
	ContainerName string
	// AdminURL is the base URL of the engine's admin API, reachable from
	// mocksmith.
	AdminURL string
}

// ContainerState is the coarse lifecycle state of an engine container.
type ContainerState string

const (
	StateRunning ContainerState = "running"
	StateStopped ContainerState = "stopped"
	StateExited  ContainerState = "exited"
	StateCreated ContainerState = "created"
	StatePaused  ContainerState = "paused"
	StateUnknown ContainerState = "unknown"
)

// Status is a point-in-time report on an engine container.
type Status struct {
	Workspace   string
	ContainerID string
	State       ContainerState
	StartedAt   time.Time
	FinishedAt  time.Time
	ExitCode    int
	Error       string
}

// Runtime is the container lifecycle boundary. The docker subpackage
// provides the production implementation; tests use fakes.
type Runtime interface {
	// Spawn creates and starts an engine container for the spec.
	Spawn(ctx context.Context, spec EngineSpec) (EngineHandle, error)
	// Stop gracefully stops the container.
	Stop(ctx context.Context, handle EngineHandle) error
	// Start starts a previously stopped container.
	Start(ctx context.Context, handle EngineHandle) error
	// Status reports the container's current state.
	Status(ctx context.Context, handle EngineHandle) (Status, error)
	// List returns handles for every mocksmith-managed engine container.
	List(ctx context.Context) ([]EngineHandle, error)
	// Remove stops and deletes the container.
	Remove(ctx context.Context, handle EngineHandle) error
}

// ContainerNameFor returns the deterministic container name for a
// workspace's engine.
func ContainerNameFor(workspace string) string {
	return fmt.Sprintf("mocksmith-engine-%s", workspace)
}
