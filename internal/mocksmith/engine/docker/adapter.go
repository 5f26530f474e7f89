// Package docker provides a Docker Engine runtime adapter for hosting
// mock-engine containers, one per workspace.
package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"

	"mocksmith/internal/mocksmith/engine"
)

const (
	labelManagedBy = "mocksmith.managed-by"
	labelWorkspace = "mocksmith.workspace"
	managedByValue = "mocksmith"

	// stopTimeout is how long to wait for graceful container stop before SIGKILL.
	stopTimeout = 10 * time.Second
)

// Adapter implements engine.Runtime using the Docker Engine API.
type Adapter struct {
	client  *dockerclient.Client
	network string
}

// New creates a Docker runtime adapter. Uses the DOCKER_HOST env var or
// the default socket path.
func New() (*Adapter, error) {
	return NewWithNetwork(engine.DefaultNetwork)
}

// NewWithNetwork creates an adapter that attaches engines to a specific
// Docker network.
func NewWithNetwork(networkName string) (*Adapter, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Adapter{client: cli, network: networkName}, nil
}

// EnsureNetwork creates the mocksmith Docker network if it doesn't exist.
func (a *Adapter) EnsureNetwork(ctx context.Context) error {
	nets, err := a.client.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", a.network)),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == a.network {
			return nil
		}
	}
	_, err = a.client.NetworkCreate(ctx, a.network, network.CreateOptions{
		Driver:     "bridge",
		Attachable: true,
		Labels:     map[string]string{labelManagedBy: managedByValue},
	})
	if err != nil {
		return fmt.Errorf("create network %q: %w", a.network, err)
	}
	return nil
}

// Spawn creates and starts a mock-engine container for the workspace.
func (a *Adapter) Spawn(ctx context.Context, spec engine.EngineSpec) (engine.EngineHandle, error) {
	if spec.Image == "" {
		return engine.EngineHandle{}, fmt.Errorf("spec.Image is required")
	}

	adminPort := spec.AdminPort
	if adminPort == 0 {
		adminPort = engine.DefaultAdminPort
	}
	networkName := spec.NetworkName
	if networkName == "" {
		networkName = a.network
	}
	containerName := engine.ContainerNameFor(spec.Workspace)

	env := []string{
		fmt.Sprintf("MOCK_WORKSPACE=%s", spec.Workspace),
		fmt.Sprintf("MOCK_ADMIN_PORT=%d", adminPort),
	}
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &container.Config{
		Image: spec.Image,
		Env:   env,
		Labels: map[string]string{
			labelManagedBy: managedByValue,
			labelWorkspace: spec.Workspace,
		},
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
	networkCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {},
		},
	}

	resp, err := a.client.ContainerCreate(ctx, containerCfg, hostCfg, networkCfg, nil, containerName)
	if err != nil {
		return engine.EngineHandle{}, fmt.Errorf("create container: %w", err)
	}

	if err := a.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = a.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return engine.EngineHandle{}, fmt.Errorf("start container: %w", err)
	}

	inspect, err := a.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return engine.EngineHandle{}, fmt.Errorf("inspect container: %w", err)
	}

	return engine.EngineHandle{
		Workspace:     spec.Workspace,
		ContainerID:   resp.ID,
		ContainerName: containerName,
		AdminURL:      adminURLFromInspect(inspect, networkName, adminPort),
	}, nil
}

// Stop gracefully stops the engine container.
func (a *Adapter) Stop(ctx context.Context, handle engine.EngineHandle) error {
	timeout := int(stopTimeout.Seconds())
	if err := a.client.ContainerStop(ctx, handle.ContainerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop container %s: %w", handle.ContainerID, err)
	}
	return nil
}

// Start starts a previously stopped engine container without recreating it.
func (a *Adapter) Start(ctx context.Context, handle engine.EngineHandle) error {
	if err := a.client.ContainerStart(ctx, handle.ContainerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", handle.ContainerID, err)
	}
	return nil
}

// Status returns the current runtime state of an engine container.
func (a *Adapter) Status(ctx context.Context, handle engine.EngineHandle) (engine.Status, error) {
	inspect, err := a.client.ContainerInspect(ctx, handle.ContainerID)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return engine.Status{
				Workspace:   handle.Workspace,
				ContainerID: handle.ContainerID,
				State:       engine.StateUnknown,
			}, nil
		}
		return engine.Status{}, fmt.Errorf("inspect container: %w", err)
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, inspect.State.StartedAt)
	finishedAt, _ := time.Parse(time.RFC3339Nano, inspect.State.FinishedAt)

	return engine.Status{
		Workspace:   handle.Workspace,
		ContainerID: inspect.ID,
		State:       parseContainerState(inspect.State.Status),
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		ExitCode:    inspect.State.ExitCode,
		Error:       inspect.State.Error,
	}, nil
}

// List returns handles for all mocksmith-managed engine containers.
func (a *Adapter) List(ctx context.Context) ([]engine.EngineHandle, error) {
	containers, err := a.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", labelManagedBy+"="+managedByValue),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	handles := make([]engine.EngineHandle, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		handles = append(handles, engine.EngineHandle{
			Workspace:     c.Labels[labelWorkspace],
			ContainerID:   c.ID,
			ContainerName: name,
		})
	}
	return handles, nil
}

// Remove stops and removes the container entirely.
func (a *Adapter) Remove(ctx context.Context, handle engine.EngineHandle) error {
	_ = a.Stop(ctx, handle)
	if err := a.client.ContainerRemove(ctx, handle.ContainerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	}); err != nil {
		if !dockerclient.IsErrNotFound(err) {
			return fmt.Errorf("remove container: %w", err)
		}
	}
	return nil
}

// --- helpers ---

func parseContainerState(s string) engine.ContainerState {
	switch strings.ToLower(s) {
	case "running":
		return engine.StateRunning
	case "stopped":
		return engine.StateStopped
	case "exited":
		return engine.StateExited
	case "created":
		return engine.StateCreated
	case "paused":
		return engine.StatePaused
	default:
		return engine.StateUnknown
	}
}

func adminURLFromInspect(inspect types.ContainerJSON, networkName string, port int) string {
	if nets := inspect.NetworkSettings.Networks; nets != nil {
		if ep, ok := nets[networkName]; ok && ep.IPAddress != "" {
			return fmt.Sprintf("http://%s:%d", ep.IPAddress, port)
		}
	}
	return fmt.Sprintf("http://localhost:%d", port)
}
