package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"mocksmith/internal/mocksmith/domain"
	"mocksmith/internal/mocksmith/engine"
)

// engineRouter is the assistant's engine-sync target. The admin client it
// forwards to is swappable at runtime so an operator can point mapping sync
// at a container spawned after startup. With no client set, sync is a
// silent no-op and the store remains the source of truth.
type engineRouter struct {
	mu     sync.Mutex
	client *engine.Client
}

func (r *engineRouter) set(c *engine.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = c
}

func (r *engineRouter) current() *engine.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

func (r *engineRouter) PushMapping(ctx context.Context, m *domain.Mapping) error {
	if c := r.current(); c != nil {
		return c.PushMapping(ctx, m)
	}
	return nil
}

func (r *engineRouter) RemoveMapping(ctx context.Context, id string) error {
	if c := r.current(); c != nil {
		return c.RemoveMapping(ctx, id)
	}
	return nil
}

// handleEngineCommand answers /mocksmith engine subcommands: container
// lifecycle through the Docker runtime, plus reset against the currently
// routed admin API.
func (a *App) handleEngineCommand(ctx context.Context, args []string) string {
	usage := "Usage: /mocksmith engine start|stop|status|remove [workspace] | /mocksmith engine reset"
	if len(args) == 0 {
		return usage
	}

	workspace := a.config.DefaultWorkspace
	if len(args) > 1 {
		workspace = args[1]
	}

	switch args[0] {
	case "start":
		return a.engineStart(ctx, workspace)
	case "stop":
		return a.engineStop(ctx, workspace)
	case "status":
		return a.engineStatus(ctx)
	case "remove":
		return a.engineRemove(ctx, workspace)
	case "reset":
		c := a.engineSync.current()
		if c == nil {
			return "No engine is routed; start one with /mocksmith engine start."
		}
		if err := c.Reset(ctx); err != nil {
			return fmt.Sprintf("Engine reset failed: %v", err)
		}
		return "Engine mappings cleared."
	default:
		return usage
	}
}

func (a *App) engineStart(ctx context.Context, workspace string) string {
	if a.runtime == nil {
		return "Docker runtime is not enabled; set MOCKSMITH_ENABLE_DOCKER=true and restart."
	}

	handle, found, err := a.findEngine(ctx, workspace)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if found {
		if err := a.runtime.Start(ctx, handle); err != nil {
			return fmt.Sprintf("Could not start engine container %s: %v", handle.ContainerName, err)
		}
		// Containers resolve each other by name on the shared network.
		handle.AdminURL = fmt.Sprintf("http://%s:%d", handle.ContainerName, engine.DefaultAdminPort)
	} else {
		if a.config.EngineImage == "" {
			return "No engine image configured; set MOCKSMITH_ENGINE_IMAGE."
		}
		handle, err = a.runtime.Spawn(ctx, engine.EngineSpec{
			Workspace: workspace,
			Image:     a.config.EngineImage,
		})
		if err != nil {
			return fmt.Sprintf("Could not spawn engine for workspace %q: %v", workspace, err)
		}
	}

	a.engineSync.set(engine.NewClient(handle.AdminURL))
	return fmt.Sprintf("Engine for workspace %q is running at %s. Mapping changes now sync to it.", workspace, handle.AdminURL)
}

func (a *App) engineStop(ctx context.Context, workspace string) string {
	if a.runtime == nil {
		return "Docker runtime is not enabled."
	}
	handle, found, err := a.findEngine(ctx, workspace)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if !found {
		return fmt.Sprintf("No engine container exists for workspace %q.", workspace)
	}
	if err := a.runtime.Stop(ctx, handle); err != nil {
		return fmt.Sprintf("Could not stop engine %s: %v", handle.ContainerName, err)
	}
	return fmt.Sprintf("Stopped engine for workspace %q.", workspace)
}

func (a *App) engineStatus(ctx context.Context) string {
	if a.runtime == nil {
		return "Docker runtime is not enabled."
	}
	handles, err := a.runtime.List(ctx)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if len(handles) == 0 {
		return "No engine containers."
	}

	var sb strings.Builder
	sb.WriteString("**Engine containers**")
	for _, h := range handles {
		status, serr := a.runtime.Status(ctx, h)
		if serr != nil {
			fmt.Fprintf(&sb, "\n- %s (workspace %s): status unavailable: %v", h.ContainerName, h.Workspace, serr)
			continue
		}
		fmt.Fprintf(&sb, "\n- %s (workspace %s): %s", h.ContainerName, h.Workspace, status.State)
		if status.State == engine.StateExited {
			fmt.Fprintf(&sb, " (exit code %d)", status.ExitCode)
		}
	}
	return sb.String()
}

func (a *App) engineRemove(ctx context.Context, workspace string) string {
	if a.runtime == nil {
		return "Docker runtime is not enabled."
	}
	handle, found, err := a.findEngine(ctx, workspace)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if !found {
		return fmt.Sprintf("No engine container exists for workspace %q.", workspace)
	}
	if err := a.runtime.Remove(ctx, handle); err != nil {
		return fmt.Sprintf("Could not remove engine %s: %v", handle.ContainerName, err)
	}
	a.engineSync.set(nil)
	return fmt.Sprintf("Removed engine for workspace %q. Mapping sync is off until another engine starts.", workspace)
}

func (a *App) findEngine(ctx context.Context, workspace string) (engine.EngineHandle, bool, error) {
	handles, err := a.runtime.List(ctx)
	if err != nil {
		return engine.EngineHandle{}, false, fmt.Errorf("list engine containers: %w", err)
	}
	for _, h := range handles {
		if h.Workspace == workspace {
			return h, true, nil
		}
	}
	return engine.EngineHandle{}, false, nil
}

// handleAuditCommand answers /mocksmith audit [n]: the most recent audit
// entries, newest first.
func (a *App) handleAuditCommand(ctx context.Context, args []string) string {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := a.store.GetAuditLog(ctx, limit)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if len(entries) == 0 {
		return "The audit log is empty."
	}

	var sb strings.Builder
	sb.WriteString("**Recent activity**")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n- %s %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action)
		if e.Target.Valid {
			fmt.Fprintf(&sb, " %s", e.Target.String)
		}
		fmt.Fprintf(&sb, " [%s] by %s", e.Result, e.Actor)
	}
	return sb.String()
}
