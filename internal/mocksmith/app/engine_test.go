package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"mocksmith/internal/mocksmith/domain"
	"mocksmith/internal/mocksmith/engine"
	"mocksmith/internal/mocksmith/store"
)

type fakeRuntime struct {
	handles  []engine.EngineHandle
	statuses map[string]engine.Status

	spawned []engine.EngineSpec
	started []string
	stopped []string
	removed []string
	listErr error
}

func (f *fakeRuntime) Spawn(_ context.Context, spec engine.EngineSpec) (engine.EngineHandle, error) {
	f.spawned = append(f.spawned, spec)
	h := engine.EngineHandle{
		Workspace:     spec.Workspace,
		ContainerID:   "cid-" + spec.Workspace,
		ContainerName: engine.ContainerNameFor(spec.Workspace),
		AdminURL:      "http://" + engine.ContainerNameFor(spec.Workspace) + ":8080",
	}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeRuntime) Stop(_ context.Context, h engine.EngineHandle) error {
	f.stopped = append(f.stopped, h.ContainerID)
	return nil
}

func (f *fakeRuntime) Start(_ context.Context, h engine.EngineHandle) error {
	f.started = append(f.started, h.ContainerID)
	return nil
}

func (f *fakeRuntime) Status(_ context.Context, h engine.EngineHandle) (engine.Status, error) {
	if s, ok := f.statuses[h.ContainerID]; ok {
		return s, nil
	}
	return engine.Status{Workspace: h.Workspace, ContainerID: h.ContainerID, State: engine.StateRunning}, nil
}

func (f *fakeRuntime) List(_ context.Context) ([]engine.EngineHandle, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.handles, nil
}

func (f *fakeRuntime) Remove(_ context.Context, h engine.EngineHandle) error {
	f.removed = append(f.removed, h.ContainerID)
	return nil
}

func engineTestApp(rt engine.Runtime) *App {
	return &App{
		config: &Config{
			DefaultWorkspace: "default",
			EngineImage:      "mockengine:latest",
		},
		runtime:    rt,
		engineSync: &engineRouter{},
	}
}

func TestEngineCommand_StartSpawnsAndRoutes(t *testing.T) {
	rt := &fakeRuntime{}
	a := engineTestApp(rt)

	reply := a.handleEngineCommand(context.Background(), []string{"start"})
	if len(rt.spawned) != 1 || rt.spawned[0].Workspace != "default" || rt.spawned[0].Image != "mockengine:latest" {
		t.Fatalf("spawn not requested correctly: %+v", rt.spawned)
	}
	if !strings.Contains(reply, "http://mocksmith-engine-default:8080") {
		t.Errorf("reply should name the admin URL: %q", reply)
	}
	if a.engineSync.current() == nil {
		t.Error("mapping sync not routed to the spawned engine")
	}
}

func TestEngineCommand_StartExistingContainerRestarts(t *testing.T) {
	rt := &fakeRuntime{handles: []engine.EngineHandle{{
		Workspace:     "staging",
		ContainerID:   "cid-staging",
		ContainerName: "mocksmith-engine-staging",
	}}}
	a := engineTestApp(rt)

	reply := a.handleEngineCommand(context.Background(), []string{"start", "staging"})
	if len(rt.spawned) != 0 {
		t.Errorf("existing container must not be respawned: %+v", rt.spawned)
	}
	if len(rt.started) != 1 || rt.started[0] != "cid-staging" {
		t.Errorf("container not restarted: %v", rt.started)
	}
	if !strings.Contains(reply, "staging") {
		t.Errorf("reply = %q", reply)
	}
	if a.engineSync.current() == nil {
		t.Error("mapping sync not routed to the restarted engine")
	}
}

func TestEngineCommand_StartWithoutImage(t *testing.T) {
	a := engineTestApp(&fakeRuntime{})
	a.config.EngineImage = ""

	reply := a.handleEngineCommand(context.Background(), []string{"start"})
	if !strings.Contains(reply, "MOCKSMITH_ENGINE_IMAGE") {
		t.Errorf("reply should name the missing setting: %q", reply)
	}
}

func TestEngineCommand_RuntimeDisabled(t *testing.T) {
	a := engineTestApp(nil)

	reply := a.handleEngineCommand(context.Background(), []string{"start"})
	if !strings.Contains(reply, "not enabled") {
		t.Errorf("reply = %q", reply)
	}
}

func TestEngineCommand_StopAndRemove(t *testing.T) {
	rt := &fakeRuntime{handles: []engine.EngineHandle{{
		Workspace:     "default",
		ContainerID:   "cid-default",
		ContainerName: "mocksmith-engine-default",
	}}}
	a := engineTestApp(rt)
	a.engineSync.set(engine.NewClient("http://mocksmith-engine-default:8080"))

	if reply := a.handleEngineCommand(context.Background(), []string{"stop"}); !strings.Contains(reply, "Stopped") {
		t.Errorf("stop reply = %q", reply)
	}
	if len(rt.stopped) != 1 {
		t.Errorf("container not stopped: %v", rt.stopped)
	}

	if reply := a.handleEngineCommand(context.Background(), []string{"remove"}); !strings.Contains(reply, "Removed") {
		t.Errorf("remove reply = %q", reply)
	}
	if len(rt.removed) != 1 {
		t.Errorf("container not removed: %v", rt.removed)
	}
	if a.engineSync.current() != nil {
		t.Error("removing the engine should drop the sync route")
	}
}

func TestEngineCommand_StopMissingWorkspace(t *testing.T) {
	a := engineTestApp(&fakeRuntime{})

	reply := a.handleEngineCommand(context.Background(), []string{"stop", "ghost"})
	if !strings.Contains(reply, "No engine container") {
		t.Errorf("reply = %q", reply)
	}
}

func TestEngineCommand_Status(t *testing.T) {
	rt := &fakeRuntime{
		handles: []engine.EngineHandle{
			{Workspace: "default", ContainerID: "cid-1", ContainerName: "mocksmith-engine-default"},
			{Workspace: "staging", ContainerID: "cid-2", ContainerName: "mocksmith-engine-staging"},
		},
		statuses: map[string]engine.Status{
			"cid-2": {State: engine.StateExited, ExitCode: 137},
		},
	}
	a := engineTestApp(rt)

	reply := a.handleEngineCommand(context.Background(), []string{"status"})
	if !strings.Contains(reply, "mocksmith-engine-default") || !strings.Contains(reply, "running") {
		t.Errorf("running engine missing from status: %q", reply)
	}
	if !strings.Contains(reply, "exited") || !strings.Contains(reply, "137") {
		t.Errorf("exited engine missing from status: %q", reply)
	}
}

func TestEngineCommand_ResetWithoutRoute(t *testing.T) {
	a := engineTestApp(&fakeRuntime{})

	reply := a.handleEngineCommand(context.Background(), []string{"reset"})
	if !strings.Contains(reply, "No engine is routed") {
		t.Errorf("reply = %q", reply)
	}
}

func TestEngineRouter_NoTargetIsNoop(t *testing.T) {
	r := &engineRouter{}
	if err := r.PushMapping(context.Background(), &domain.Mapping{ID: "m1"}); err != nil {
		t.Errorf("push with no route should be a no-op: %v", err)
	}
	if err := r.RemoveMapping(context.Background(), "m1"); err != nil {
		t.Errorf("remove with no route should be a no-op: %v", err)
	}
}

func TestEngineCommand_ListFailure(t *testing.T) {
	a := engineTestApp(&fakeRuntime{listErr: errors.New("docker daemon unreachable")})

	reply := a.handleEngineCommand(context.Background(), []string{"start"})
	if !strings.Contains(reply, "docker daemon unreachable") {
		t.Errorf("reply = %q", reply)
	}
}

func TestAuditCommand(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.WriteAudit(ctx, "t1", "@alice:example.org", "mapping_created", "m1", "ok", nil, ""); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}

	a := &App{config: &Config{}, store: st}
	reply := a.handleAuditCommand(ctx, nil)
	if !strings.Contains(reply, "mapping_created") || !strings.Contains(reply, "@alice:example.org") {
		t.Errorf("reply = %q", reply)
	}

	empty := &App{config: &Config{}, store: st}
	if got := empty.handleAuditCommand(ctx, []string{"0"}); got == "" {
		t.Errorf("bad limit should fall back to the default, got empty reply")
	}
}
