package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"mocksmith/internal/mocksmith/assistant"
	"mocksmith/internal/mocksmith/domain"
)

// ---------------------------------------------------------------------------
// In-memory collaborators
// ---------------------------------------------------------------------------

type memMappings struct {
	mappings []*domain.Mapping
	saveErr  error
	saves    int
}

func (s *memMappings) ListMappings(_ context.Context, workspace string) ([]*domain.Mapping, error) {
	var out []*domain.Mapping
	for _, m := range s.mappings {
		if m.Workspace == workspace {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *memMappings) GetMapping(_ context.Context, id string) (*domain.Mapping, error) {
	for _, m := range s.mappings {
		if m.ID == id {
			return m.Clone(), nil
		}
	}
	return nil, fmt.Errorf("mapping %s: not found", id)
}

func (s *memMappings) SaveMapping(_ context.Context, m *domain.Mapping) (*domain.Mapping, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	s.saves++
	for i, existing := range s.mappings {
		if existing.ID == m.ID {
			s.mappings[i] = m.Clone()
			return m.Clone(), nil
		}
	}
	s.mappings = append(s.mappings, m.Clone())
	return m.Clone(), nil
}

func (s *memMappings) DeleteMapping(_ context.Context, id string) error {
	for i, m := range s.mappings {
		if m.ID == id {
			s.mappings = append(s.mappings[:i], s.mappings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("mapping %s: not found", id)
}

func (s *memMappings) MoveMapping(_ context.Context, id, targetWorkspace string) (*domain.Mapping, error) {
	for _, m := range s.mappings {
		if m.ID == id {
			m.Workspace = targetWorkspace
			return m.Clone(), nil
		}
	}
	return nil, fmt.Errorf("mapping %s: not found", id)
}

func (s *memMappings) byID(id string) *domain.Mapping {
	for _, m := range s.mappings {
		if m.ID == id {
			return m
		}
	}
	return nil
}

type memWorkspaces struct {
	workspaces []*domain.Workspace
	deleteErr  error
}

func (s *memWorkspaces) CreateWorkspace(_ context.Context, ws *domain.Workspace) error {
	s.workspaces = append(s.workspaces, ws)
	return nil
}

func (s *memWorkspaces) GetWorkspace(_ context.Context, name string) (*domain.Workspace, error) {
	for _, ws := range s.workspaces {
		if ws.Name == name {
			return ws, nil
		}
	}
	return nil, fmt.Errorf("workspace %s: not found", name)
}

func (s *memWorkspaces) ListWorkspaces(_ context.Context) ([]*domain.Workspace, error) {
	return s.workspaces, nil
}

func (s *memWorkspaces) DeleteWorkspace(_ context.Context, name string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for i, ws := range s.workspaces {
		if ws.Name == name {
			s.workspaces = append(s.workspaces[:i], s.workspaces[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("workspace %s: not found", name)
}

type memUsers struct {
	users []*domain.User
}

func (s *memUsers) CreateUser(_ context.Context, u *domain.User, _ string) error {
	s.users = append(s.users, u)
	return nil
}

func (s *memUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: not found", id)
}

func (s *memUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: not found", username)
}

func (s *memUsers) ListUsers(_ context.Context) ([]*domain.User, error) {
	return s.users, nil
}

func (s *memUsers) UpdateUser(_ context.Context, id string, role domain.Role, _ string) (*domain.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			u.Role = role
			u.UpdatedAt = time.Now().UTC()
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %s: not found", id)
}

func (s *memUsers) DeleteUser(_ context.Context, id string) error {
	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("user %s: not found", id)
}

type memEngine struct {
	pushed  []string
	removed []string
	err     error
}

func (e *memEngine) PushMapping(_ context.Context, m *domain.Mapping) error {
	if e.err != nil {
		return e.err
	}
	e.pushed = append(e.pushed, m.ID)
	return nil
}

func (e *memEngine) RemoveMapping(_ context.Context, id string) error {
	if e.err != nil {
		return e.err
	}
	e.removed = append(e.removed, id)
	return nil
}

func newTestAssistant(oracle *stubOracle, mappings *memMappings, opts assistant.Options) *assistant.Assistant {
	return assistant.New(mappings, &memWorkspaces{}, &memUsers{}, oracle, opts)
}

// ---------------------------------------------------------------------------
// Pipeline behaviour
// ---------------------------------------------------------------------------

func TestHandle_CreateMappingAssignsIdentity(t *testing.T) {
	oracle := &stubOracle{text: `{"name": "users", "method": "GET", "path": "/api/users",
		"id": "fabricated", "workspace": "elsewhere", "responseStatus": 200, "enabled": true}`}
	mappings := &memMappings{}
	engine := &memEngine{}
	a := newTestAssistant(oracle, mappings, assistant.Options{Engine: engine})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "mock GET /api/users",
		TaskType:   assistant.TaskCreateMapping,
		Workspace:  "default",
	})
	if !resp.Success || resp.Action != assistant.ActionMappingCreated {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Generated == nil {
		t.Fatal("generated mapping missing from response")
	}
	if resp.Generated.ID == "fabricated" || resp.Generated.ID == "" {
		t.Errorf("oracle-supplied id must be replaced, got %q", resp.Generated.ID)
	}
	if resp.Generated.Workspace != "default" {
		t.Errorf("workspace not imposed: %q", resp.Generated.Workspace)
	}
	if len(engine.pushed) != 1 {
		t.Errorf("mapping not pushed to engine: %v", engine.pushed)
	}
}

func TestHandle_UpdatePreservesIdentity(t *testing.T) {
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	mappings := &memMappings{mappings: []*domain.Mapping{{
		ID: "m1", Workspace: "default", Name: "users",
		Method: "GET", Path: "/api/users", ResponseStatus: 200,
		Enabled: true, CreatedAt: created,
	}}}
	oracle := &stubOracle{text: `{"id": "other", "workspace": "other", "name": "users",
		"method": "GET", "path": "/api/users", "responseStatus": 404, "enabled": true}`}
	a := newTestAssistant(oracle, mappings, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "make /api/users return 404",
		TaskType:   assistant.TaskUpdateMapping,
		Workspace:  "default",
	})
	if !resp.Success {
		t.Fatalf("update failed: %+v", resp)
	}
	got := resp.Generated
	if got.ID != "m1" || got.Workspace != "default" || !got.CreatedAt.Equal(created) {
		t.Errorf("identity fields not preserved: %+v", got)
	}
	if got.ResponseStatus != 404 {
		t.Errorf("content change lost: %+v", got)
	}
}

func TestHandle_UnresolvedTargetAsksForClarification(t *testing.T) {
	mappings := &memMappings{mappings: []*domain.Mapping{
		{ID: "a", Workspace: "default", Name: "users", Path: "/api/users", Method: "GET"},
		{ID: "b", Workspace: "default", Name: "orders", Path: "/api/orders", Method: "GET"},
	}}
	oracle := &stubOracle{text: "{}"}
	a := newTestAssistant(oracle, mappings, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "delete it",
		TaskType:   assistant.TaskDeleteMapping,
		Workspace:  "default",
	})
	if resp.Success {
		t.Fatal("ambiguous target must not succeed")
	}
	if len(resp.Mappings) == 0 {
		t.Error("clarification response should carry the candidate context")
	}
	if oracle.calls != 0 {
		t.Error("no oracle call expected before target resolution")
	}
}

func TestHandle_FollowUpResolvesFromHistory(t *testing.T) {
	mappings := &memMappings{mappings: []*domain.Mapping{
		{ID: "map-1a2b", Workspace: "default", Name: "users", Path: "/api/users", Method: "GET", ResponseStatus: 200, Enabled: true},
		{ID: "map-3c4d", Workspace: "default", Name: "orders", Path: "/api/orders", Method: "GET", ResponseStatus: 200, Enabled: true},
	}}
	oracle := &stubOracle{text: "It matches GET requests."}
	a := newTestAssistant(oracle, mappings, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "what does it do?",
		TaskType:   assistant.TaskExplainMapping,
		Workspace:  "default",
		History: []assistant.Turn{
			{Role: "user", Content: "mock /api/orders please"},
			{Role: "assistant", Content: "done"},
		},
	})
	if !resp.Success || resp.TargetID != "map-3c4d" {
		t.Fatalf("history resolution failed: %+v", resp)
	}
}

func TestHandle_UnknownTaskKindIsExplicitError(t *testing.T) {
	a := newTestAssistant(&stubOracle{text: "x"}, &memMappings{}, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "whatever",
		TaskType:   assistant.TaskType("frobnicate"),
		Workspace:  "default",
	})
	if resp.Success || !strings.Contains(resp.Message, "frobnicate") {
		t.Fatalf("unknown kind should yield an explicit error response: %+v", resp)
	}
}

func TestHandle_OracleFailureIsTerminal(t *testing.T) {
	oracle := &stubOracle{err: errors.New("boom")}
	a := newTestAssistant(oracle, &memMappings{}, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "mock GET /api/users",
		TaskType:   assistant.TaskCreateMapping,
		Workspace:  "default",
	})
	if resp.Success {
		t.Fatal("expected failed response")
	}
}

func TestHandle_StoreFailureBecomesResponse(t *testing.T) {
	oracle := &stubOracle{text: `{"name": "users", "method": "GET", "path": "/api/users", "responseStatus": 200, "enabled": true}`}
	mappings := &memMappings{saveErr: errors.New("disk full")}
	a := newTestAssistant(oracle, mappings, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "mock GET /api/users",
		TaskType:   assistant.TaskCreateMapping,
		Workspace:  "default",
	})
	if resp == nil {
		t.Fatal("store failure must come back as a response, not nil")
	}
	if resp.Success {
		t.Fatal("expected failed response")
	}
	if !strings.Contains(resp.Message, "disk full") {
		t.Errorf("message should carry the failure cause: %q", resp.Message)
	}
}

func TestHandle_EngineFailureDoesNotAffectResponse(t *testing.T) {
	oracle := &stubOracle{text: `{"name": "x", "method": "GET", "path": "/x", "responseStatus": 200, "enabled": true}`}
	engine := &memEngine{err: errors.New("engine down")}
	a := newTestAssistant(oracle, &memMappings{}, assistant.Options{Engine: engine})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "mock GET /x",
		TaskType:   assistant.TaskCreateMapping,
		Workspace:  "default",
	})
	if !resp.Success {
		t.Fatalf("engine sync is best-effort: %+v", resp)
	}
}

func TestHandle_DeleteWorkspaceConflictSuggestsRemediation(t *testing.T) {
	workspaces := &memWorkspaces{
		workspaces: []*domain.Workspace{{Name: "staging"}},
		deleteErr:  errors.New("workspace still contains mappings"),
	}
	a := assistant.New(&memMappings{}, workspaces, &memUsers{}, &stubOracle{text: "x"}, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "delete the staging workspace",
		TaskType:   assistant.TaskDeleteWorkspace,
		Workspace:  "default",
	})
	if resp.Success {
		t.Fatal("conflicting delete must not succeed")
	}
	if !strings.Contains(resp.Message, "Delete or move its mappings first") {
		t.Errorf("message should tell the operator how to proceed: %q", resp.Message)
	}
}

// ---------------------------------------------------------------------------
// Bulk updates through the pipeline
// ---------------------------------------------------------------------------

func bulkFixtures() *memMappings {
	return &memMappings{mappings: []*domain.Mapping{
		{ID: "a", Workspace: "default", Name: "users", Path: "/api/users", Method: "GET", ResponseStatus: 200, Enabled: true},
		{ID: "b", Workspace: "default", Name: "orders", Path: "/api/orders", Method: "GET", ResponseStatus: 200, Enabled: true},
		{ID: "c", Workspace: "default", Name: "items", Path: "/api/items", Method: "GET", ResponseStatus: 200, Enabled: true},
	}}
}

func TestHandle_BulkUpdateAllMode(t *testing.T) {
	oracle := &stubOracle{text: `{"updateKind": "disable", "targetMode": "all", "summary": "disable everything"}`}
	mappings := bulkFixtures()
	a := newTestAssistant(oracle, mappings, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "disable all mappings",
		TaskType:   assistant.TaskBulkUpdateMappings,
		Workspace:  "default",
	})
	if !resp.Success || resp.Action != assistant.ActionBulkUpdated {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "3 mappings") {
		t.Errorf("message should report the full count: %q", resp.Message)
	}
	if mappings.saves != 3 {
		t.Errorf("saves = %d, want 3", mappings.saves)
	}
	for _, id := range []string{"a", "b", "c"} {
		if m := mappings.byID(id); m == nil || m.Enabled {
			t.Errorf("mapping %s not disabled", id)
		}
	}
}

func TestHandle_BulkUpdateSubsetSkipsMissingIDs(t *testing.T) {
	oracle := &stubOracle{text: `{"updateKind": "set_priority", "targetMode": "subset",
		"targetIds": ["a", "ghost"], "updateDetails": {"priority": 1}}`}
	mappings := bulkFixtures()
	a := newTestAssistant(oracle, mappings, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "set priority 1 on those",
		TaskType:   assistant.TaskBulkUpdateMappings,
		Workspace:  "default",
	})
	if !resp.Success {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "1 of 2") {
		t.Errorf("message should report the requested/applied mismatch: %q", resp.Message)
	}
	if mappings.saves != 1 {
		t.Errorf("saves = %d, want 1", mappings.saves)
	}
	if m := mappings.byID("a"); m == nil || m.Priority != 1 {
		t.Errorf("present id not updated: %+v", m)
	}
	if m := mappings.byID("b"); m == nil || m.Priority == 1 {
		t.Errorf("untargeted mapping touched: %+v", m)
	}
}

func TestHandle_BulkUpdateSaveFailureAbortsAsResponse(t *testing.T) {
	oracle := &stubOracle{text: `{"updateKind": "enable", "targetMode": "all"}`}
	mappings := bulkFixtures()
	mappings.saveErr = errors.New("disk full")
	a := newTestAssistant(oracle, mappings, assistant.Options{})

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "enable everything",
		TaskType:   assistant.TaskBulkUpdateMappings,
		Workspace:  "default",
	})
	if resp == nil || resp.Success {
		t.Fatalf("store failure mid-plan must be a failed response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "saved 0 of 3") {
		t.Errorf("message should report partial progress: %q", resp.Message)
	}
}

// ---------------------------------------------------------------------------
// Handler registry
// ---------------------------------------------------------------------------

type fixedHandler struct {
	kinds    []assistant.TaskType
	priority int
	accept   bool
	reply    string
	err      error
	calls    int
}

func (h *fixedHandler) Kinds() []assistant.TaskType         { return h.kinds }
func (h *fixedHandler) Priority() int                       { return h.priority }
func (h *fixedHandler) CanHandle(_ *assistant.Request) bool { return h.accept }
func (h *fixedHandler) Handle(_ context.Context, _ *assistant.Request) (*assistant.Response, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return &assistant.Response{Success: true, Message: h.reply}, nil
}

func TestHandle_RegistryConsultedInPriorityOrder(t *testing.T) {
	low := &fixedHandler{kinds: []assistant.TaskType{assistant.TaskListMappings}, priority: 1, accept: true, reply: "low"}
	high := &fixedHandler{kinds: []assistant.TaskType{assistant.TaskListMappings}, priority: 10, accept: true, reply: "high"}

	a := newTestAssistant(&stubOracle{text: "x"}, &memMappings{}, assistant.Options{})
	a.Register(high)
	a.Register(low)

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "list",
		TaskType:   assistant.TaskListMappings,
		Workspace:  "default",
	})
	if resp.Message != "low" {
		t.Errorf("lower priority should be consulted first, got %q", resp.Message)
	}
	if high.calls != 0 {
		t.Errorf("higher-priority handler should not run after a claim")
	}
}

func TestHandle_RegistryFallsThroughToBuiltin(t *testing.T) {
	declined := &fixedHandler{kinds: []assistant.TaskType{assistant.TaskListMappings}, priority: 1, accept: false}
	a := newTestAssistant(&stubOracle{text: "two mappings"}, &memMappings{}, assistant.Options{})
	a.Register(declined)

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "list everything",
		TaskType:   assistant.TaskListMappings,
		Workspace:  "default",
	})
	if !resp.Success || resp.Action != assistant.ActionMappingsListed {
		t.Errorf("builtin dispatch did not run: %+v", resp)
	}
}

func TestHandle_RegistryErrorBecomesResponse(t *testing.T) {
	broken := &fixedHandler{kinds: []assistant.TaskType{assistant.TaskListMappings}, priority: 1, accept: true, err: errors.New("backend gone")}
	a := newTestAssistant(&stubOracle{text: "x"}, &memMappings{}, assistant.Options{})
	a.Register(broken)

	resp := a.Handle(context.Background(), &assistant.Request{
		UserPrompt: "list",
		TaskType:   assistant.TaskListMappings,
		Workspace:  "default",
	})
	if resp == nil || resp.Success {
		t.Fatalf("handler error must be a failed response: %+v", resp)
	}
	if !strings.Contains(resp.Message, "backend gone") {
		t.Errorf("message should carry the failure cause: %q", resp.Message)
	}
}
