package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"mocksmith/internal/mocksmith/config"
	"mocksmith/internal/mocksmith/domain"
	"mocksmith/internal/mocksmith/llm"
)

// DefaultContextLimit caps how many relevance-ranked mappings are included
// in a prompt's context block.
const DefaultContextLimit = 20

// Handler is a pluggable task handler consulted before the built-in
// dispatch. Handlers declare the kinds they support and a priority (lower
// is tried first); the first one whose CanHandle accepts the request wins.
type Handler interface {
	Kinds() []TaskType
	Priority() int
	CanHandle(req *Request) bool
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// Auditor records pipeline outcomes. Implementations must not fail the
// request; errors are the auditor's to log.
type Auditor interface {
	Record(ctx context.Context, actor string, action Action, target string, success bool, detail map[string]interface{})
}

// Assistant is the task pipeline: classify, resolve, compose, call the
// oracle, parse, mutate, respond. One Assistant serves many concurrent
// requests; all mutable state lives in the collaborators.
type Assistant struct {
	mappings   MappingStore
	workspaces WorkspaceStore
	users      UserStore
	provider   llm.Provider
	classifier *Classifier

	// Optional collaborators. Nil disables the concern.
	engine EngineSync
	audit  Auditor
	cfg    config.Store

	handlers     []Handler
	contextLimit int
	logger       *slog.Logger
}

// Options configures optional Assistant collaborators.
type Options struct {
	Engine       EngineSync
	Audit        Auditor
	Config       config.Store
	ContextLimit int
	Logger       *slog.Logger
}

// New builds an Assistant. mappings, workspaces, users and provider are
// required; everything in opts is optional.
func New(mappings MappingStore, workspaces WorkspaceStore, users UserStore, provider llm.Provider, opts Options) *Assistant {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.ContextLimit
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	return &Assistant{
		mappings:     mappings,
		workspaces:   workspaces,
		users:        users,
		provider:     provider,
		classifier:   NewClassifier(provider, logger),
		engine:       opts.Engine,
		audit:        opts.Audit,
		cfg:          opts.Config,
		contextLimit: limit,
		logger:       logger,
	}
}

// Register adds a pluggable handler. Not safe to call concurrently with
// Handle; register everything at startup.
func (a *Assistant) Register(h Handler) {
	a.handlers = append(a.handlers, h)
	sort.SliceStable(a.handlers, func(i, j int) bool {
		return a.handlers[i].Priority() < a.handlers[j].Priority()
	})
}

// Handle runs one request through the pipeline and returns its terminal
// Response. No error crosses this boundary: oracle failures, unparseable
// output and collaborator failures all come back as a Response with
// Success=false.
func (a *Assistant) Handle(ctx context.Context, req *Request) *Response {
	settings := config.LoadOracleSettings(ctx, a.cfg)

	task := req.TaskType
	if task == "" {
		task = a.classifier.Classify(ctx, req.UserPrompt, req.History, settings)
	}
	if !ValidTask(task) {
		return &Response{
			Success: false,
			Message: fmt.Sprintf("unrecognized task kind %q", task),
		}
	}
	req = &Request{
		UserPrompt: req.UserPrompt,
		TaskType:   task,
		Workspace:  req.Workspace,
		History:    req.History,
		Sender:     req.Sender,
	}

	a.logger.Info("dispatching task",
		"task", task,
		"workspace", req.Workspace,
		"follow_up", req.IsFollowUp(),
	)

	for _, h := range a.handlers {
		if !handlerSupports(h, task) || !h.CanHandle(req) {
			continue
		}
		resp, err := h.Handle(ctx, req)
		if err != nil {
			a.logger.Error("task failed", "task", task, "error", err)
			return collaboratorFailure(err)
		}
		return resp
	}

	resp, err := a.dispatch(ctx, req, settings)
	if err != nil {
		a.logger.Error("task failed", "task", task, "error", err)
		return collaboratorFailure(err)
	}
	return resp
}

func handlerSupports(h Handler, task TaskType) bool {
	for _, k := range h.Kinds() {
		if k == task {
			return true
		}
	}
	return false
}

// dispatch is the built-in closed mapping from task kind to action.
func (a *Assistant) dispatch(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	switch req.TaskType {
	case TaskCreateMapping:
		return a.createMapping(ctx, req, settings)
	case TaskUpdateMapping:
		return a.updateMapping(ctx, req, settings)
	case TaskDeleteMapping:
		return a.deleteMapping(ctx, req, settings)
	case TaskListMappings:
		return a.listMappings(ctx, req, settings)
	case TaskExplainMapping:
		return a.explainMapping(ctx, req, settings)
	case TaskCreateFromSpec:
		return a.createFromSpec(ctx, req, settings)
	case TaskBulkUpdateMappings:
		return a.bulkUpdate(ctx, req, settings)
	case TaskMoveMapping:
		return a.moveMapping(ctx, req, settings)
	case TaskCreateWorkspace:
		return a.createWorkspace(ctx, req, settings)
	case TaskListWorkspaces:
		return a.listWorkspaces(ctx, req, settings)
	case TaskDeleteWorkspace:
		return a.deleteWorkspace(ctx, req, settings)
	case TaskCreateUser:
		return a.createUser(ctx, req, settings)
	case TaskListUsers:
		return a.listUsers(ctx, req, settings)
	case TaskUpdateUser:
		return a.updateUser(ctx, req, settings)
	case TaskDeleteUser:
		return a.deleteUser(ctx, req, settings)
	case TaskDebugMapping:
		return a.freeTextAnalysis(ctx, req, settings, ActionMappingDebugged)
	case TaskOptimizeMapping:
		return a.freeTextAnalysis(ctx, req, settings, ActionMappingOptimized)
	case TaskSuggestScenarios:
		return a.freeTextAnalysis(ctx, req, settings, ActionScenarios)
	case TaskAnalyzePayload:
		return a.freeTextAnalysis(ctx, req, settings, ActionPayloadAnalyzed)
	case TaskAnalyzeEndpointCoverage:
		return a.freeTextAnalysis(ctx, req, settings, ActionCoverageAnalyzed)
	}
	return &Response{
		Success: false,
		Message: fmt.Sprintf("unrecognized task kind %q", req.TaskType),
	}, nil
}

// callOracle performs the single oracle round-trip for a composed prompt,
// threading history between the system instructions and the user content.
func (a *Assistant) callOracle(ctx context.Context, p Prompt, history []Turn, settings config.OracleSettings, jsonMode bool) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: p.Instructions})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: p.UserContent})

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		Model:       settings.Model,
		Messages:    messages,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		JSONMode:    jsonMode,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// workspaceContext loads the workspace's mappings and the relevance-ranked
// context slice for the prompt.
func (a *Assistant) workspaceContext(ctx context.Context, req *Request) (all, relevant []*domain.Mapping, err error) {
	all, err = a.mappings.ListMappings(ctx, req.Workspace)
	if err != nil {
		return nil, nil, fmt.Errorf("list mappings: %w", err)
	}
	return all, SelectRelevant(all, req.UserPrompt, a.contextLimit), nil
}

// resolveTarget resolves the entity a request refers to: direct prompt
// first, then history when the request carries one.
func (a *Assistant) resolveTarget(req *Request, candidates []*domain.Mapping) *domain.Mapping {
	if m := Resolve(req.UserPrompt, candidates); m != nil {
		return m
	}
	if req.IsFollowUp() {
		return ResolveFromHistory(req.History, candidates)
	}
	return nil
}

// syncEngine pushes a saved mapping to the mock engine. Best effort only.
func (a *Assistant) syncEngine(ctx context.Context, m *domain.Mapping) {
	if a.engine == nil {
		return
	}
	if err := a.engine.PushMapping(ctx, m); err != nil {
		a.logger.Warn("engine sync failed", "mapping_id", m.ID, "error", err)
	}
}

// unsyncEngine removes a deleted mapping from the mock engine. Best effort.
func (a *Assistant) unsyncEngine(ctx context.Context, id string) {
	if a.engine == nil {
		return
	}
	if err := a.engine.RemoveMapping(ctx, id); err != nil {
		a.logger.Warn("engine removal failed", "mapping_id", id, "error", err)
	}
}

func (a *Assistant) recordAudit(ctx context.Context, req *Request, action Action, target string, success bool, detail map[string]interface{}) {
	if a.audit == nil {
		return
	}
	a.audit.Record(ctx, req.Sender, action, target, success, detail)
}

// clarifyResponse is the normal "unknown target" outcome: not an error,
// the operator is asked to be more specific and shown what exists.
func clarifyResponse(task TaskType, candidates []*domain.Mapping) *Response {
	return &Response{
		Success:  false,
		Message:  fmt.Sprintf("I could not tell which mapping you mean for %s. Mention its path, name or id.", task),
		Mappings: candidates,
	}
}

// oracleFailure wraps an oracle transport error into a terminal Response.
func oracleFailure(err error) *Response {
	return &Response{
		Success: false,
		Message: fmt.Sprintf("the assistant backend is unavailable: %v", err),
	}
}

// parseFailure wraps an unparseable oracle answer into a terminal Response.
func parseFailure(err error) *Response {
	return &Response{
		Success: false,
		Message: fmt.Sprintf("the assistant produced output I could not apply: %v", err),
	}
}

// collaboratorFailure wraps a store or other collaborator error into a
// terminal Response. Any partial progress is carried in the error text.
func collaboratorFailure(err error) *Response {
	return &Response{
		Success:     false,
		Message:     fmt.Sprintf("the task could not be completed: %v", err),
		Explanation: "A backing service failed while applying the change. Anything saved before the failure stays saved.",
	}
}
