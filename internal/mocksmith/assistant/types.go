// Package assistant implements the natural-language task pipeline: intent
// classification, relevance-ranked context retrieval, entity resolution,
// per-task prompt composition, oracle response parsing, and dispatch to
// mutating actions against the configuration stores.
//
// One Request in, one Response out. The pipeline is synchronous; its only
// suspension point is the oracle round-trip. No task-level error escapes
// the executor; every failure becomes a Response with Success=false.
package assistant

import (
	"context"
	"strings"

	"mocksmith/internal/mocksmith/domain"
)

// TaskType identifies what action a request represents. The enumeration is
// closed: every request resolves to exactly one of these kinds before
// dispatch.
type TaskType string

const (
	TaskCreateMapping           TaskType = "create_mapping"
	TaskUpdateMapping           TaskType = "update_mapping"
	TaskDeleteMapping           TaskType = "delete_mapping"
	TaskListMappings            TaskType = "list_mappings"
	TaskExplainMapping          TaskType = "explain_mapping"
	TaskCreateFromSpec          TaskType = "create_from_spec"
	TaskBulkUpdateMappings      TaskType = "bulk_update_mappings"
	TaskMoveMapping             TaskType = "move_mapping"
	TaskCreateWorkspace         TaskType = "create_workspace"
	TaskListWorkspaces          TaskType = "list_workspaces"
	TaskDeleteWorkspace         TaskType = "delete_workspace"
	TaskCreateUser              TaskType = "create_user"
	TaskListUsers               TaskType = "list_users"
	TaskUpdateUser              TaskType = "update_user"
	TaskDeleteUser              TaskType = "delete_user"
	TaskDebugMapping            TaskType = "debug_mapping"
	TaskOptimizeMapping         TaskType = "optimize_mapping"
	TaskSuggestScenarios        TaskType = "suggest_scenarios"
	TaskAnalyzePayload          TaskType = "analyze_payload"
	TaskAnalyzeEndpointCoverage TaskType = "analyze_endpoint_coverage"
)

// DefaultTask is the kind an unrecognized classification silently maps to.
const DefaultTask = TaskCreateMapping

// AllTasks lists every task kind in a stable order. The classifier system
// prompt and the label matcher both iterate this list.
var AllTasks = []TaskType{
	TaskCreateMapping,
	TaskUpdateMapping,
	TaskDeleteMapping,
	TaskListMappings,
	TaskExplainMapping,
	TaskCreateFromSpec,
	TaskBulkUpdateMappings,
	TaskMoveMapping,
	TaskCreateWorkspace,
	TaskListWorkspaces,
	TaskDeleteWorkspace,
	TaskCreateUser,
	TaskListUsers,
	TaskUpdateUser,
	TaskDeleteUser,
	TaskDebugMapping,
	TaskOptimizeMapping,
	TaskSuggestScenarios,
	TaskAnalyzePayload,
	TaskAnalyzeEndpointCoverage,
}

// ValidTask reports whether t is one of the enumerated kinds.
func ValidTask(t TaskType) bool {
	for _, k := range AllTasks {
		if k == t {
			return true
		}
	}
	return false
}

// Action is the tag attached to a Response describing the mutation (or
// analysis) that was performed.
type Action string

const (
	ActionMappingCreated   Action = "mapping.created"
	ActionMappingUpdated   Action = "mapping.updated"
	ActionMappingDeleted   Action = "mapping.deleted"
	ActionMappingMoved     Action = "mapping.moved"
	ActionMappingsListed   Action = "mappings.listed"
	ActionMappingExplained Action = "mapping.explained"
	ActionSpecImported     Action = "spec.imported"
	ActionBulkUpdated      Action = "mappings.bulk_updated"
	ActionWorkspaceCreated Action = "workspace.created"
	ActionWorkspacesListed Action = "workspaces.listed"
	ActionWorkspaceDeleted Action = "workspace.deleted"
	ActionUserCreated      Action = "user.created"
	ActionUsersListed      Action = "users.listed"
	ActionUserUpdated      Action = "user.updated"
	ActionUserDeleted      Action = "user.deleted"
	ActionMappingDebugged  Action = "mapping.debugged"
	ActionMappingOptimized Action = "mapping.optimized"
	ActionScenarios        Action = "scenarios.suggested"
	ActionPayloadAnalyzed  Action = "payload.analyzed"
	ActionCoverageAnalyzed Action = "coverage.analyzed"
)

// Turn is one message in a conversation history. Ordering is chronological,
// oldest first. Turns are immutable once constructed; the pipeline never
// mutates them.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Request is the input to one pipeline run.
type Request struct {
	// UserPrompt is the raw operator text.
	UserPrompt string

	// TaskType, when non-empty, is trusted and classification is skipped.
	// When empty the classifier resolves it before dispatch.
	TaskType TaskType

	// Workspace is the namespace the request operates in.
	Workspace string

	// History contains prior conversation turns, oldest first. May be nil
	// for a fresh conversation.
	History []Turn

	// Sender identifies the operator for audit entries. Ignored by the
	// pipeline logic itself.
	Sender string
}

// IsFollowUp reports whether the request carries conversation history, which
// switches the prompt composer to the deep single-entity context block.
func (r *Request) IsFollowUp() bool {
	return len(r.History) > 0
}

// Response is the terminal output of exactly one Request. On success every
// field relevant to the action is populated; it is never partially filled.
type Response struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Explanation string `json:"explanation,omitempty"`

	// Action tags the mutation or analysis performed.
	Action Action `json:"action,omitempty"`
	// TargetID is the id of the entity the action applied to.
	TargetID string `json:"targetId,omitempty"`

	// Mappings carries list results, and on an unresolved-target failure the
	// full available-entity context so the operator can retry with more
	// specificity.
	Mappings   []*domain.Mapping   `json:"mappings,omitempty"`
	Workspaces []*domain.Workspace `json:"workspaces,omitempty"`
	Users      []*domain.User      `json:"users,omitempty"`

	// Generated is the entity produced by a create/update action.
	Generated *domain.Mapping `json:"generated,omitempty"`
}

// MappingStore is the mapping repository collaborator. The SQLite store
// satisfies it; tests use in-memory fakes.
type MappingStore interface {
	ListMappings(ctx context.Context, workspace string) ([]*domain.Mapping, error)
	GetMapping(ctx context.Context, id string) (*domain.Mapping, error)
	SaveMapping(ctx context.Context, m *domain.Mapping) (*domain.Mapping, error)
	DeleteMapping(ctx context.Context, id string) error
	MoveMapping(ctx context.Context, id, targetWorkspace string) (*domain.Mapping, error)
}

// WorkspaceStore is the workspace repository collaborator.
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, ws *domain.Workspace) error
	GetWorkspace(ctx context.Context, name string) (*domain.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error)
	DeleteWorkspace(ctx context.Context, name string) error
}

// UserStore is the user repository collaborator.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User, password string) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUser(ctx context.Context, id string, role domain.Role, newPassword string) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// EngineSync is the optional mock-engine collaborator. After a successful
// store mutation the executor pushes the change best-effort; failures are
// logged and never affect the Response.
type EngineSync interface {
	PushMapping(ctx context.Context, m *domain.Mapping) error
	RemoveMapping(ctx context.Context, id string) error
}

// taskLabel returns the canonical uppercase label for matching normalized
// oracle classification output.
func taskLabel(t TaskType) string {
	return strings.ToUpper(string(t))
}
