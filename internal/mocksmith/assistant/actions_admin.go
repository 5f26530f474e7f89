package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mocksmith/internal/mocksmith/config"
	"mocksmith/internal/mocksmith/domain"
)

// workspaceFacts renders the workspace listing as an extra context block
// for workspace-centric prompts.
func workspaceFacts(workspaces []*domain.Workspace, counts map[string]int) string {
	var sb strings.Builder
	sb.WriteString("WORKSPACES:\n")
	if len(workspaces) == 0 {
		sb.WriteString("(none)\n")
		return sb.String()
	}
	for _, ws := range workspaces {
		fmt.Fprintf(&sb, "- %s (%d mappings)", ws.Name, counts[ws.Name])
		if ws.Description != "" {
			fmt.Fprintf(&sb, ": %s", ws.Description)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func userFacts(users []*domain.User) string {
	var sb strings.Builder
	sb.WriteString("USERS:\n")
	if len(users) == 0 {
		sb.WriteString("(none)\n")
		return sb.String()
	}
	for _, u := range users {
		fmt.Fprintf(&sb, "- %s (%s)\n", u.Username, u.Role)
	}
	return sb.String()
}

func (a *Assistant) createWorkspace(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	prompt := Compose(ComposeInput{
		Task:       TaskCreateWorkspace,
		Workspace:  req.Workspace,
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, true)
	if err != nil {
		return oracleFailure(err), nil
	}

	var parsed struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if uerr := json.Unmarshal([]byte(Normalize(text)), &parsed); uerr != nil || parsed.Name == "" {
		return parseFailure(fmt.Errorf("%w: missing workspace name", ErrParseFailure)), nil
	}

	now := time.Now().UTC()
	ws := &domain.Workspace{
		Name:        strings.ToLower(parsed.Name),
		Description: parsed.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.workspaces.CreateWorkspace(ctx, ws); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	a.recordAudit(ctx, req, ActionWorkspaceCreated, ws.Name, true, nil)

	return &Response{
		Success:    true,
		Message:    fmt.Sprintf("Created workspace %q.", ws.Name),
		Action:     ActionWorkspaceCreated,
		TargetID:   ws.Name,
		Workspaces: []*domain.Workspace{ws},
	}, nil
}

func (a *Assistant) listWorkspaces(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	workspaces, err := a.workspaces.ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	counts := make(map[string]int, len(workspaces))
	for _, ws := range workspaces {
		mappings, lerr := a.mappings.ListMappings(ctx, ws.Name)
		if lerr != nil {
			return nil, fmt.Errorf("count mappings in %q: %w", ws.Name, lerr)
		}
		counts[ws.Name] = len(mappings)
	}

	prompt := Compose(ComposeInput{
		Task:       TaskListWorkspaces,
		Workspace:  req.Workspace,
		ExtraFacts: []string{workspaceFacts(workspaces, counts)},
		UserPrompt: req.UserPrompt,
	})
	summary, err := a.callOracle(ctx, prompt, req.History, settings, false)
	if err != nil {
		summary = fmt.Sprintf("%d workspaces.", len(workspaces))
	}

	return &Response{
		Success:     true,
		Message:     fmt.Sprintf("%d workspaces.", len(workspaces)),
		Explanation: strings.TrimSpace(summary),
		Action:      ActionWorkspacesListed,
		Workspaces:  workspaces,
	}, nil
}

func (a *Assistant) deleteWorkspace(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	workspaces, err := a.workspaces.ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	var target *domain.Workspace
	lowered := strings.ToLower(req.UserPrompt)
	for _, ws := range workspaces {
		if strings.Contains(lowered, strings.ToLower(ws.Name)) {
			target = ws
			break
		}
	}
	if target == nil {
		return &Response{
			Success:    false,
			Message:    "I could not tell which workspace to delete. Name it explicitly.",
			Workspaces: workspaces,
		}, nil
	}

	if err := a.workspaces.DeleteWorkspace(ctx, target.Name); err != nil {
		return &Response{
			Success: false,
			Message: fmt.Sprintf("cannot delete workspace %q: %v. Delete or move its mappings first.", target.Name, err),
		}, nil
	}
	a.recordAudit(ctx, req, ActionWorkspaceDeleted, target.Name, true, nil)

	return &Response{
		Success:  true,
		Message:  fmt.Sprintf("Deleted workspace %q.", target.Name),
		Action:   ActionWorkspaceDeleted,
		TargetID: target.Name,
	}, nil
}

func (a *Assistant) createUser(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	prompt := Compose(ComposeInput{
		Task:       TaskCreateUser,
		Workspace:  req.Workspace,
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, true)
	if err != nil {
		return oracleFailure(err), nil
	}

	var parsed struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if uerr := json.Unmarshal([]byte(Normalize(text)), &parsed); uerr != nil || parsed.Username == "" {
		return parseFailure(fmt.Errorf("%w: missing username", ErrParseFailure)), nil
	}
	if parsed.Role == "" {
		parsed.Role = string(domain.RoleViewer)
	}
	if !domain.ValidRole(parsed.Role) {
		return parseFailure(fmt.Errorf("%w: unknown role %q", ErrParseFailure, parsed.Role)), nil
	}

	now := time.Now().UTC()
	u := &domain.User{
		ID:        uuid.NewString(),
		Username:  parsed.Username,
		Role:      domain.Role(parsed.Role),
		CreatedAt: now,
		UpdatedAt: now,
	}
	// A random initial password forces a reset on first login.
	if err := a.users.CreateUser(ctx, u, uuid.NewString()); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	a.recordAudit(ctx, req, ActionUserCreated, u.Username, true, map[string]interface{}{"role": string(u.Role)})

	return &Response{
		Success:  true,
		Message:  fmt.Sprintf("Created user %q with role %s.", u.Username, u.Role),
		Action:   ActionUserCreated,
		TargetID: u.ID,
		Users:    []*domain.User{u},
	}, nil
}

func (a *Assistant) listUsers(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	prompt := Compose(ComposeInput{
		Task:       TaskListUsers,
		Workspace:  req.Workspace,
		ExtraFacts: []string{userFacts(users)},
		UserPrompt: req.UserPrompt,
	})
	summary, err := a.callOracle(ctx, prompt, req.History, settings, false)
	if err != nil {
		summary = fmt.Sprintf("%d users.", len(users))
	}

	return &Response{
		Success:     true,
		Message:     fmt.Sprintf("%d users.", len(users)),
		Explanation: strings.TrimSpace(summary),
		Action:      ActionUsersListed,
		Users:       users,
	}, nil
}

func (a *Assistant) updateUser(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	prompt := Compose(ComposeInput{
		Task:       TaskUpdateUser,
		Workspace:  req.Workspace,
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, true)
	if err != nil {
		return oracleFailure(err), nil
	}

	var parsed struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if uerr := json.Unmarshal([]byte(Normalize(text)), &parsed); uerr != nil || parsed.Username == "" {
		return parseFailure(fmt.Errorf("%w: missing username", ErrParseFailure)), nil
	}
	if !domain.ValidRole(parsed.Role) {
		return parseFailure(fmt.Errorf("%w: unknown role %q", ErrParseFailure, parsed.Role)), nil
	}

	existing, err := a.users.GetUserByUsername(ctx, parsed.Username)
	if err != nil {
		return &Response{
			Success: false,
			Message: fmt.Sprintf("user %q not found", parsed.Username),
		}, nil
	}

	updated, err := a.users.UpdateUser(ctx, existing.ID, domain.Role(parsed.Role), "")
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	a.recordAudit(ctx, req, ActionUserUpdated, updated.Username, true, map[string]interface{}{"role": string(updated.Role)})

	return &Response{
		Success:  true,
		Message:  fmt.Sprintf("User %q now has role %s.", updated.Username, updated.Role),
		Action:   ActionUserUpdated,
		TargetID: updated.ID,
		Users:    []*domain.User{updated},
	}, nil
}

func (a *Assistant) deleteUser(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var target *domain.User
	lowered := strings.ToLower(req.UserPrompt)
	for _, u := range users {
		if strings.Contains(lowered, strings.ToLower(u.Username)) {
			target = u
			break
		}
	}
	if target == nil {
		return &Response{
			Success: false,
			Message: "I could not tell which user to delete. Name the account explicitly.",
			Users:   users,
		}, nil
	}

	if err := a.users.DeleteUser(ctx, target.ID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	a.recordAudit(ctx, req, ActionUserDeleted, target.Username, true, nil)

	return &Response{
		Success:  true,
		Message:  fmt.Sprintf("Deleted user %q.", target.Username),
		Action:   ActionUserDeleted,
		TargetID: target.ID,
	}, nil
}
