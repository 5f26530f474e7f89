package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mocksmith/internal/mocksmith/config"
)

func (a *Assistant) createMapping(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	_, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}

	prompt := Compose(ComposeInput{
		Task:       TaskCreateMapping,
		Workspace:  req.Workspace,
		Mappings:   relevant,
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, true)
	if err != nil {
		return oracleFailure(err), nil
	}

	m, err := ParseMapping(text)
	if err != nil {
		return parseFailure(err), nil
	}
	now := time.Now().UTC()
	m.ID = uuid.NewString()
	m.Workspace = req.Workspace
	m.CreatedAt = now
	m.UpdatedAt = now

	saved, err := a.mappings.SaveMapping(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("save mapping: %w", err)
	}
	a.syncEngine(ctx, saved)
	a.recordAudit(ctx, req, ActionMappingCreated, saved.ID, true, map[string]interface{}{
		"method": saved.Method, "path": saved.Path,
	})

	return &Response{
		Success:     true,
		Message:     fmt.Sprintf("Created mapping %s %s -> %d in workspace %q.", saved.Method, saved.Path, saved.ResponseStatus, saved.Workspace),
		Explanation: fmt.Sprintf("New mapping %q (id %s) responds with status %d.", saved.Name, saved.ID, saved.ResponseStatus),
		Action:      ActionMappingCreated,
		TargetID:    saved.ID,
		Generated:   saved,
	}, nil
}

func (a *Assistant) updateMapping(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	all, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}
	target := a.resolveTarget(req, all)
	if target == nil {
		return clarifyResponse(req.TaskType, relevant), nil
	}

	prompt := Compose(ComposeInput{
		Task:       TaskUpdateMapping,
		Workspace:  req.Workspace,
		Mappings:   relevant,
		Target:     target,
		FollowUp:   req.IsFollowUp(),
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, true)
	if err != nil {
		return oracleFailure(err), nil
	}

	m, err := ParseMapping(text)
	if err != nil {
		return parseFailure(err), nil
	}
	ReimposeIdentity(m, target)

	saved, err := a.mappings.SaveMapping(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("save mapping: %w", err)
	}
	a.syncEngine(ctx, saved)
	a.recordAudit(ctx, req, ActionMappingUpdated, saved.ID, true, nil)

	return &Response{
		Success:     true,
		Message:     fmt.Sprintf("Updated mapping %s %s (id %s).", saved.Method, saved.Path, saved.ID),
		Explanation: fmt.Sprintf("Mapping %q now responds with status %d.", saved.Name, saved.ResponseStatus),
		Action:      ActionMappingUpdated,
		TargetID:    saved.ID,
		Generated:   saved,
	}, nil
}

func (a *Assistant) deleteMapping(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	all, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}
	target := a.resolveTarget(req, all)
	if target == nil {
		return clarifyResponse(req.TaskType, relevant), nil
	}

	if err := a.mappings.DeleteMapping(ctx, target.ID); err != nil {
		return nil, fmt.Errorf("delete mapping: %w", err)
	}
	a.unsyncEngine(ctx, target.ID)
	a.recordAudit(ctx, req, ActionMappingDeleted, target.ID, true, map[string]interface{}{
		"method": target.Method, "path": target.Path,
	})

	return &Response{
		Success:  true,
		Message:  fmt.Sprintf("Deleted mapping %s %s (id %s).", target.Method, target.Path, target.ID),
		Action:   ActionMappingDeleted,
		TargetID: target.ID,
	}, nil
}

func (a *Assistant) listMappings(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	all, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}

	prompt := Compose(ComposeInput{
		Task:       TaskListMappings,
		Workspace:  req.Workspace,
		Mappings:   relevant,
		UserPrompt: req.UserPrompt,
	})
	summary, err := a.callOracle(ctx, prompt, req.History, settings, false)
	if err != nil {
		// Listing still works without the oracle; fall back to a plain count.
		summary = fmt.Sprintf("%d mappings in workspace %q.", len(all), req.Workspace)
	}

	return &Response{
		Success:     true,
		Message:     fmt.Sprintf("%d mappings in workspace %q.", len(all), req.Workspace),
		Explanation: strings.TrimSpace(summary),
		Action:      ActionMappingsListed,
		Mappings:    all,
	}, nil
}

func (a *Assistant) explainMapping(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	all, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}
	target := a.resolveTarget(req, all)
	if target == nil {
		return clarifyResponse(req.TaskType, relevant), nil
	}

	prompt := Compose(ComposeInput{
		Task:       TaskExplainMapping,
		Workspace:  req.Workspace,
		Mappings:   relevant,
		Target:     target,
		FollowUp:   req.IsFollowUp(),
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, false)
	if err != nil {
		return oracleFailure(err), nil
	}

	return &Response{
		Success:     true,
		Message:     fmt.Sprintf("Mapping %s %s (id %s).", target.Method, target.Path, target.ID),
		Explanation: strings.TrimSpace(text),
		Action:      ActionMappingExplained,
		TargetID:    target.ID,
	}, nil
}

func (a *Assistant) moveMapping(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	all, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}
	target := a.resolveTarget(req, all)
	if target == nil {
		return clarifyResponse(req.TaskType, relevant), nil
	}

	dest := destinationWorkspace(req.UserPrompt, req.Workspace)
	if dest == "" {
		return &Response{
			Success: false,
			Message: "I could not tell which workspace to move the mapping to. Say e.g. \"move it to staging\".",
		}, nil
	}
	if _, err := a.workspaces.GetWorkspace(ctx, dest); err != nil {
		return &Response{
			Success: false,
			Message: fmt.Sprintf("workspace %q does not exist", dest),
		}, nil
	}

	moved, err := a.mappings.MoveMapping(ctx, target.ID, dest)
	if err != nil {
		return nil, fmt.Errorf("move mapping: %w", err)
	}
	a.syncEngine(ctx, moved)
	a.recordAudit(ctx, req, ActionMappingMoved, moved.ID, true, map[string]interface{}{
		"from": req.Workspace, "to": dest,
	})

	return &Response{
		Success:   true,
		Message:   fmt.Sprintf("Moved mapping %s %s to workspace %q.", moved.Method, moved.Path, dest),
		Action:    ActionMappingMoved,
		TargetID:  moved.ID,
		Generated: moved,
	}, nil
}

// destinationWorkspace extracts the target workspace name from a move
// request. It looks for the token after "to".
func destinationWorkspace(prompt, current string) string {
	fields := strings.Fields(strings.ToLower(prompt))
	for i, f := range fields {
		if f != "to" || i+1 >= len(fields) {
			continue
		}
		candidate := strings.Trim(fields[i+1], `.,"'`)
		if candidate != "" && candidate != current && candidate != "workspace" && candidate != "the" {
			return candidate
		}
		// "to the staging workspace"
		if (candidate == "the" || candidate == "workspace") && i+2 < len(fields) {
			next := strings.Trim(fields[i+2], `.,"'`)
			if next != "" && next != "workspace" && next != current {
				return next
			}
		}
	}
	return ""
}

// freeTextAnalysis covers the prose-answer helpers: debug, optimize,
// suggest scenarios, payload analysis and coverage analysis. They share a
// pipeline and differ only in task instruction and action tag.
func (a *Assistant) freeTextAnalysis(ctx context.Context, req *Request, settings config.OracleSettings, action Action) (*Response, error) {
	all, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}

	target := a.resolveTarget(req, all)
	if target == nil && targetRequired(req.TaskType) {
		return clarifyResponse(req.TaskType, relevant), nil
	}

	prompt := Compose(ComposeInput{
		Task:       req.TaskType,
		Workspace:  req.Workspace,
		Mappings:   relevant,
		Target:     target,
		FollowUp:   req.IsFollowUp(),
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, false)
	if err != nil {
		return oracleFailure(err), nil
	}

	resp := &Response{
		Success:     true,
		Message:     analysisMessage(req.TaskType),
		Explanation: strings.TrimSpace(text),
		Action:      action,
	}
	if target != nil {
		resp.TargetID = target.ID
	}
	return resp, nil
}

// targetRequired reports whether an analysis kind needs a resolved entity.
func targetRequired(t TaskType) bool {
	switch t {
	case TaskDebugMapping, TaskOptimizeMapping:
		return true
	}
	return false
}

func analysisMessage(t TaskType) string {
	switch t {
	case TaskDebugMapping:
		return "Debug analysis complete."
	case TaskOptimizeMapping:
		return "Optimization suggestions ready."
	case TaskSuggestScenarios:
		return "Scenario suggestions ready."
	case TaskAnalyzePayload:
		return "Payload match analysis complete."
	case TaskAnalyzeEndpointCoverage:
		return "Endpoint coverage analysis complete."
	}
	return "Analysis complete."
}
