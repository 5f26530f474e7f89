package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mocksmith/internal/mocksmith/config"
	"mocksmith/internal/mocksmith/domain"
)

// UpdateKind enumerates the bulk-update operations.
type UpdateKind string

const (
	UpdateAddHeader         UpdateKind = "add_header"
	UpdateSetPriority       UpdateKind = "set_priority"
	UpdateEnable            UpdateKind = "enable"
	UpdateDisable           UpdateKind = "disable"
	UpdateSetDelay          UpdateKind = "set_delay"
	UpdateAddTag            UpdateKind = "add_tag"
	UpdateSetResponseStatus UpdateKind = "set_response_status"
)

// ValidUpdateKind reports whether k is a known bulk-update operation.
func ValidUpdateKind(k UpdateKind) bool {
	switch k {
	case UpdateAddHeader, UpdateSetPriority, UpdateEnable, UpdateDisable,
		UpdateSetDelay, UpdateAddTag, UpdateSetResponseStatus:
		return true
	}
	return false
}

// BulkUpdatePlan is the oracle-authored plan for one bulk-update request.
// It is a derived artifact, never persisted.
type BulkUpdatePlan struct {
	UpdateKind    UpdateKind             `json:"updateKind"`
	TargetMode    string                 `json:"targetMode"`
	TargetIDs     []string               `json:"targetIds"`
	UpdateDetails map[string]interface{} `json:"updateDetails"`
	Summary       string                 `json:"summary"`
}

// ParsePlan decodes a BulkUpdatePlan from oracle output, enforcing the
// required fields.
func ParsePlan(text string) (*BulkUpdatePlan, error) {
	raw := Normalize(text)

	var plan BulkUpdatePlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	if !ValidUpdateKind(plan.UpdateKind) {
		return nil, fmt.Errorf("%w: unknown updateKind %q", ErrParseFailure, plan.UpdateKind)
	}
	switch plan.TargetMode {
	case "all":
	case "subset":
		if len(plan.TargetIDs) == 0 {
			return nil, fmt.Errorf("%w: targetMode subset with no targetIds", ErrParseFailure)
		}
	default:
		return nil, fmt.Errorf("%w: unknown targetMode %q", ErrParseFailure, plan.TargetMode)
	}
	return &plan, nil
}

// existenceValues are header values that denote "the header must merely be
// present" rather than a literal value to match.
var existenceValues = map[string]bool{
	"required": true,
	"exists":   true,
	"present":  true,
	"any":      true,
}

// applyUpdate mutates one mapping per the plan's update kind. The mapping
// is the caller's copy; the caller saves it afterwards.
func applyUpdate(m *domain.Mapping, plan *BulkUpdatePlan) error {
	d := plan.UpdateDetails
	switch plan.UpdateKind {
	case UpdateAddHeader:
		name, _ := d["name"].(string)
		value, _ := d["value"].(string)
		if name == "" {
			return fmt.Errorf("add_header: missing header name")
		}
		if existenceValues[strings.ToLower(strings.TrimSpace(value))] {
			if m.HeaderMatchers == nil {
				m.HeaderMatchers = make(map[string]domain.Matcher)
			}
			m.HeaderMatchers[name] = domain.Matcher{MatchType: domain.MatchExists, Pattern: ""}
		} else {
			if m.Headers == nil {
				m.Headers = make(map[string]string)
			}
			m.Headers[name] = value
		}

	case UpdateSetPriority:
		p, ok := detailInt(d, "priority")
		if !ok || p < 0 {
			return fmt.Errorf("set_priority: missing or invalid priority")
		}
		m.Priority = p

	case UpdateEnable:
		m.Enabled = true

	case UpdateDisable:
		m.Enabled = false

	case UpdateSetDelay:
		mode, _ := d["mode"].(string)
		switch domain.DelayMode(mode) {
		case domain.DelayFixed:
			millis, ok := detailInt(d, "fixedMillis")
			if !ok {
				return fmt.Errorf("set_delay: missing fixedMillis")
			}
			m.Delay = &domain.Delay{Mode: domain.DelayFixed, FixedMillis: millis}
		case domain.DelayUniform:
			min, okMin := detailInt(d, "minMillis")
			max, okMax := detailInt(d, "maxMillis")
			if !okMin || !okMax || min > max {
				return fmt.Errorf("set_delay: invalid uniform bounds")
			}
			m.Delay = &domain.Delay{Mode: domain.DelayUniform, MinMillis: min, MaxMillis: max}
		case domain.DelayNone:
			m.Delay = nil
		default:
			return fmt.Errorf("set_delay: unknown mode %q", mode)
		}

	case UpdateAddTag:
		tag, _ := d["tag"].(string)
		if tag == "" {
			return fmt.Errorf("add_tag: missing tag")
		}
		for _, t := range m.Tags {
			if t == tag {
				return nil
			}
		}
		m.Tags = append(m.Tags, tag)

	case UpdateSetResponseStatus:
		status, ok := detailInt(d, "status")
		if !ok || status < 100 || status > 599 {
			return fmt.Errorf("set_response_status: missing or invalid status")
		}
		m.ResponseStatus = status

	default:
		return fmt.Errorf("unknown update kind %q", plan.UpdateKind)
	}
	return nil
}

// detailInt reads an integer out of the loosely-typed details map. JSON
// numbers decode as float64.
func detailInt(d map[string]interface{}, key string) (int, bool) {
	switch v := d[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// resolvePlanTargets turns the plan's target selector into concrete
// mappings. Subset ids not present in the workspace are skipped, not
// errors; the caller reports the mismatch via counts.
func resolvePlanTargets(plan *BulkUpdatePlan, all []*domain.Mapping) (targets []*domain.Mapping, requested int) {
	if plan.TargetMode == "all" {
		return all, len(all)
	}
	byID := make(map[string]*domain.Mapping, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}
	for _, id := range plan.TargetIDs {
		if m, ok := byID[id]; ok {
			targets = append(targets, m)
		}
	}
	return targets, len(plan.TargetIDs)
}

func (a *Assistant) bulkUpdate(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	all, relevant, err := a.workspaceContext(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return &Response{
			Success: false,
			Message: fmt.Sprintf("workspace %q has no mappings to update", req.Workspace),
		}, nil
	}

	prompt := Compose(ComposeInput{
		Task:       TaskBulkUpdateMappings,
		Workspace:  req.Workspace,
		Mappings:   relevant,
		UserPrompt: req.UserPrompt,
	})
	text, err := a.callOracle(ctx, prompt, req.History, settings, true)
	if err != nil {
		return oracleFailure(err), nil
	}

	plan, err := ParsePlan(text)
	if err != nil {
		return parseFailure(err), nil
	}

	targets, requested := resolvePlanTargets(plan, all)

	// Sequential application; a store failure aborts the remainder. What was
	// already saved stays saved.
	updated := 0
	for _, target := range targets {
		m := target.Clone()
		if uerr := applyUpdate(m, plan); uerr != nil {
			return parseFailure(uerr), nil
		}
		saved, serr := a.mappings.SaveMapping(ctx, m)
		if serr != nil {
			return nil, fmt.Errorf("bulk update: saved %d of %d, then: %w", updated, len(targets), serr)
		}
		a.syncEngine(ctx, saved)
		updated++
	}

	a.recordAudit(ctx, req, ActionBulkUpdated, req.Workspace, true, map[string]interface{}{
		"update_kind": string(plan.UpdateKind),
		"updated":     updated,
		"requested":   requested,
	})

	msg := fmt.Sprintf("Applied %s to %d mappings.", plan.UpdateKind, updated)
	if updated < requested {
		msg = fmt.Sprintf("Applied %s to %d of %d requested mappings (the rest were not found).", plan.UpdateKind, updated, requested)
	}
	return &Response{
		Success:     true,
		Message:     msg,
		Explanation: strings.TrimSpace(plan.Summary),
		Action:      ActionBulkUpdated,
	}, nil
}
