package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mocksmith/internal/mocksmith/apispec"
	"mocksmith/internal/mocksmith/config"
	"mocksmith/internal/mocksmith/domain"
)

// createFromSpec turns an API specification into one mapping per
// operation. When the prompt embeds a parseable OpenAPI document the
// conversion is deterministic; otherwise the oracle generates the mapping
// list from the description.
func (a *Assistant) createFromSpec(ctx context.Context, req *Request, settings config.OracleSettings) (*Response, error) {
	var mappings []*domain.Mapping

	if apispec.Looks(req.UserPrompt) {
		if ops, err := apispec.Parse(specDocument(req.UserPrompt)); err == nil {
			mappings = mappingsFromOperations(ops)
		}
	}

	if mappings == nil {
		prompt := Compose(ComposeInput{
			Task:       TaskCreateFromSpec,
			Workspace:  req.Workspace,
			UserPrompt: req.UserPrompt,
		})
		text, err := a.callOracle(ctx, prompt, req.History, settings, true)
		if err != nil {
			return oracleFailure(err), nil
		}
		parsed, perr := ParseMappingList(text)
		if perr != nil {
			return parseFailure(perr), nil
		}
		mappings = parsed
	}

	now := time.Now().UTC()
	saved := make([]*domain.Mapping, 0, len(mappings))
	for _, m := range mappings {
		m.ID = uuid.NewString()
		m.Workspace = req.Workspace
		m.CreatedAt = now
		m.UpdatedAt = now
		out, err := a.mappings.SaveMapping(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("save mapping %s %s: %w", m.Method, m.Path, err)
		}
		a.syncEngine(ctx, out)
		saved = append(saved, out)
	}

	a.recordAudit(ctx, req, ActionSpecImported, req.Workspace, true, map[string]interface{}{
		"count": len(saved),
	})

	return &Response{
		Success:  true,
		Message:  fmt.Sprintf("Created %d mappings from the specification in workspace %q.", len(saved), req.Workspace),
		Action:   ActionSpecImported,
		Mappings: saved,
	}, nil
}

// specDocument isolates the specification text from surrounding chat. A
// fenced block wins; otherwise everything from the first spec marker line
// onward is taken.
func specDocument(prompt string) string {
	if start := strings.Index(prompt, "```"); start >= 0 {
		rest := prompt[start:]
		return Normalize(rest)
	}
	lines := strings.Split(prompt, "\n")
	for i, line := range lines {
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(trimmed, "openapi") || strings.HasPrefix(trimmed, "swagger") || strings.HasPrefix(trimmed, "{") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return prompt
}

func mappingsFromOperations(ops []apispec.Operation) []*domain.Mapping {
	mappings := make([]*domain.Mapping, 0, len(ops))
	for _, op := range ops {
		m := &domain.Mapping{
			Name:           operationName(op),
			Method:         op.Method,
			Path:           op.Path,
			Priority:       domain.DefaultPriority,
			Enabled:        true,
			ResponseStatus: op.Status,
		}
		if op.ExampleBody != "" {
			m.ResponseBody = op.ExampleBody
			ct := op.ContentType
			if ct == "" {
				ct = "application/json"
			}
			m.ResponseHeaders = map[string]string{"Content-Type": ct}
		}
		mappings = append(mappings, m)
	}
	return mappings
}

func operationName(op apispec.Operation) string {
	if op.Summary != "" {
		return op.Summary
	}
	return strings.ToLower(op.Method) + " " + op.Path
}
