package assistant

import (
	"context"
	"log/slog"
	"strings"

	"mocksmith/internal/mocksmith/config"
	"mocksmith/internal/mocksmith/llm"
)

// classifierInstruction is the fixed system message for intent
// classification. It enumerates every task kind and the disambiguation
// rules; the oracle answers with exactly one label.
const classifierInstruction = `You are an intent classifier for Mocksmith, an assistant that manages simulated HTTP API endpoints (mappings).

Classify the operator's message as exactly ONE of these task kinds:

  CREATE_MAPPING            create a new mock endpoint
  UPDATE_MAPPING            change an existing mapping
  DELETE_MAPPING            remove a mapping
  LIST_MAPPINGS             list or show all mappings
  EXPLAIN_MAPPING           explain what one specific mapping does
  CREATE_FROM_SPEC          generate mappings from an API specification document
  BULK_UPDATE_MAPPINGS      apply one change to many mappings at once
  MOVE_MAPPING              move a mapping to another workspace
  CREATE_WORKSPACE          create a workspace (namespace)
  LIST_WORKSPACES           list workspaces
  DELETE_WORKSPACE          delete a workspace
  CREATE_USER               create a user account
  LIST_USERS                list user accounts
  UPDATE_USER               change a user account
  DELETE_USER               delete a user account
  DEBUG_MAPPING             diagnose why a mapping does not match as expected
  OPTIMIZE_MAPPING          improve an existing mapping
  SUGGEST_SCENARIOS         propose additional mock scenarios
  ANALYZE_PAYLOAD           determine which mapping a given request payload would hit
  ANALYZE_ENDPOINT_COVERAGE compare described endpoints against existing mappings

Disambiguation rules:
- A message naming one specific endpoint and asking what it does is EXPLAIN_MAPPING, not LIST_MAPPINGS.
- "Show everything", "what do we have" phrasing is LIST_MAPPINGS.
- Mentions of OpenAPI, Swagger, RAML or a pasted specification document mean CREATE_FROM_SPEC.
- "All mappings", "every endpoint" combined with a change means BULK_UPDATE_MAPPINGS.
- When genuinely torn between creating and anything else, answer CREATE_MAPPING.

Answer with the task kind label only. No punctuation, no explanation.`

// Classifier decides which task kind a prompt asks for. The oracle path is
// primary; the keyword heuristic runs only when the oracle call itself
// fails. Unparseable oracle answers are not failures, they map to the
// default kind inside ParseTaskLabel.
type Classifier struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewClassifier builds a Classifier around an oracle provider.
func NewClassifier(provider llm.Provider, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{provider: provider, logger: logger}
}

// Classify returns the task kind for prompt. History turns are forwarded
// so follow-ups classify against their surrounding conversation.
func (c *Classifier) Classify(ctx context.Context, prompt string, history []Turn, settings config.OracleSettings) TaskType {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: classifierInstruction})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Model:       settings.Model,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   32,
	})
	if err != nil {
		c.logger.Warn("oracle classification failed, using keyword fallback", "error", err)
		return HeuristicClassify(prompt)
	}
	return ParseTaskLabel(resp.Text)
}

// HeuristicClassify is the deterministic keyword fallback. It is total:
// every prompt maps to some kind.
func HeuristicClassify(prompt string) TaskType {
	p := strings.ToLower(prompt)

	for _, kw := range []string{"openapi", "swagger", "raml", "api spec", "specification"} {
		if strings.Contains(p, kw) {
			return TaskCreateFromSpec
		}
	}
	if (strings.Contains(p, "workspace") || strings.Contains(p, "namespace")) && strings.Contains(p, "create") {
		return TaskCreateWorkspace
	}
	if strings.Contains(p, "user") && strings.Contains(p, "create") {
		return TaskCreateUser
	}
	return DefaultTask
}
