package assistant_test

import (
	"context"
	"errors"
	"testing"

	"mocksmith/internal/mocksmith/assistant"
	"mocksmith/internal/mocksmith/config"
	"mocksmith/internal/mocksmith/llm"
)

// stubOracle returns a fixed completion (or error) on every call and
// records the last request for inspection.
type stubOracle struct {
	text     string
	err      error
	captured llm.CompletionRequest
	calls    int
}

func (s *stubOracle) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.captured = req
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Text: s.text}, nil
}

func testSettings() config.OracleSettings {
	return config.OracleSettings{Model: "test-model", Temperature: 0.2, MaxTokens: 512}
}

func TestClassify_UsesOracleAnswer(t *testing.T) {
	stub := &stubOracle{text: "LIST_MAPPINGS"}
	c := assistant.NewClassifier(stub, nil)

	got := c.Classify(context.Background(), "show everything", nil, testSettings())
	if got != assistant.TaskListMappings {
		t.Fatalf("got %q, want list_mappings", got)
	}
	if stub.captured.Messages[0].Role != llm.RoleSystem {
		t.Errorf("system instruction must come first")
	}
}

func TestClassify_UnparseableAnswerMapsToDefault(t *testing.T) {
	// Garbage output is not a failure; it falls through to the default
	// kind, never to the keyword heuristic.
	stub := &stubOracle{text: "I think you want to frobnicate?"}
	c := assistant.NewClassifier(stub, nil)

	got := c.Classify(context.Background(), "create a user named bob", nil, testSettings())
	if got != assistant.DefaultTask {
		t.Fatalf("unparseable answer should map to default, got %q", got)
	}
}

func TestClassify_FallbackOnOracleError(t *testing.T) {
	stub := &stubOracle{err: errors.New("connection refused")}
	c := assistant.NewClassifier(stub, nil)

	got := c.Classify(context.Background(), "create a user named bob", nil, testSettings())
	if got != assistant.TaskCreateUser {
		t.Fatalf("heuristic fallback expected on transport error, got %q", got)
	}
}

func TestClassify_ForwardsHistory(t *testing.T) {
	stub := &stubOracle{text: "UPDATE_MAPPING"}
	c := assistant.NewClassifier(stub, nil)

	history := []assistant.Turn{
		{Role: "user", Content: "mock GET /api/users"},
		{Role: "assistant", Content: "done"},
	}
	c.Classify(context.Background(), "now make it slower", history, testSettings())

	msgs := stub.captured.Messages
	if len(msgs) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(msgs))
	}
	if msgs[1].Content != "mock GET /api/users" || msgs[3].Content != "now make it slower" {
		t.Errorf("history not threaded in order: %+v", msgs)
	}
}

func TestHeuristicClassify(t *testing.T) {
	cases := []struct {
		prompt string
		want   assistant.TaskType
	}{
		{"here is an OpenAPI document", assistant.TaskCreateFromSpec},
		{"import this swagger file", assistant.TaskCreateFromSpec},
		// Spec keywords win even when workspace words are present.
		{"create a workspace from this openapi spec", assistant.TaskCreateFromSpec},
		{"create a new workspace called staging", assistant.TaskCreateWorkspace},
		{"create a namespace for the mobile team", assistant.TaskCreateWorkspace},
		{"create a user account for dana", assistant.TaskCreateUser},
		{"mock GET /api/users", assistant.TaskCreateMapping},
		{"", assistant.TaskCreateMapping},
	}
	for _, tc := range cases {
		if got := assistant.HeuristicClassify(tc.prompt); got != tc.want {
			t.Errorf("HeuristicClassify(%q) = %q, want %q", tc.prompt, got, tc.want)
		}
	}
}
