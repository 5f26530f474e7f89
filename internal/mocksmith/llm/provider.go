// Package llm defines the oracle provider interface and message types used
// by the assistant pipeline.
//
// The assistant builds a single ordered message sequence per call: system
// instructions first, then prior conversation turns in chronological order,
// then the current user content. The provider performs exactly one blocking
// round-trip; retry and fallback policy belong to the caller.
package llm

import (
	"context"
	"errors"
)

// ErrOracleUnavailable is returned by a Provider when the upstream service
// cannot be reached or reports a server-side failure. The intent classifier
// recovers from it with its deterministic heuristic fallback; everywhere
// else it surfaces as a failed response.
var ErrOracleUnavailable = errors.New("llm: oracle unavailable")

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a single oracle call.
type CompletionRequest struct {
	// Model overrides the provider default when non-empty.
	Model string
	// Messages is the full ordered sequence: system, prior turns, user.
	Messages []Message
	// Temperature is the sampling temperature.
	Temperature float64
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
	// JSONMode asks the provider for a JSON-object response when supported.
	JSONMode bool
}

// TokenUsage reports token consumption for a single call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the oracle's output.
type CompletionResponse struct {
	// Text is the raw completion text. Callers normalize and parse it; the
	// provider performs no post-processing.
	Text string
	// Usage holds token counts when the provider reports them.
	Usage TokenUsage
}

// Provider is the interface every oracle backend implements.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Complete sends the message sequence to the oracle and returns its raw
	// text completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
