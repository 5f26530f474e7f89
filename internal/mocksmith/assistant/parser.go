package assistant

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mocksmith/internal/mocksmith/domain"
)

// ErrParseFailure marks oracle output that could not be turned into a
// usable structure. Callers report it to the operator instead of
// retrying blindly.
var ErrParseFailure = errors.New("assistant: unparseable oracle output")

//go:embed mapping_schema.json
var mappingSchemaJSON string

var mappingSchema = jsonschema.MustCompileString("mapping_schema.json", mappingSchemaJSON)

// Normalize strips a surrounding markdown code fence from oracle output
// and trims whitespace. Applying it to already-normalized text is a
// no-op.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line, language tag included.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseMapping decodes a mapping definition from oracle output. The raw
// JSON is validated against the mapping schema before decoding so that
// structurally wrong output (missing method, matcher collapsed to a
// bare string) is rejected with a single clear error.
func ParseMapping(text string) (*domain.Mapping, error) {
	raw := Normalize(text)

	var generic interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	if err := mappingSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: schema: %v", ErrParseFailure, err)
	}

	var m domain.Mapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	applyMappingDefaults(&m)
	return &m, nil
}

// ParseMappingList decodes a {"mappings": [...]} payload, validating
// each element against the mapping schema.
func ParseMappingList(text string) ([]*domain.Mapping, error) {
	raw := Normalize(text)

	var envelope struct {
		Mappings []json.RawMessage `json:"mappings"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	if len(envelope.Mappings) == 0 {
		return nil, fmt.Errorf("%w: empty mapping list", ErrParseFailure)
	}

	out := make([]*domain.Mapping, 0, len(envelope.Mappings))
	for i, item := range envelope.Mappings {
		m, err := ParseMapping(string(item))
		if err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func applyMappingDefaults(m *domain.Mapping) {
	if m.Priority == 0 {
		m.Priority = domain.DefaultPriority
	}
	if m.Delay != nil && m.Delay.Mode == "" {
		m.Delay.Mode = domain.DelayNone
	}
}

// ReimposeIdentity overwrites the identity fields of a generated
// mapping with the values of the entity it modifies. Oracle output is
// never trusted for id, workspace or timestamps.
func ReimposeIdentity(generated, original *domain.Mapping) {
	generated.ID = original.ID
	generated.Workspace = original.Workspace
	generated.CreatedAt = original.CreatedAt
	generated.UpdatedAt = time.Now().UTC()
}

// ParseTaskLabel maps a classification answer onto a known task kind.
// Markdown emphasis and fencing are stripped before matching. Anything
// unrecognized falls back to the default task.
func ParseTaskLabel(text string) TaskType {
	s := Normalize(text)
	s = strings.Trim(s, "*_`\"'")
	s = strings.TrimSpace(s)
	// Keep the first line only; some models append an explanation.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(strings.Trim(s, "*_`\"'."))

	upper := strings.ToUpper(s)
	for _, t := range AllTasks {
		if upper == taskLabel(t) {
			return t
		}
	}
	return DefaultTask
}
