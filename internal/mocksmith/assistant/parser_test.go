package assistant_test

import (
	"errors"
	"testing"
	"time"

	"mocksmith/internal/mocksmith/assistant"
	"mocksmith/internal/mocksmith/domain"
)

func TestNormalize_StripsFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"tagged fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  {\"a\":1}  \n", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := assistant.Normalize(tc.in)
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
			// Idempotence: a second pass is a no-op.
			if again := assistant.Normalize(got); again != got {
				t.Errorf("Normalize not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestParseMapping_Valid(t *testing.T) {
	text := "```json\n" + `{
		"name": "get user",
		"method": "GET",
		"path": "/api/users/42",
		"enabled": true,
		"headerMatchers": {"Authorization": {"matchType": "exists", "pattern": ""}},
		"responseStatus": 200,
		"responseBody": "{\"id\": 42}"
	}` + "\n```"

	m, err := assistant.ParseMapping(text)
	if err != nil {
		t.Fatalf("ParseMapping: %v", err)
	}
	if m.Method != "GET" || m.Path != "/api/users/42" || m.ResponseStatus != 200 {
		t.Errorf("unexpected mapping: %+v", m)
	}
	matcher, ok := m.HeaderMatchers["Authorization"]
	if !ok || matcher.MatchType != domain.MatchExists || matcher.Pattern != "" {
		t.Errorf("header matcher not preserved: %+v", m.HeaderMatchers)
	}
	if m.Priority != domain.DefaultPriority {
		t.Errorf("default priority not applied: %d", m.Priority)
	}
}

func TestParseMapping_MissingRequiredField(t *testing.T) {
	_, err := assistant.ParseMapping(`{"method": "GET", "path": "/x"}`)
	if !errors.Is(err, assistant.ErrParseFailure) {
		t.Fatalf("missing responseStatus should be ErrParseFailure, got %v", err)
	}
}

func TestParseMapping_RejectsCollapsedMatcher(t *testing.T) {
	// "required" as a bare string instead of a matcher object must fail
	// schema validation, not silently decode.
	text := `{"method": "GET", "path": "/x", "responseStatus": 200,
		"headerMatchers": {"Authorization": "required"}}`
	_, err := assistant.ParseMapping(text)
	if !errors.Is(err, assistant.ErrParseFailure) {
		t.Fatalf("collapsed matcher should be ErrParseFailure, got %v", err)
	}
}

func TestParseMapping_Garbage(t *testing.T) {
	_, err := assistant.ParseMapping("sure, here is your mapping!")
	if !errors.Is(err, assistant.ErrParseFailure) {
		t.Fatalf("expected ErrParseFailure, got %v", err)
	}
}

func TestParseMappingList(t *testing.T) {
	text := `{"mappings": [
		{"method": "GET", "path": "/a", "responseStatus": 200},
		{"method": "POST", "path": "/b", "responseStatus": 201}
	]}`
	got, err := assistant.ParseMappingList(text)
	if err != nil {
		t.Fatalf("ParseMappingList: %v", err)
	}
	if len(got) != 2 || got[1].Method != "POST" {
		t.Errorf("unexpected result: %+v", got)
	}

	if _, err := assistant.ParseMappingList(`{"mappings": []}`); !errors.Is(err, assistant.ErrParseFailure) {
		t.Errorf("empty list should be ErrParseFailure, got %v", err)
	}
}

func TestReimposeIdentity(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	original := &domain.Mapping{ID: "orig", Workspace: "default", CreatedAt: created}
	generated := &domain.Mapping{ID: "fabricated", Workspace: "elsewhere", CreatedAt: time.Now()}

	assistant.ReimposeIdentity(generated, original)

	if generated.ID != "orig" || generated.Workspace != "default" {
		t.Errorf("identity not re-imposed: %+v", generated)
	}
	if !generated.CreatedAt.Equal(created) {
		t.Errorf("creation time not restored: %v", generated.CreatedAt)
	}
	if generated.UpdatedAt.IsZero() {
		t.Errorf("modification time not stamped")
	}
}

func TestParseTaskLabel(t *testing.T) {
	cases := []struct {
		in   string
		want assistant.TaskType
	}{
		{"CREATE_MAPPING", assistant.TaskCreateMapping},
		{"create_mapping", assistant.TaskCreateMapping},
		{"**LIST_MAPPINGS**", assistant.TaskListMappings},
		{"```\nEXPLAIN_MAPPING\n```", assistant.TaskExplainMapping},
		{"DELETE_MAPPING.", assistant.TaskDeleteMapping},
		{"BULK_UPDATE_MAPPINGS\nbecause you asked to change all of them", assistant.TaskBulkUpdateMappings},
		// Unrecognized labels silently map to the default kind.
		{"SOMETHING_ELSE", assistant.DefaultTask},
		{"", assistant.DefaultTask},
	}
	for _, tc := range cases {
		if got := assistant.ParseTaskLabel(tc.in); got != tc.want {
			t.Errorf("ParseTaskLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
