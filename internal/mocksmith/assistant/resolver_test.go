package assistant_test

import (
	"testing"

	"mocksmith/internal/mocksmith/assistant"
	"mocksmith/internal/mocksmith/domain"
)

func resolverFixtures() []*domain.Mapping {
	return []*domain.Mapping{
		{ID: "id-users", Name: "user list", Path: "/api/users", Method: "GET"},
		{ID: "id-orders", Name: "order detail", Path: "/api/orders", Method: "GET"},
	}
}

func TestResolve_PathBeatsName(t *testing.T) {
	entities := []*domain.Mapping{
		{ID: "1", Name: "/api/users", Path: "/api/orders"},
		{ID: "2", Name: "other", Path: "/api/users"},
	}
	// Both the first entity's name and the second entity's path occur in the
	// prompt; the path strategy runs first over all candidates.
	got := assistant.Resolve("change /api/users", entities)
	if got == nil || got.ID != "2" {
		t.Fatalf("path strategy should win, got %+v", got)
	}
}

func TestResolve_NameMatch(t *testing.T) {
	got := assistant.Resolve("update the Order Detail mapping", resolverFixtures())
	if got == nil || got.ID != "id-orders" {
		t.Fatalf("expected name match on id-orders, got %+v", got)
	}
}

func TestResolve_IDMatch(t *testing.T) {
	got := assistant.Resolve("delete id-users now", resolverFixtures())
	if got == nil || got.ID != "id-users" {
		t.Fatalf("expected id match, got %+v", got)
	}
}

func TestResolve_SingleEntityFallback(t *testing.T) {
	only := []*domain.Mapping{{ID: "solo", Name: "x", Path: "/x"}}
	got := assistant.Resolve("make it slower", only)
	if got == nil || got.ID != "solo" {
		t.Fatalf("single-entity fallback should apply, got %+v", got)
	}
}

func TestResolve_NoMatchIsNil(t *testing.T) {
	if got := assistant.Resolve("something unrelated", resolverFixtures()); got != nil {
		t.Fatalf("expected nil for unknown target, got %+v", got)
	}
}

func TestResolveFromHistory_MostRecentFirst(t *testing.T) {
	turns := []assistant.Turn{
		{Role: "user", Content: "tell me about /api/users"},
		{Role: "assistant", Content: "it returns a list"},
		{Role: "user", Content: "and /api/orders?"},
	}
	got := assistant.ResolveFromHistory(turns, resolverFixtures())
	if got == nil || got.ID != "id-orders" {
		t.Fatalf("most recent turn should win, got %+v", got)
	}
}

func TestResolveFromHistory_NoSingleEntityFallback(t *testing.T) {
	only := []*domain.Mapping{{ID: "solo", Name: "x", Path: "/x"}}
	turns := []assistant.Turn{{Role: "user", Content: "nothing relevant"}}
	if got := assistant.ResolveFromHistory(turns, only); got != nil {
		t.Fatalf("history resolution must not use the single-entity fallback, got %+v", got)
	}
}
