package app

import (
	"testing"
	"time"
)

func trackerAt(ttl time.Duration, maxTurns int, clock *time.Time) *SessionTracker {
	t := NewSessionTracker(ttl, maxTurns)
	t.now = func() time.Time { return *clock }
	return t
}

func TestSessionTracker_HistoryRoundTrip(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := trackerAt(time.Minute, 10, &clock)

	if got := tracker.History("!room", "@alice"); got != nil {
		t.Fatalf("cold session should have nil history, got %v", got)
	}

	tracker.Append("!room", "@alice", "mock /api/users", "done")
	history := tracker.History("!room", "@alice")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "mock /api/users" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "done" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

func TestSessionTracker_ConversationsAreIsolated(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := trackerAt(time.Minute, 10, &clock)

	tracker.Append("!room", "@alice", "a", "b")
	if got := tracker.History("!room", "@bob"); got != nil {
		t.Errorf("sender isolation broken: %v", got)
	}
	if got := tracker.History("!other", "@alice"); got != nil {
		t.Errorf("room isolation broken: %v", got)
	}
}

func TestSessionTracker_TTLExpiry(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := trackerAt(time.Minute, 10, &clock)

	tracker.Append("!room", "@alice", "first", "ok")

	clock = clock.Add(30 * time.Second)
	if got := tracker.History("!room", "@alice"); len(got) != 2 {
		t.Fatalf("session expired too early: %v", got)
	}

	clock = clock.Add(2 * time.Minute)
	if got := tracker.History("!room", "@alice"); got != nil {
		t.Fatalf("session should have expired: %v", got)
	}

	// A fresh append after expiry starts a new conversation.
	tracker.Append("!room", "@alice", "second", "ok")
	history := tracker.History("!room", "@alice")
	if len(history) != 2 || history[0].Content != "second" {
		t.Errorf("stale turns leaked into the new session: %v", history)
	}
}

func TestSessionTracker_MaxTurnsDropsOldest(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := trackerAt(time.Minute, 4, &clock)

	tracker.Append("!room", "@alice", "p1", "r1")
	tracker.Append("!room", "@alice", "p2", "r2")
	tracker.Append("!room", "@alice", "p3", "r3")

	history := tracker.History("!room", "@alice")
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	if history[0].Content != "p2" || history[3].Content != "r3" {
		t.Errorf("oldest turns not dropped first: %v", history)
	}
}

func TestSessionTracker_Reset(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := trackerAt(time.Minute, 10, &clock)

	tracker.Append("!room", "@alice", "a", "b")
	tracker.Reset("!room", "@alice")
	if got := tracker.History("!room", "@alice"); got != nil {
		t.Errorf("reset did not clear the session: %v", got)
	}
}

func TestSessionTracker_Prune(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker := trackerAt(time.Minute, 10, &clock)

	tracker.Append("!room", "@alice", "a", "b")
	clock = clock.Add(30 * time.Second)
	tracker.Append("!room", "@bob", "c", "d")

	clock = clock.Add(45 * time.Second)
	if removed := tracker.Prune(); removed != 1 {
		t.Errorf("Prune removed %d sessions, want 1", removed)
	}
	if got := tracker.History("!room", "@bob"); len(got) != 2 {
		t.Errorf("live session pruned: %v", got)
	}
}
