package app

import (
	"sync"
	"time"

	"mocksmith/internal/mocksmith/assistant"
)

const (
	// DefaultSessionTTL is how long a conversation stays warm after its
	// last message. Past it, the next message starts a fresh session.
	DefaultSessionTTL = 15 * time.Minute
	// DefaultSessionMaxTurns caps the history kept per conversation;
	// oldest turns are dropped first.
	DefaultSessionMaxTurns = 20
)

// SessionTracker keeps per-room, per-sender conversation history so
// follow-up messages carry context into the pipeline. Safe for concurrent
// use.
type SessionTracker struct {
	mu       sync.Mutex
	ttl      time.Duration
	maxTurns int
	sessions map[sessionKey]*session
	now      func() time.Time
}

type sessionKey struct {
	roomID string
	sender string
}

type session struct {
	turns    []assistant.Turn
	lastSeen time.Time
}

// NewSessionTracker builds a tracker. Zero values select the defaults.
func NewSessionTracker(ttl time.Duration, maxTurns int) *SessionTracker {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxTurns <= 0 {
		maxTurns = DefaultSessionMaxTurns
	}
	return &SessionTracker{
		ttl:      ttl,
		maxTurns: maxTurns,
		sessions: make(map[sessionKey]*session),
		now:      time.Now,
	}
}

// History returns a copy of the live history for the conversation, or nil
// when the session is cold or expired.
func (t *SessionTracker) History(roomID, sender string) []assistant.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{roomID: roomID, sender: sender}
	s, ok := t.sessions[key]
	if !ok {
		return nil
	}
	if t.now().Sub(s.lastSeen) > t.ttl {
		delete(t.sessions, key)
		return nil
	}
	out := make([]assistant.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Append records a user prompt and the assistant's reply in the
// conversation, refreshing its TTL.
func (t *SessionTracker) Append(roomID, sender, prompt, reply string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey{roomID: roomID, sender: sender}
	s, ok := t.sessions[key]
	if !ok || t.now().Sub(s.lastSeen) > t.ttl {
		s = &session{}
		t.sessions[key] = s
	}

	s.turns = append(s.turns,
		assistant.Turn{Role: "user", Content: prompt},
		assistant.Turn{Role: "assistant", Content: reply},
	)
	if excess := len(s.turns) - t.maxTurns; excess > 0 {
		s.turns = append([]assistant.Turn(nil), s.turns[excess:]...)
	}
	s.lastSeen = t.now()
}

// Reset drops the conversation, if any.
func (t *SessionTracker) Reset(roomID, sender string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionKey{roomID: roomID, sender: sender})
}

// Prune removes expired sessions. Called periodically by the app loop.
func (t *SessionTracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	cutoff := t.now().Add(-t.ttl)
	for key, s := range t.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(t.sessions, key)
			removed++
		}
	}
	return removed
}
