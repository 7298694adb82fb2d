package governance

import (
	"sync"
	"time"
)

// DefaultSessionID names the singleton session used when no MCP
// connection ID is available.
const DefaultSessionID = "default"

// SessionState is in-memory per-session bookkeeping: turn count and
// writes issued in the current turn. Never persisted — it resets on
// server restart.
type SessionState struct {
	SessionID      string
	CreatedAt      time.Time
	TurnCount      int
	WritesThisTurn int
}

// IncrementTurn advances the turn counter and resets per-turn state,
// returning the new turn count.
func (s *SessionState) IncrementTurn() int {
	s.TurnCount++
	s.WritesThisTurn = 0
	return s.TurnCount
}

// RecordWrite records one write in the current turn.
func (s *SessionState) RecordWrite() {
	s.WritesThisTurn++
}

// SessionTracker tracks SessionState by session ID, guarded by a mutex
// since MCP tool calls may arrive concurrently across goroutines.
type SessionTracker struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
}

// NewSessionTracker builds an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string]*SessionState)}
}

// GetOrCreate returns the existing session state for id, creating one
// if absent.
func (t *SessionTracker) GetOrCreate(id string) *SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		return s
	}
	s := &SessionState{SessionID: id, CreatedAt: time.Now().UTC()}
	t.sessions[id] = s
	return s
}

// ResolveSessionID returns mcpContextID if non-empty, else
// DefaultSessionID.
func ResolveSessionID(mcpContextID string) string {
	if mcpContextID != "" {
		return mcpContextID
	}
	return DefaultSessionID
}

// Reset removes a session's state entirely.
func (t *SessionTracker) Reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}
