package governance

import "testing"

func TestResolveSessionIDFallsBackToDefault(t *testing.T) {
	if got := ResolveSessionID(""); got != DefaultSessionID {
		t.Errorf("expected default session id, got %q", got)
	}
	if got := ResolveSessionID("conn-42"); got != "conn-42" {
		t.Errorf("expected passthrough of a real context id, got %q", got)
	}
}

func TestGetOrCreateIsStable(t *testing.T) {
	tr := NewSessionTracker()
	a := tr.GetOrCreate("s1")
	b := tr.GetOrCreate("s1")
	if a != b {
		t.Error("expected the same session state pointer across calls")
	}
}

func TestIncrementTurnResetsWriteCounter(t *testing.T) {
	tr := NewSessionTracker()
	s := tr.GetOrCreate("s1")
	s.RecordWrite()
	s.RecordWrite()
	if s.WritesThisTurn != 2 {
		t.Fatalf("expected 2 writes recorded, got %d", s.WritesThisTurn)
	}
	if n := s.IncrementTurn(); n != 1 {
		t.Errorf("expected turn count 1, got %d", n)
	}
	if s.WritesThisTurn != 0 {
		t.Errorf("expected write counter reset on new turn, got %d", s.WritesThisTurn)
	}
}

func TestReset(t *testing.T) {
	tr := NewSessionTracker()
	first := tr.GetOrCreate("s1")
	first.IncrementTurn()
	tr.Reset("s1")
	second := tr.GetOrCreate("s1")
	if second.TurnCount != 0 {
		t.Errorf("expected fresh state after reset, got turn count %d", second.TurnCount)
	}
}
