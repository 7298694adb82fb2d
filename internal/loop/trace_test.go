package loop

import (
	"path/filepath"
	"testing"
)

func TestEmitTraceAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")

	sim1 := 0.5
	sim2 := 0.95
	traces := []Trace{
		{Iter: 1, Query: "redis config", NewItems: 3, Action: "continue"},
		{Iter: 2, Query: "redis config retry", NewItems: 0, Sim: &sim1, Action: "continue"},
		{Iter: 3, NewItems: 0, Sim: &sim2, Action: "fixed_point"},
	}
	for _, tr := range traces {
		if err := EmitTrace(tr, path, true); err != nil {
			t.Fatal(err)
		}
	}

	replayed, err := ReplayTrace(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(replayed) != len(traces) {
		t.Fatalf("expected %d traces, got %d", len(traces), len(replayed))
	}
	if replayed[2].Action != "fixed_point" {
		t.Errorf("action = %q", replayed[2].Action)
	}
	if replayed[1].Sim == nil || *replayed[1].Sim != sim1 {
		t.Errorf("sim = %v", replayed[1].Sim)
	}
	if replayed[0].Sim != nil {
		t.Errorf("expected nil sim on first iteration, got %v", replayed[0].Sim)
	}
}
