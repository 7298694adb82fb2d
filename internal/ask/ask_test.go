package ask

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/memctl/memctl/internal/store"
)

func TestAskAnswersUsingFixedLLMCommand(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# Title\n\nThis project does memory management."), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Ask(s, dir, "what does this project do", "echo the project manages memory", Options{
		Log: func(string) {}, // silence progress logging in tests
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "the project manages memory" {
		t.Errorf("Answer = %q, want %q", res.Answer, "the project manages memory")
	}
	if !res.WasMounted {
		t.Error("expected the path to be auto-mounted")
	}
	if !res.Converged {
		t.Error("expected the passive protocol's single reply to converge immediately")
	}
}

func TestAskRejectsInspectCapNotLessThanBudget(t *testing.T) {
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	dir := t.TempDir()
	_, err = Ask(s, dir, "question", "echo answer", Options{
		Budget: 100, InspectCap: 200, Log: func(string) {},
	})
	if err == nil {
		t.Error("expected an error when inspect_cap >= budget")
	}
}
