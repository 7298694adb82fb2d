package governance

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateDBPathRejectsTraversal(t *testing.T) {
	g := NewGuard(t.TempDir(), 65536, 524288, 500, 0)
	if _, err := g.ValidateDBPath("../escape.db"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestValidateDBPathRejectsEscapeViaAbsolute(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, 65536, 524288, 500, 0)
	if _, err := g.ValidateDBPath("/etc/passwd"); err == nil {
		t.Fatal("expected path outside root to be rejected")
	}
}

func TestValidateDBPathAcceptsRelativeInsideRoot(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, 65536, 524288, 500, 0)
	resolved, err := g.ValidateDBPath("sub/memory.db")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(filepath.Dir(resolved)) != root {
		t.Errorf("expected resolved path under root, got %s (root %s)", resolved, root)
	}
}

func TestValidateDBPathNoRootAllowsAnything(t *testing.T) {
	g := NewGuard("", 65536, 524288, 500, 0)
	if _, err := g.ValidateDBPath("/tmp/anywhere.db"); err != nil {
		t.Errorf("expected no containment check without a root: %v", err)
	}
}

func TestRelativeDBPath(t *testing.T) {
	root := t.TempDir()
	g := NewGuard(root, 65536, 524288, 500, 0)
	resolved := filepath.Join(root, "memory.db")
	if got := g.RelativeDBPath(resolved); got != "memory.db" {
		t.Errorf("expected root-relative path, got %q", got)
	}
}

func TestCheckWriteSize(t *testing.T) {
	g := NewGuard("", 10, 524288, 500, 0)
	if err := g.CheckWriteSize("short"); err != nil {
		t.Errorf("expected short write to pass: %v", err)
	}
	if err := g.CheckWriteSize("this content is far too long"); err == nil {
		t.Error("expected oversized write to be rejected")
	}
}

func TestCheckWriteBudgetAccumulatesThenRejects(t *testing.T) {
	g := NewGuard("", 65536, 100, 500, 0)
	if err := g.CheckWriteBudget("s1", 60); err != nil {
		t.Fatal(err)
	}
	if err := g.CheckWriteBudget("s1", 60); err == nil {
		t.Error("expected cumulative budget to be exceeded")
	}
	if err := g.CheckWriteBudget("s2", 60); err != nil {
		t.Errorf("expected independent per-session budget, got %v", err)
	}
}

func TestCheckImportBatch(t *testing.T) {
	g := NewGuard("", 65536, 524288, 5, 0)
	if err := g.CheckImportBatch(5); err != nil {
		t.Errorf("expected batch at the limit to pass: %v", err)
	}
	if err := g.CheckImportBatch(6); err == nil {
		t.Error("expected over-limit batch to be rejected")
	}
}

func TestCheckDBSizeNeverErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")
	if err := os.WriteFile(path, make([]byte, 1024), 0o644); err != nil {
		t.Fatal(err)
	}
	g := NewGuard(dir, 65536, 524288, 500, 0) // 0 disables the check entirely
	g.CheckDBSize(path)

	g2 := NewGuard(dir, 65536, 524288, 500, 1)
	g2.CheckDBSize(path) // under the 1MB limit, no-op
	g2.CheckDBSize(filepath.Join(dir, "missing.db")) // stat failure, swallowed
}
