package inspect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/memctl/memctl/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestComputeEmptyCorpus(t *testing.T) {
	s := openTestStore(t)
	stats, err := Compute(s, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if stats.TotalFiles != 0 {
		t.Errorf("TotalFiles = %d, want 0", stats.TotalFiles)
	}
}

func TestFormatBlockNoFiles(t *testing.T) {
	got := FormatBlock(&Stats{}, "", 500)
	if got != "## Structure (Injected)\nNo files found.\n" {
		t.Errorf("FormatBlock() = %q", got)
	}
}

func TestFormatBlockTruncatesToBudget(t *testing.T) {
	stats := &Stats{
		TotalFiles:  3,
		TotalChunks: 10,
		PerFolder:   map[string]*FolderStat{"docs": {FileCount: 3, ChunkCount: 10, Size: 1000}},
	}
	got := FormatBlock(stats, "mylabel", 5) // ~20 chars budget, forces truncation
	if len(got) > 5*4+40 {
		t.Errorf("expected truncated output, got %d chars: %q", len(got), got)
	}
}

func TestInspectPathOrchestratesMountAndSync(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# Docs\n\nSome content here."), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := InspectPath(s, dir, SyncAuto, MountPersist, 1000, nil, nil)
	if err != nil {
		t.Fatalf("InspectPath: %v", err)
	}
	if !res.WasMounted {
		t.Error("expected the path to be auto-mounted")
	}
	if !res.WasSynced {
		t.Error("expected an initial sync since the mount was never synced before")
	}
	if res.Stats.TotalFiles != 1 {
		t.Errorf("TotalFiles = %d, want 1", res.Stats.TotalFiles)
	}
}

func TestInspectPathEphemeralRemovesMount(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := InspectPath(s, dir, SyncAuto, MountEphemeral, 1000, nil, nil)
	if err != nil {
		t.Fatalf("InspectPath: %v", err)
	}
	mount, err := s.ReadMountByPath(dir)
	if err != nil {
		t.Fatalf("ReadMountByPath: %v", err)
	}
	if mount != nil {
		t.Errorf("expected the ephemeral mount to be removed, got %+v", mount)
	}
	if res.MountID == "" {
		t.Error("expected a mount id to have been recorded even though ephemeral")
	}
}

func TestInspectPathRejectsMissingDir(t *testing.T) {
	s := openTestStore(t)
	if _, err := InspectPath(s, filepath.Join(t.TempDir(), "nope"), SyncAuto, MountPersist, 1000, nil, nil); err == nil {
		t.Error("expected an error for a nonexistent path")
	}
}
