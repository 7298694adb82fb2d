package sync

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

func TestChunkParagraphsRespectsBudget(t *testing.T) {
	text := "para one\n\npara two\n\npara three"
	chunks := ChunkParagraphs(text, 2) // tiny budget forces multiple chunks
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks with a tight budget, got %d", len(chunks))
	}
}

func TestChunkParagraphsEmptyText(t *testing.T) {
	if chunks := ChunkParagraphs("   \n\n  ", 100); chunks != nil {
		t.Errorf("expected nil chunks for blank text, got %v", chunks)
	}
}

func TestInferTagsFromPath(t *testing.T) {
	tags := InferTagsFromPath("docs/architecture/notes.md")
	if len(tags) == 0 {
		t.Error("expected at least one inferred tag")
	}
}

func TestScanMountSkipsIgnoredFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "keep.md"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.log"), []byte("noise"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := ScanMount(dir, []string{"*.log"})
	if err != nil {
		t.Fatalf("ScanMount: %v", err)
	}
	if len(res.Files) != 1 || filepath.Base(res.Files[0].AbsPath) != "keep.md" {
		t.Fatalf("expected only keep.md, got %+v", res.Files)
	}
}

func TestRegisterMountRejectsMissingPath(t *testing.T) {
	s := openTestStore(t)
	if _, err := RegisterMount(s, filepath.Join(t.TempDir(), "does-not-exist"), "", nil, ""); err == nil {
		t.Error("expected an error for a nonexistent mount path")
	}
}

func TestRegisterMountIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	id1, err := RegisterMount(s, dir, "", nil, "")
	if err != nil {
		t.Fatalf("RegisterMount: %v", err)
	}
	id2, err := RegisterMount(s, dir, "", nil, "")
	if err != nil {
		t.Fatalf("RegisterMount (second): %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected the same mount id on re-registration, got %q vs %q", id1, id2)
	}
}

func TestSyncMountIngestsNewFiles(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.md"), []byte("# Title\n\nSome durable content about the system."), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := SyncMount(s, dir, SyncOptions{Delta: true, Quiet: true})
	if err != nil {
		t.Fatalf("SyncMount: %v", err)
	}
	if res.FilesNew != 1 {
		t.Errorf("FilesNew = %d, want 1", res.FilesNew)
	}
	if res.ChunksCreated == 0 {
		t.Error("expected at least one chunk created")
	}
}

func TestSyncMountSkipsUnchangedFilesOnSecondPass(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "note.md"), []byte("content that does not change"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := SyncMount(s, dir, SyncOptions{Delta: true, Quiet: true}); err != nil {
		t.Fatalf("first SyncMount: %v", err)
	}
	res, err := SyncMount(s, dir, SyncOptions{Delta: true, Quiet: true})
	if err != nil {
		t.Fatalf("second SyncMount: %v", err)
	}
	if res.FilesUnchanged != 1 {
		t.Errorf("FilesUnchanged = %d, want 1", res.FilesUnchanged)
	}
	if res.FilesNew != 0 {
		t.Errorf("FilesNew = %d, want 0 on the second pass", res.FilesNew)
	}
}
