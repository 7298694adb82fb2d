package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMountCmdRegistersPath(t *testing.T) {
	isolatedEnv(t)
	target := t.TempDir()
	cmd := mountCmd()
	if err := cmd.RunE(cmd, []string{target}); err != nil {
		t.Fatalf("mountCmd RunE: %v", err)
	}
}

func TestSyncCmdIngestsFiles(t *testing.T) {
	isolatedEnv(t)
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "note.md"), []byte("# Title\n\nSome durable content."), 0o644); err != nil {
		t.Fatal(err)
	}

	mount := mountCmd()
	if err := mount.RunE(mount, []string{target}); err != nil {
		t.Fatalf("mountCmd RunE: %v", err)
	}
	sync := syncCmd()
	if err := sync.RunE(sync, []string{target}); err != nil {
		t.Fatalf("syncCmd RunE: %v", err)
	}
}

func TestReindexCmdWithNoMounts(t *testing.T) {
	isolatedEnv(t)
	cmd := reindexCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("reindexCmd RunE: %v", err)
	}
}

func TestInspectCmdPrintsStructure(t *testing.T) {
	isolatedEnv(t)
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "readme.md"), []byte("# Docs\n\nContent."), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := inspectCmd()
	if err := cmd.RunE(cmd, []string{target}); err != nil {
		t.Fatalf("inspectCmd RunE: %v", err)
	}
}
