package main

import (
	"path/filepath"
	"testing"
)

// resetFlags restores the package-level flags to their zero value so tests
// run in isolation regardless of execution order.
func resetFlags(t *testing.T) {
	t.Helper()
	saved := flags
	flags = globalFlags{}
	t.Cleanup(func() { flags = saved })
}

func isolatedEnv(t *testing.T) string {
	t.Helper()
	resetFlags(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MEMCTL_CONFIG", "")
	t.Setenv("MEMCTL_DB_PATH", filepath.Join(dir, "test.db"))
	return dir
}

func TestInitCmdWritesConfigAndOpensStore(t *testing.T) {
	isolatedEnv(t)
	cmd := initCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("initCmd RunE: %v", err)
	}
}

func TestStatsCmdOnFreshStore(t *testing.T) {
	isolatedEnv(t)
	cmd := statsCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("statsCmd RunE: %v", err)
	}
}

func TestStatusCmdReportsZeroMounts(t *testing.T) {
	isolatedEnv(t)
	cmd := statusCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("statusCmd RunE: %v", err)
	}
}

func TestResetCmdRefusesWithoutConfirmation(t *testing.T) {
	isolatedEnv(t)
	cmd := resetCmd()
	err := cmd.RunE(cmd, nil)
	if err == nil {
		t.Fatal("expected reset to refuse without --yes or --dry-run")
	}
	if err != errOperational {
		t.Errorf("expected errOperational, got %v", err)
	}
}

func TestResetCmdDryRunSucceeds(t *testing.T) {
	isolatedEnv(t)
	cmd := resetCmd()
	if err := cmd.Flags().Set("dry-run", "true"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("resetCmd RunE with --dry-run: %v", err)
	}
}
