package main

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func TestConsolidateCmdOnEmptyStore(t *testing.T) {
	isolatedEnv(t)
	cmd := consolidateCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("consolidateCmd RunE: %v", err)
	}
}

func TestAskCmdRequiresLLMFlag(t *testing.T) {
	isolatedEnv(t)
	target := t.TempDir()
	cmd := askCmd()
	err := cmd.RunE(cmd, []string{target, "what", "is", "this"})
	if err != errOperational {
		t.Fatalf("expected errOperational without --llm, got %v", err)
	}
}

func TestAskCmdAnswersWithFakeLLM(t *testing.T) {
	isolatedEnv(t)
	target := t.TempDir()
	if err := os.WriteFile(target+"/readme.md", []byte("# Title\n\nThis project manages memory."), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := askCmd()
	if err := cmd.Flags().Set("llm", "echo fixed answer"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.RunE(cmd, []string{target, "what", "does", "this", "do"}); err != nil {
		t.Fatalf("askCmd RunE: %v", err)
	}
}

func TestLoopCmdRequiresLLMFlag(t *testing.T) {
	isolatedEnv(t)
	cmd := loopCmd()
	err := cmd.RunE(cmd, []string{"a", "query"})
	if err != errOperational {
		t.Fatalf("expected errOperational without --llm, got %v", err)
	}
}

func TestLoopCmdRunsWithFakeLLM(t *testing.T) {
	isolatedEnv(t)
	cmd := loopCmd()
	if err := cmd.Flags().Set("llm", "echo fixed answer"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.RunE(cmd, []string{"a", "query"}); err != nil {
		t.Fatalf("loopCmd RunE: %v", err)
	}
}

// withStdin temporarily replaces os.Stdin with the given content for the
// duration of fn, restoring it afterward.
func withStdin(t *testing.T, content string, fn func()) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdin
	os.Stdin = r
	t.Cleanup(func() { os.Stdin = orig })

	go func() {
		_, _ = io.Copy(w, bytes.NewBufferString(content))
		w.Close()
	}()
	fn()
}

func TestChatCmdScansPastedTurns(t *testing.T) {
	isolatedEnv(t)
	cmd := chatCmd()
	withStdin(t, "nothing noteworthy here\n", func() {
		if err := cmd.RunE(cmd, nil); err != nil {
			t.Fatalf("chatCmd RunE: %v", err)
		}
	})
}
