package loop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// fakeLLM writes a tiny shell script that prints output (a directive line,
// a blank line, then an answer) and returns the command string to invoke it.
func fakeLLM(t *testing.T, output string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "llm.sh")
	script := "#!/bin/sh\ncat <<'MEMCTL_LOOP_TEST_EOF'\n" + output + "\nMEMCTL_LOOP_TEST_EOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return "sh " + path
}

func TestRunLoopStopsImmediately(t *testing.T) {
	s := newTestStore(t)
	cmd := fakeLLM(t, `{"need_more": false, "query": null, "stop": true}

Done.`)

	res, err := RunLoop(context.Background(), s, "initial context", "what is the deploy process?", cmd, Options{Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", res.Iterations)
	}
	if !res.Converged {
		t.Error("expected converged=true")
	}
	if res.StopReason != "llm_stop" {
		t.Errorf("stop reason = %q", res.StopReason)
	}
	if res.Answer != "Done." {
		t.Errorf("answer = %q", res.Answer)
	}
}

// fakeLLMCounting writes a shell script that outputs a different query on
// each invocation (tracked via a counter file), so repeated-query cycle
// detection doesn't mask the behavior under test.
func fakeLLMCounting(t *testing.T, queries []string) string {
	t.Helper()
	dir := t.TempDir()
	counter := filepath.Join(dir, "n")
	if err := os.WriteFile(counter, []byte("0"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "llm.sh")
	var script string
	script += "#!/bin/sh\n"
	script += "n=$(cat " + counter + ")\n"
	script += "echo $((n+1)) > " + counter + "\n"
	for i, q := range queries {
		cond := "if [ \"$n\" = \"" + itoa(i) + "\" ]; then\n"
		script += cond
		script += "printf '{\"need_more\": true, \"query\": \"" + q + "\", \"stop\": false}\\n\\nStill looking.'\n"
		script += "exit 0\nfi\n"
	}
	script += "printf '{\"need_more\": true, \"query\": \"fallback\", \"stop\": false}\\n\\nStill looking.'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return "sh " + path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestRunLoopMaxCallsBound(t *testing.T) {
	s := newTestStore(t)
	writeTestItem(t, s, "Redis config", "redis runs on port 6379", true)

	cmd := fakeLLMCounting(t, []string{"redis port", "cache configuration entirely different topic"})

	res, err := RunLoop(context.Background(), s, "", "where does redis run?", cmd, Options{
		MaxCalls: 2, Quiet: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 2 {
		t.Errorf("expected loop to stop at MaxCalls=2, got %d iterations", res.Iterations)
	}
	if res.StopReason != "max_calls" {
		t.Errorf("stop reason = %q", res.StopReason)
	}
	if res.Converged {
		t.Error("expected converged=false when stopped by max_calls")
	}
}

func TestRunLoopStopsOnNoNewItems(t *testing.T) {
	s := newTestStore(t)
	cmd := fakeLLM(t, `{"need_more": true, "query": "nonexistent topic xyz", "stop": false}

Looking.`)

	res, err := RunLoop(context.Background(), s, "", "q", cmd, Options{
		MaxCalls: 5, StopOnNoNew: true, Quiet: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.StopReason != "no_new_items" {
		t.Errorf("stop reason = %q", res.StopReason)
	}
	if res.Iterations != 1 {
		t.Errorf("expected to stop on first iteration with no recall hits, got %d", res.Iterations)
	}
}

func TestRunLoopFixedPoint(t *testing.T) {
	s := newTestStore(t)
	writeTestItem(t, s, "Note", "some recallable content", true)

	cmd := fakeLLM(t, `{"need_more": true, "query": "some recallable content", "stop": false}

The same answer every time.`)

	res, err := RunLoop(context.Background(), s, "", "q", cmd, Options{
		MaxCalls: 5, StableSteps: 1, Threshold: 0.5, Quiet: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.StopReason != "fixed_point" {
		t.Errorf("stop reason = %q, traces = %+v", res.StopReason, res.Traces)
	}
	if !res.Converged {
		t.Error("expected converged=true for fixed_point")
	}
}
