package governance

import (
	"testing"
)

func TestClassifyToolLockedSets(t *testing.T) {
	cases := map[string]string{
		"memory_write":       "write",
		"memory_propose":     "write",
		"memory_import":      "write",
		"memory_consolidate": "write",
		"memory_sync":        "write",
		"memory_recall":      "read",
		"memory_search":      "read",
		"memory_read":        "read",
		"memory_export":      "read",
		"memory_inspect":     "read",
		"memory_ask":         "read",
		"memory_loop":        "read",
		"memory_stats":       "exempt",
		"memory_mount":       "exempt",
	}
	for tool, want := range cases {
		if got := ClassifyTool(tool); got != want {
			t.Errorf("ClassifyTool(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestClassifyToolUnknownDefaultsRead(t *testing.T) {
	if got := ClassifyTool("some_future_tool"); got != "read" {
		t.Errorf("expected unknown tool to classify as read, got %q", got)
	}
}

func TestCheckWriteExhaustsBucketThenRecovers(t *testing.T) {
	rl := NewRateLimiter(60, 120, 1.0, 5) // 1 write/sec, no burst
	for i := 0; i < 60; i++ {
		if err := rl.CheckWrite("s1"); err != nil {
			t.Fatalf("write %d should have succeeded: %v", i, err)
		}
	}
	if err := rl.CheckWrite("s1"); err == nil {
		t.Fatal("expected the 61st write in the same instant to be rate limited")
	}
}

func TestCheckWriteNConsumesMultipleTokens(t *testing.T) {
	rl := NewRateLimiter(60, 120, 2.0, 5) // burst capacity 120
	if err := rl.CheckWriteN("s1", 100); err != nil {
		t.Fatalf("expected burst capacity to cover 100 tokens: %v", err)
	}
	if err := rl.CheckWriteN("s1", 30); err == nil {
		t.Error("expected remaining capacity to be insufficient for 30 more")
	}
}

func TestCheckReadIndependentOfWrite(t *testing.T) {
	rl := NewRateLimiter(1, 120, 1.0, 5)
	if err := rl.CheckWrite("s1"); err != nil {
		t.Fatal(err)
	}
	if err := rl.CheckRead("s1"); err != nil {
		t.Errorf("expected read bucket to be unaffected by write consumption: %v", err)
	}
}

func TestCheckProposalsPerTurnCap(t *testing.T) {
	rl := NewRateLimiter(60, 120, 2.0, 3)
	if err := rl.CheckProposals("s1", 2); err != nil {
		t.Fatal(err)
	}
	if err := rl.CheckProposals("s1", 2); err == nil {
		t.Error("expected 2+2 > cap of 3 to be rejected")
	}
	rl.ResetTurn("s1")
	if err := rl.CheckProposals("s1", 3); err != nil {
		t.Errorf("expected reset turn to allow a fresh batch: %v", err)
	}
}

func TestRateLimitExceededCarriesRetryAfter(t *testing.T) {
	rl := NewRateLimiter(60, 120, 1.0, 5)
	for i := 0; i < 60; i++ {
		_ = rl.CheckWrite("s1")
	}
	err := rl.CheckWrite("s1")
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	rle, ok := err.(*RateLimitExceeded)
	if !ok {
		t.Fatalf("expected *RateLimitExceeded, got %T", err)
	}
	if rle.RetryAfter <= 0 {
		t.Error("expected a positive retry-after duration")
	}
}
