package main

import (
	"testing"
	"time"

	"github.com/memctl/memctl/internal/memtypes"
)

func TestSplitTags(t *testing.T) {
	got := splitTags(" a, b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitTags() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitTags()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTagsEmpty(t *testing.T) {
	if got := splitTags(""); got != nil {
		t.Errorf("splitTags(\"\") = %v, want nil", got)
	}
}

func TestHasAllTagsCLI(t *testing.T) {
	it := &memtypes.Item{Tags: []string{"Project", "Urgent"}}
	if !hasAllTagsCLI(it, []string{"project"}) {
		t.Error("expected a case-insensitive tag match")
	}
	if hasAllTagsCLI(it, []string{"project", "missing"}) {
		t.Error("expected false when any requested tag is absent")
	}
}

func TestResolveQuarantineExpiryCLI(t *testing.T) {
	got := resolveQuarantineExpiryCLI("+48h")
	if _, err := time.Parse(time.RFC3339, got); err != nil {
		t.Errorf("expected a valid RFC3339 timestamp, got %q: %v", got, err)
	}
	if unchanged := resolveQuarantineExpiryCLI("not-relative"); unchanged != "not-relative" {
		t.Errorf("expected passthrough for non-matching input, got %q", unchanged)
	}
}
