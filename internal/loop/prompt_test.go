package loop

import (
	"strings"
	"testing"
)

func TestBuildPromptJSONIncludesProtocol(t *testing.T) {
	p := BuildPrompt("ctx", "what is x?", "", ProtocolJSON)
	if !strings.Contains(p, ProtocolSystemPrompt) {
		t.Error("expected protocol system prompt to be included")
	}
	if !strings.Contains(p, "## Context\nctx") {
		t.Error("expected context section")
	}
	if !strings.Contains(p, "## Question\nwhat is x?") {
		t.Error("expected question section")
	}
}

func TestBuildPromptPassiveOmitsProtocol(t *testing.T) {
	p := BuildPrompt("ctx", "q", "", ProtocolPassive)
	if strings.Contains(p, ProtocolSystemPrompt) {
		t.Error("passive protocol should not include JSON protocol instructions")
	}
}

func TestBuildPromptIncludesSystemPrompt(t *testing.T) {
	p := BuildPrompt("ctx", "q", "be terse", ProtocolJSON)
	if !strings.Contains(p, "be terse") {
		t.Error("expected caller system prompt to be included")
	}
}

func TestMergeContextDedup(t *testing.T) {
	seen := map[string]bool{"a": true}
	items := []ContextItem{
		{ID: "a", Title: "A", Content: "already seen"},
		{ID: "b", Title: "B", Content: "fresh item"},
	}
	merged, added := MergeContext("existing", items, seen, 0)
	if added != 1 {
		t.Fatalf("expected 1 new item, got %d", added)
	}
	if strings.Contains(merged, "already seen") {
		t.Error("should not re-add item already in seenIDs")
	}
	if !strings.Contains(merged, "fresh item") {
		t.Error("expected fresh item in merged context")
	}
	if !seen["b"] {
		t.Error("expected seenIDs to be updated with new item id")
	}
}

func TestMergeContextBudgetTrim(t *testing.T) {
	long := strings.Repeat("word ", 100)
	items := []ContextItem{{ID: "x", Title: "X", Content: long}}
	merged, added := MergeContext("", items, map[string]bool{}, 50)
	if added != 1 {
		t.Fatalf("expected 1 item added, got %d", added)
	}
	if len(merged) > 50 {
		t.Errorf("expected merged context trimmed to budget, got length %d", len(merged))
	}
	if strings.HasSuffix(merged, " ") {
		t.Error("trim should not leave a trailing partial word boundary space")
	}
}

func TestMergeContextNoNewItems(t *testing.T) {
	seen := map[string]bool{"a": true}
	merged, added := MergeContext("existing", []ContextItem{{ID: "a"}}, seen, 0)
	if added != 0 {
		t.Errorf("expected 0 added, got %d", added)
	}
	if merged != "existing" {
		t.Errorf("expected unchanged context, got %q", merged)
	}
}
