package proposer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/memctl/memctl/internal/config"
)

func testConfig(strategy string) *config.ProposerConfig {
	cfg := config.Default().Proposer
	cfg.Strategy = strategy
	return &cfg
}

func TestParseResponseTextArrayBlock(t *testing.T) {
	p := New(testConfig("delimiter"))
	text := `Some preamble.
<MEMORY_PROPOSALS_JSON>
[{"type": "decision", "title": "Use Postgres", "content": "We chose Postgres for the new service.", "why_store": "architecture decision"}]
</MEMORY_PROPOSALS_JSON>
Trailing text.`

	cleaned, proposals := p.ParseResponseText(text)
	if len(proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(proposals))
	}
	if proposals[0].Title != "Use Postgres" {
		t.Errorf("title = %q", proposals[0].Title)
	}
	if strings.Contains(cleaned, "MEMORY_PROPOSALS_JSON") {
		t.Error("expected delimiter block stripped from cleaned text")
	}
	if !strings.Contains(cleaned, "Some preamble.") || !strings.Contains(cleaned, "Trailing text.") {
		t.Error("expected surrounding text preserved")
	}
}

func TestParseResponseTextObjectBlock(t *testing.T) {
	p := New(testConfig("delimiter"))
	text := `<MEMORY_PROPOSALS_JSON>{"items": [{"type": "fact", "title": "Port", "content": "Redis listens on 6379.", "why_store": "config"}]}</MEMORY_PROPOSALS_JSON>`

	_, proposals := p.ParseResponseText(text)
	if len(proposals) != 1 || proposals[0].Content != "Redis listens on 6379." {
		t.Fatalf("unexpected proposals: %+v", proposals)
	}
}

func TestParseResponseTextMalformedJSONSkipped(t *testing.T) {
	p := New(testConfig("delimiter"))
	text := `<MEMORY_PROPOSALS_JSON>not valid json</MEMORY_PROPOSALS_JSON>`
	_, proposals := p.ParseResponseText(text)
	if len(proposals) != 0 {
		t.Errorf("expected no proposals from malformed block, got %d", len(proposals))
	}
}

func TestParseToolCallsDirectItems(t *testing.T) {
	p := New(testConfig("tool"))
	itemJSON := json.RawMessage(`{"type": "constraint", "title": "Rate limit", "content": "API caps at 100 req/s.", "why_store": "constraint"}`)
	calls := []ToolCall{{Action: "memory.propose", Items: []json.RawMessage{itemJSON}}}

	proposals := p.ParseToolCalls(calls)
	if len(proposals) != 1 || proposals[0].Title != "Rate limit" {
		t.Fatalf("unexpected proposals: %+v", proposals)
	}
}

func TestParseToolCallsOpenAIStyleArguments(t *testing.T) {
	p := New(testConfig("tool"))
	argsStr := `{"items": [{"type": "fact", "title": "Region", "content": "Deployed in us-east-1.", "why_store": "infra"}]}`
	argsJSON, _ := json.Marshal(argsStr)
	calls := []ToolCall{{Name: "memory_propose", Arguments: argsJSON}}

	proposals := p.ParseToolCalls(calls)
	if len(proposals) != 1 || proposals[0].Title != "Region" {
		t.Fatalf("unexpected proposals: %+v", proposals)
	}
}

func TestParseToolCallsIgnoresOtherActions(t *testing.T) {
	p := New(testConfig("tool"))
	calls := []ToolCall{{Action: "search", Items: []json.RawMessage{json.RawMessage(`{}`)}}}
	proposals := p.ParseToolCalls(calls)
	if len(proposals) != 0 {
		t.Errorf("expected no proposals for unrelated tool call, got %d", len(proposals))
	}
}

func TestExtractProposalsBothStrategy(t *testing.T) {
	p := New(testConfig("both"))
	toolCalls := []ToolCall{{Action: "memory.propose", Items: []json.RawMessage{
		json.RawMessage(`{"type": "fact", "title": "A", "content": "from tool call", "why_store": "x"}`),
	}}}
	text := `<MEMORY_PROPOSALS_JSON>[{"type": "fact", "title": "B", "content": "from delimiter", "why_store": "y"}]</MEMORY_PROPOSALS_JSON>`

	cleaned, proposals := p.ExtractProposals(text, toolCalls)
	if len(proposals) != 2 {
		t.Fatalf("expected 2 proposals from both channels, got %d", len(proposals))
	}
	if strings.Contains(cleaned, "MEMORY_PROPOSALS_JSON") {
		t.Error("expected delimiter block stripped")
	}
}

func TestSystemInstruction(t *testing.T) {
	p := New(nil)
	if p.SystemInstruction() == "" {
		t.Error("expected non-empty system instruction from default config")
	}
}
