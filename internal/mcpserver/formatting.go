// Package mcpserver exposes memctl's store, policy engine, and
// consolidation pipeline as MCP tools over the go-sdk. It is a thin
// wiring layer: argument parsing, policy evaluation, and response
// formatting only — every decision about what gets stored lives in
// internal/policy and internal/store.
package mcpserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/memctl/memctl/internal/memtypes"
)

// FormatVersion is the injection block's stable wire contract. A
// breaking change to format_injection_block's output must bump this;
// additive fields do not.
const FormatVersion = 1

// formatItem is the flattened view of memtypes.Item that the
// injection/search formatters render from.
type formatItem struct {
	ID         string
	Tier       memtypes.MemoryTier
	Validation memtypes.ValidationState
	Type       memtypes.MemoryType
	Title      string
	Content    string
	Provenance memtypes.Provenance
	Tags       []string
	Confidence float64
	Entities   []string
	Injectable bool
}

func toFormatItem(it *memtypes.Item) formatItem {
	return formatItem{
		ID: it.ID, Tier: it.Tier, Validation: it.Validation, Type: it.Type,
		Title: it.Title, Content: it.Content, Provenance: it.Provenance,
		Tags: it.Tags, Confidence: it.Confidence, Entities: it.Entities,
		Injectable: it.Injectable,
	}
}

// FormatInjectionBlock renders items (best match first) into the
// canonical injection block, truncating once the estimated token cost
// (chars/4) would exceed budgetTokens. Returns "" for an empty item
// list.
func FormatInjectionBlock(items []*memtypes.Item, budgetTokens int, totalMatched int, injectionType string) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Memory (Injected)\n")
	fmt.Fprintf(&b, "format_version: %d\n", FormatVersion)
	fmt.Fprintf(&b, "injection_type: %s\n", injectionType)
	fmt.Fprintf(&b, "generated_at: %s\n", time.Now().UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "budget_tokens: %d\n", budgetTokens)
	fmt.Fprintf(&b, "matched: %d\n", totalMatched)

	charBudget := budgetTokens * 4
	entries := make([]string, 0, len(items))
	totalChars := 0
	for i, it := range items {
		entry := formatSingleItem(i+1, toFormatItem(it))
		if totalChars+len(entry) > charBudget && len(entries) > 0 {
			break
		}
		entries = append(entries, entry)
		totalChars += len(entry)
	}

	tokensUsed := totalChars / 4
	fmt.Fprintf(&b, "used: %d\n\n", tokensUsed)
	for _, entry := range entries {
		b.WriteString(entry)
	}
	fmt.Fprintf(&b, "--- End Memory (format_version=%d, %d items, %d tokens) ---",
		FormatVersion, len(entries), tokensUsed)
	return b.String()
}

func formatSingleItem(rank int, it formatItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] [%s:%s] %s — %s\n",
		rank, strings.ToUpper(string(it.Tier)), it.Validation, it.Type, it.Title)

	for _, line := range strings.Split(strings.TrimSpace(it.Content), "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}

	provStr := string(it.Provenance.SourceKind)
	if it.Provenance.SourceID != "" {
		provStr = fmt.Sprintf("%s:%s", it.Provenance.SourceKind, it.Provenance.SourceID)
	}
	if len(it.Provenance.ContentHashes) > 0 {
		h := it.Provenance.ContentHashes[0]
		if len(h) > 16 {
			h = h[:16]
		}
		provStr += fmt.Sprintf(" | %s...", h)
	}
	fmt.Fprintf(&b, "    provenance: %s\n", provStr)

	tagStr := "none"
	if len(it.Tags) > 0 {
		tagStr = strings.Join(it.Tags, ", ")
	}
	fmt.Fprintf(&b, "    tags: %s\n", tagStr)
	fmt.Fprintf(&b, "    confidence: %.2f\n", it.Confidence)

	if len(it.Entities) > 0 {
		fmt.Fprintf(&b, "    entities: %s\n", strings.Join(it.Entities, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

// SearchResult is one row of a structured (non-injection) search
// response.
type SearchResult struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Tier           string   `json:"tier"`
	Type           string   `json:"type"`
	Tags           []string `json:"tags"`
	Confidence     float64  `json:"confidence"`
	Validation     string   `json:"validation"`
	ContentPreview string   `json:"content_preview"`
	Quarantined    bool     `json:"quarantined,omitempty"`
}

// FormatSearchResults flattens items into the JSON-serializable search
// response shape, truncating content to a 200-char preview.
func FormatSearchResults(items []*memtypes.Item) []SearchResult {
	results := make([]SearchResult, 0, len(items))
	for _, it := range items {
		preview := it.Content
		if len(preview) > 200 {
			preview = preview[:200]
		}
		results = append(results, SearchResult{
			ID: it.ID, Title: it.Title, Tier: string(it.Tier), Type: string(it.Type),
			Tags: it.Tags, Confidence: it.Confidence, Validation: string(it.Validation),
			ContentPreview: preview, Quarantined: !it.Injectable,
		})
	}
	return results
}
