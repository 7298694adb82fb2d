package loop

import "strings"

// ContextItem is one recalled memory item formatted for prompt inclusion.
type ContextItem struct {
	ID      string
	Title   string
	Content string
}

func (c ContextItem) block() string {
	title := c.Title
	if title == "" {
		title = c.ID
	}
	return "[" + title + "]\n" + c.Content
}

// BuildPrompt assembles the full prompt sent to the answer-producer:
// protocol instructions, an optional caller-supplied system prompt, the
// accumulated context, and the question.
func BuildPrompt(contextText, query string, systemPrompt string, protocol Protocol) string {
	var parts []string
	if protocol == ProtocolJSON || protocol == "" {
		parts = append(parts, ProtocolSystemPrompt)
	}
	if strings.TrimSpace(systemPrompt) != "" {
		parts = append(parts, systemPrompt)
	}
	parts = append(parts, "## Context\n"+contextText)
	parts = append(parts, "## Question\n"+query)
	return strings.Join(parts, "\n\n")
}

// MergeContext appends items from newItems not already present in seenIDs
// (which is mutated to record the newly-added ids) to existingContext,
// trimming the result to budgetChars without cutting mid-word. Returns the
// merged context and the count of items actually appended.
func MergeContext(existingContext string, newItems []ContextItem, seenIDs map[string]bool, budgetChars int) (string, int) {
	var fresh []string
	added := 0
	for _, it := range newItems {
		if seenIDs[it.ID] {
			continue
		}
		seenIDs[it.ID] = true
		fresh = append(fresh, it.block())
		added++
	}
	if added == 0 {
		return existingContext, 0
	}

	merged := existingContext
	for _, block := range fresh {
		if merged == "" {
			merged = block
		} else {
			merged = merged + "\n\n" + block
		}
	}

	if budgetChars > 0 && len(merged) > budgetChars {
		cut := merged[:budgetChars]
		if float64(len(cut)) > float64(budgetChars)*0.8 {
			if idx := strings.LastIndex(cut, " "); idx >= 0 {
				cut = cut[:idx]
			}
		}
		merged = cut
	}
	return merged, added
}
