package sync

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"
)

// Chunk is one paragraph-bounded slice of a file, with its 0-based line
// span in the original text.
type Chunk struct {
	Text      string
	StartLine int
	EndLine   int
}

var blankLineRE = regexp.MustCompile(`\n\s*\n`)

// ChunkParagraphs splits text at blank-line paragraph boundaries, keeping
// each chunk under maxTokens (estimated as len(chunk)/4). A single
// paragraph that exceeds the budget on its own is still emitted whole —
// chunks never split mid-paragraph.
func ChunkParagraphs(text string, maxTokens int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	paragraphs := blankLineRE.Split(text, -1)

	var chunks []Chunk
	var current []string
	currentTokens := 0
	lineOffset := 0
	startLine := 0

	for i, para := range paragraphs {
		paraTokens := len(para) / 4
		paraLines := strings.Count(para, "\n") + 1

		if currentTokens+paraTokens > maxTokens && len(current) > 0 {
			chunks = append(chunks, Chunk{Text: strings.Join(current, "\n\n"), StartLine: startLine, EndLine: lineOffset - 1})
			current = nil
			currentTokens = 0
			startLine = lineOffset
		}

		current = append(current, para)
		currentTokens += paraTokens
		lineOffset += paraLines
		if i < len(paragraphs)-1 {
			lineOffset++ // the blank-line separator counts as ~1 line gap
		}
	}

	if len(current) > 0 {
		endLine := lineOffset - 1
		if endLine < startLine {
			endLine = startLine
		}
		chunks = append(chunks, Chunk{Text: strings.Join(current, "\n\n"), StartLine: startLine, EndLine: endLine})
	}

	return chunks
}

var headingRE = regexp.MustCompile(`^#+\s+(.+)`)

// frontMatter is the subset of frontmatter fields inferTitle understands.
type frontMatter struct {
	Title string `yaml:"title" toml:"title" json:"title"`
}

// InferTitle looks for a title in three places, in order: a parseable
// frontmatter block's "title" field, the first markdown heading in the
// first 20 lines, or fallback if neither is present.
func InferTitle(text, fallback string) string {
	var fm frontMatter
	if rest, err := frontmatter.Parse(bytes.NewReader([]byte(text)), &fm); err == nil && fm.Title != "" {
		_ = rest
		return fm.Title
	}

	lines := strings.Split(text, "\n")
	if len(lines) > 20 {
		lines = lines[:20]
	}
	for _, line := range lines {
		if m := headingRE.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return fallback
}

// InferTagsFromPath derives tags from a file's extension and its last two
// non-trivial parent directory segments.
func InferTagsFromPath(path string) []string {
	var tags []string
	ext := strings.ToLower(filepath.Ext(path))
	if tag, ok := extTagMap[ext]; ok {
		tags = append(tags, tag)
	}

	dir := filepath.Dir(path)
	var segments []string
	for _, seg := range strings.Split(filepath.ToSlash(dir), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) > 2 {
		segments = segments[len(segments)-2:]
	}
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		seen[t] = true
	}
	for _, seg := range segments {
		tag := strings.ToLower(strings.ReplaceAll(seg, " ", "-"))
		if tag == "" || tag == "." || tag == ".." || len(tag) > 40 || seen[tag] {
			continue
		}
		tags = append(tags, tag)
		seen[tag] = true
	}
	return tags
}
