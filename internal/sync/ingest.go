package sync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/store"
)

// IngestResult summarizes one ingest operation.
type IngestResult struct {
	FilesProcessed int
	FilesSkipped   int // already in corpus_hashes with the same sha256
	ChunksCreated  int
	ItemIDs        []string
	SHA256         string
}

// IngestOptions controls how a file or stream is turned into memory items.
type IngestOptions struct {
	Scope      string
	CorpusID   string
	MaxTokens  int
	Tags       []string
	FormatMode string // "text" (plain) or "auto" (infer tags/title from path)
	Injectable bool
}

func (o IngestOptions) withDefaults() IngestOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1800
	}
	if o.Scope == "" {
		o.Scope = "audit"
	}
	if o.FormatMode == "" {
		o.FormatMode = "text"
	}
	return o
}

// IngestFile reads path, splits it into paragraph chunks, and writes each
// as a memory item. Idempotent: if the file's current sha256 matches the
// stored corpus hash, nothing is written.
func IngestFile(s *store.Store, path string, opts IngestOptions) (*IngestResult, error) {
	opts = opts.withDefaults()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	text, err := ReadFileText(absPath)
	if err != nil {
		return nil, err
	}

	sha, err := FileSHA256(absPath)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", absPath, err)
	}

	existing, err := s.ReadCorpusHash(absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.SHA256 == sha {
		return &IngestResult{FilesSkipped: 1}, nil
	}

	extraTags := append([]string{}, opts.Tags...)
	titleBase := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if opts.FormatMode == "auto" {
		extraTags = append(extraTags, InferTagsFromPath(path)...)
		titleBase = InferTitle(text, titleBase)
	}

	chunks := ChunkParagraphs(text, opts.MaxTokens)
	if len(chunks) == 0 {
		return &IngestResult{FilesProcessed: 1}, nil
	}

	itemIDs := make([]string, 0, len(chunks))
	for i, c := range chunks {
		title := titleBase
		if len(chunks) > 1 {
			title = fmt.Sprintf("%s [%d/%d]", titleBase, i+1, len(chunks))
		}

		it := memtypes.NewItem()
		it.Tier = memtypes.TierSTM
		it.Type = memtypes.TypeNote
		it.Title = title
		it.Content = fmt.Sprintf("[path:%s chunk:%d lines:%d-%d]\n%s", path, i, c.StartLine, c.EndLine, c.Text)
		it.Tags = append([]string{}, extraTags...)
		it.Provenance = memtypes.Provenance{
			SourceKind:    memtypes.SourceDoc,
			SourceID:      absPath,
			ChunkIDs:      []string{fmt.Sprintf("%s:%d", absPath, i)},
			ContentHashes: []string{"sha256:" + sha},
			CreatedAt:     memtypes.NowISO(),
		}
		it.Scope = opts.Scope
		it.CorpusID = opts.CorpusID
		it.Injectable = opts.Injectable

		if err := s.WriteItem(it, "ingest"); err != nil {
			return nil, fmt.Errorf("write chunk %d of %s: %w", i, path, err)
		}
		itemIDs = append(itemIDs, it.ID)
	}

	info, statErr := os.Stat(absPath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	if err := s.WriteCorpusHash(&memtypes.CorpusHash{
		AbsPath: absPath, SHA256: sha, ChunkCount: len(chunks), ItemIDs: itemIDs,
		Ext: strings.ToLower(filepath.Ext(absPath)), SizeBytes: size,
	}); err != nil {
		return nil, err
	}

	return &IngestResult{FilesProcessed: 1, ChunksCreated: len(chunks), ItemIDs: itemIDs, SHA256: sha}, nil
}

// IngestStdin reads r to completion and ingests it as a single pseudo-file
// keyed by the literal source id "<stdin>".
func IngestStdin(s *store.Store, r io.Reader, opts IngestOptions) (*IngestResult, error) {
	opts = opts.withDefaults()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return &IngestResult{}, nil
	}

	sha := TextSHA256(text)
	existing, err := s.ReadCorpusHash("<stdin>")
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.SHA256 == sha {
		return &IngestResult{FilesSkipped: 1}, nil
	}

	chunks := ChunkParagraphs(text, opts.MaxTokens)
	if len(chunks) == 0 {
		return &IngestResult{}, nil
	}

	itemIDs := make([]string, 0, len(chunks))
	for i, c := range chunks {
		title := "stdin"
		if len(chunks) > 1 {
			title = fmt.Sprintf("stdin [%d/%d]", i+1, len(chunks))
		}

		it := memtypes.NewItem()
		it.Tier = memtypes.TierSTM
		it.Type = memtypes.TypeNote
		it.Title = title
		it.Content = fmt.Sprintf("[path:<stdin> chunk:%d lines:%d-%d]\n%s", i, c.StartLine, c.EndLine, c.Text)
		it.Tags = append([]string{}, opts.Tags...)
		it.Provenance = memtypes.Provenance{
			SourceKind:    memtypes.SourceDoc,
			SourceID:      "<stdin>",
			ChunkIDs:      []string{fmt.Sprintf("<stdin>:%d", i)},
			ContentHashes: []string{"sha256:" + sha},
			CreatedAt:     memtypes.NowISO(),
		}
		it.Scope = opts.Scope
		it.CorpusID = opts.CorpusID
		it.Injectable = opts.Injectable

		if err := s.WriteItem(it, "ingest"); err != nil {
			return nil, err
		}
		itemIDs = append(itemIDs, it.ID)
	}

	if err := s.WriteCorpusHash(&memtypes.CorpusHash{
		AbsPath: "<stdin>", SHA256: sha, ChunkCount: len(chunks), ItemIDs: itemIDs,
	}); err != nil {
		return nil, err
	}

	return &IngestResult{FilesProcessed: 1, ChunksCreated: len(chunks), ItemIDs: itemIDs}, nil
}

// ResolveSources expands a list of source arguments (files, directories, or
// glob patterns) into concrete file paths, deduping by absolute path while
// preserving first-seen order.
func ResolveSources(raw []string) ([]string, error) {
	seen := map[string]bool{}
	var result []string

	for _, arg := range raw {
		if strings.ContainsAny(arg, "*?") {
			matches, err := filepath.Glob(arg)
			if err != nil {
				return nil, fmt.Errorf("bad glob %q: %w", arg, err)
			}
			sort.Strings(matches)
			for _, p := range matches {
				if info, err := os.Stat(p); err == nil && !info.IsDir() {
					ap, _ := filepath.Abs(p)
					if !seen[ap] {
						seen[ap] = true
						result = append(result, p)
					}
				}
			}
			continue
		}

		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			var files []string
			_ = filepath.Walk(arg, func(p string, fi os.FileInfo, err error) error {
				if err != nil || fi.IsDir() {
					return nil
				}
				if AllIngestableExts[strings.ToLower(filepath.Ext(fi.Name()))] {
					files = append(files, p)
				}
				return nil
			})
			sort.Strings(files)
			for _, p := range files {
				ap, _ := filepath.Abs(p)
				if !seen[ap] {
					seen[ap] = true
					result = append(result, p)
				}
			}
			continue
		}

		if err != nil {
			ap, _ := filepath.Abs(arg)
			return nil, fmt.Errorf("source not found: %q (resolved to %q); pass a file, directory, or glob pattern", arg, ap)
		}
		ap, _ := filepath.Abs(arg)
		if !seen[ap] {
			seen[ap] = true
			result = append(result, arg)
		}
	}

	return result, nil
}

// FileStat summarizes one measured file for CorpusStats.
type FileStat struct {
	Name   string
	Lines  int
	Tokens int
}

// CorpusStatsResult is the aggregate measurement CorpusStats returns.
type CorpusStatsResult struct {
	Files       int
	TotalLines  int
	TotalTokens int
	PerFile     []FileStat
}

// CorpusStats measures a set of files: line count, character count, and
// an estimated token count (chars/4), without ingesting anything.
func CorpusStats(paths []string) (*CorpusStatsResult, error) {
	res := &CorpusStatsResult{}
	for _, p := range paths {
		text, err := ReadFileText(p)
		if err != nil {
			return nil, err
		}
		lines := strings.Count(text, "\n") + 1
		chars := len(text)
		tokens := chars / 4
		res.TotalLines += lines
		res.TotalTokens += tokens
		res.PerFile = append(res.PerFile, FileStat{Name: filepath.Base(p), Lines: lines, Tokens: tokens})
	}
	res.Files = len(paths)
	return res, nil
}
