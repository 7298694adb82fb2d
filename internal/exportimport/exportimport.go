// Package exportimport implements memctl's JSONL backup/migration format:
// one JSON-encoded MemoryItem per line. Export writes JSONL only to its
// output stream; all progress goes through a separate log callback so
// stdout stays pipeable. Import routes every item through the policy
// engine and deduplicates by content hash before it ever reaches storage.
package exportimport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/store"
)

// Logf receives progress messages; the default implementation writes to
// stderr so export's stdout stays pure JSONL.
type Logf func(format string, args ...any)

func defaultLog(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// ExportOptions filters which items Export serializes.
type ExportOptions struct {
	Tier            string
	Type            string
	Scope           string
	ExcludeArchived bool
	Log             Logf
}

// Export writes every item matching opts as JSONL to w and returns the
// count written.
func Export(s *store.Store, w io.Writer, opts ExportOptions) (int, error) {
	log := opts.Log
	if log == nil {
		log = defaultLog
	}
	items, err := s.ListItems(store.SearchOptions{
		Tier: opts.Tier, Type: opts.Type, Scope: opts.Scope,
		ExcludeArchived: opts.ExcludeArchived, Limit: 999999,
	})
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	count := 0
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return count, err
		}
		count++
	}
	log("[export] %d item(s) exported", count)
	return count, nil
}

// ImportResult carries the per-outcome counts from one Import call.
type ImportResult struct {
	TotalLines    int `json:"total_lines"`
	Imported      int `json:"imported"`
	SkippedDedup  int `json:"skipped_dedup"`
	SkippedPolicy int `json:"skipped_policy"`
	Errors        int `json:"errors"`
}

// ImportOptions controls one Import call.
type ImportOptions struct {
	PreserveIDs bool
	DryRun      bool
	Policy      *config.PolicyConfig // nil = config.Default().Policy
	Log         Logf
}

// Import reads JSONL from r, validates and deduplicates each item, routes
// it through the policy engine, and writes accepted items to s (unless
// DryRun). A "reject" verdict drops the item; a "quarantine" verdict with
// ForcedNonInjectable clears Injectable before the item is stored.
func Import(s *store.Store, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	log := opts.Log
	if log == nil {
		log = defaultLog
	}
	polCfg := opts.Policy
	if polCfg == nil {
		def := config.Default().Policy
		polCfg = &def
	}
	engine := policy.New(polCfg)

	result := &ImportResult{}

	existing, err := s.ListItems(store.SearchOptions{ExcludeArchived: false, Limit: 999999})
	if err != nil {
		return nil, err
	}
	existingHashes := make(map[string]bool, len(existing))
	existingIDs := make(map[string]bool, len(existing))
	for _, it := range existing {
		existingHashes[it.ContentHash()] = true
		existingIDs[it.ID] = true
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		result.TotalLines++

		var it memtypes.Item
		if err := json.Unmarshal([]byte(line), &it); err != nil {
			log("[import] malformed JSON on line %d: %v", result.TotalLines, err)
			result.Errors++
			continue
		}
		if err := it.Validate(); err != nil {
			log("[import] invalid item on line %d: %v", result.TotalLines, err)
			result.Errors++
			continue
		}

		if !opts.PreserveIDs {
			it.ID = memtypes.NewID("MEM")
		} else if existingIDs[it.ID] {
			result.SkippedDedup++
			continue
		}

		ch := it.ContentHash()
		if existingHashes[ch] {
			result.SkippedDedup++
			continue
		}

		verdict := engine.EvaluateItem(&it)
		if verdict.Verdict == policy.VerdictReject {
			result.SkippedPolicy++
			continue
		}
		if verdict.Verdict == policy.VerdictQuarantine && verdict.ForcedNonInjectable {
			it.Injectable = false
		}

		if !opts.DryRun {
			if err := s.WriteItem(&it, "import"); err != nil {
				return nil, fmt.Errorf("import line %d: %w", result.TotalLines, err)
			}
			existingHashes[ch] = true
			existingIDs[it.ID] = true
		}
		result.Imported++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	label := ""
	if opts.DryRun {
		label = " (dry run)"
	}
	log("[import]%s %d imported, %d dedup, %d policy, %d error(s)",
		label, result.Imported, result.SkippedDedup, result.SkippedPolicy, result.Errors)
	return result, nil
}
