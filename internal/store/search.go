package store

import (
	"fmt"
	"strings"

	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/query"
)

// SearchOptions filters a full-text search.
type SearchOptions struct {
	Tier            string
	Type            string
	Scope           string
	CorpusID        string
	ExcludeArchived bool
	Limit           int
}

// SearchFulltext runs memctl's five-step FTS cascade: AND of every
// normalized term, then REDUCED_AND (drop the rarest/least helpful term),
// PREFIX_AND (suffix-wildcard every term), OR_FALLBACK (any term, ranked by
// term coverage), and finally LIKE (substring match, for when FTS5 itself
// is unavailable or every prior step starved). Each step only runs if the
// previous one returned zero rows; the first step to find results decides
// SearchMeta.Strategy.
func (s *Store) SearchFulltext(q string, opts SearchOptions) ([]*memtypes.Item, *memtypes.SearchMeta, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	normalized := query.Normalize(q)
	terms := strings.Fields(normalized)
	meta := &memtypes.SearchMeta{OriginalTerms: strings.Fields(q), EffectiveTerms: terms}

	if len(terms) == 0 {
		items, err := s.ListItems(opts)
		meta.Strategy = memtypes.StrategyLIKE
		meta.TotalCandidates = len(items)
		return items, meta, err
	}

	if !s.ftsAvailable {
		items, err := s.searchLike(terms, opts)
		meta.Strategy = memtypes.StrategyLIKE
		meta.TotalCandidates = len(items)
		return items, meta, err
	}

	// Step 1: AND of every term.
	if items, err := s.searchFTS(terms, "AND", opts); err == nil && len(items) > 0 {
		meta.Strategy = memtypes.StrategyAND
		meta.TotalCandidates = len(items)
		return items, meta, nil
	}

	// Step 2: REDUCED_AND — drop the longest term (often the rarest /
	// most specific, the one most likely to be zero-matching due to a
	// morphological mismatch) and AND what remains.
	if len(terms) > 1 {
		reduced := dropLongestTerm(terms)
		if items, err := s.searchFTS(reduced, "AND", opts); err == nil && len(items) > 0 {
			meta.Strategy = memtypes.StrategyReducedAND
			meta.DroppedTerms = diffTerms(terms, reduced)
			meta.EffectiveTerms = reduced
			meta.TotalCandidates = len(items)
			return items, meta, nil
		}
	}

	// Step 3: PREFIX_AND — suffix-wildcard every term and AND them, to
	// absorb simple morphological variants the tokenizer didn't stem.
	if items, err := s.searchFTS(terms, "PREFIX_AND", opts); err == nil && len(items) > 0 {
		meta.Strategy = memtypes.StrategyPrefixAND
		hint := "prefix expansion"
		meta.MorphologicalHint = &hint
		meta.TotalCandidates = len(items)
		return items, meta, nil
	}

	// Step 4: OR_FALLBACK — any term matches; re-rank by how many of the
	// original terms each candidate actually covers.
	if items, coverage, err := s.searchFTSOrFallback(terms, opts); err == nil && len(items) > 0 {
		meta.Strategy = memtypes.StrategyORFallback
		meta.TotalCandidates = len(items)
		_ = coverage
		return items, meta, nil
	}

	// Step 5: LIKE — last resort, substring match, no ranking beyond
	// recency.
	items, err := s.searchLike(terms, opts)
	meta.Strategy = memtypes.StrategyLIKE
	meta.TotalCandidates = len(items)
	return items, meta, err
}

func dropLongestTerm(terms []string) []string {
	idx := 0
	for i, t := range terms {
		if len(t) > len(terms[idx]) {
			idx = i
		}
	}
	out := make([]string, 0, len(terms)-1)
	for i, t := range terms {
		if i != idx {
			out = append(out, t)
		}
	}
	return out
}

func diffTerms(all, kept []string) []string {
	keptSet := make(map[string]bool, len(kept))
	for _, t := range kept {
		keptSet[t] = true
	}
	var dropped []string
	for _, t := range all {
		if !keptSet[t] {
			dropped = append(dropped, t)
		}
	}
	return dropped
}

func escapeFTSTerm(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

func buildFilterConditions(opts SearchOptions) (string, []any) {
	var conds []string
	var args []any
	if opts.ExcludeArchived {
		conds = append(conds, "i.archived = 0")
	}
	if opts.Tier != "" {
		conds = append(conds, "i.tier = ?")
		args = append(args, opts.Tier)
	}
	if opts.Type != "" {
		conds = append(conds, "i.type = ?")
		args = append(args, opts.Type)
	}
	if opts.Scope != "" {
		conds = append(conds, "i.scope = ?")
		args = append(args, opts.Scope)
	}
	if opts.CorpusID != "" {
		conds = append(conds, "i.corpus_id = ?")
		args = append(args, opts.CorpusID)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conds, " AND "), args
}

func (s *Store) searchFTS(terms []string, mode string, opts SearchOptions) ([]*memtypes.Item, error) {
	var matchParts []string
	for _, t := range terms {
		esc := escapeFTSTerm(t)
		if mode == "PREFIX_AND" {
			esc = esc[:len(esc)-1] + `*"`
		}
		matchParts = append(matchParts, esc)
	}
	matchExpr := strings.Join(matchParts, " AND ")

	filterSQL, filterArgs := buildFilterConditions(opts)
	q := fmt.Sprintf(`%s i JOIN memory_items_fts fts ON i.rowid = fts.rowid
		WHERE memory_items_fts MATCH ?%s
		ORDER BY fts.rank LIMIT ?`, "SELECT i.* FROM memory_items", filterSQL)
	q = itemSelectFromRows(q)

	args := append([]any{matchExpr}, filterArgs...)
	args = append(args, opts.Limit)
	return s.queryItems(q, args...)
}

// searchFTSOrFallback matches any term (OR) then re-ranks in Go by how many
// distinct terms each row's title+content actually contains, descending.
func (s *Store) searchFTSOrFallback(terms []string, opts SearchOptions) ([]*memtypes.Item, map[string]int, error) {
	var matchParts []string
	for _, t := range terms {
		matchParts = append(matchParts, escapeFTSTerm(t))
	}
	matchExpr := strings.Join(matchParts, " OR ")

	filterSQL, filterArgs := buildFilterConditions(opts)
	q := fmt.Sprintf(`%s i JOIN memory_items_fts fts ON i.rowid = fts.rowid
		WHERE memory_items_fts MATCH ?%s
		ORDER BY fts.rank LIMIT ?`, "SELECT i.* FROM memory_items", filterSQL)
	q = itemSelectFromRows(q)

	args := append([]any{matchExpr}, filterArgs...)
	args = append(args, opts.Limit*4) // over-fetch candidates before re-ranking by coverage
	items, err := s.queryItems(q, args...)
	if err != nil {
		return nil, nil, err
	}

	coverage := make(map[string]int, len(items))
	for _, it := range items {
		haystack := strings.ToLower(it.Title + " " + it.Content)
		n := 0
		for _, t := range terms {
			if strings.Contains(haystack, strings.ToLower(t)) {
				n++
			}
		}
		coverage[it.ID] = n
	}
	sortByCoverageDesc(items, coverage)
	if len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, coverage, nil
}

func sortByCoverageDesc(items []*memtypes.Item, coverage map[string]int) {
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && coverage[items[j-1].ID] < coverage[items[j].ID] {
			items[j-1], items[j] = items[j], items[j-1]
			j--
		}
	}
}

func (s *Store) searchLike(terms []string, opts SearchOptions) ([]*memtypes.Item, error) {
	var likeConds []string
	var likeArgs []any
	for _, t := range terms {
		likeConds = append(likeConds, "(i.title LIKE ? OR i.content LIKE ? OR i.tags LIKE ?)")
		pat := "%" + t + "%"
		likeArgs = append(likeArgs, pat, pat, pat)
	}
	filterSQL, filterArgs := buildFilterConditions(opts)

	q := itemSelectFromRows(fmt.Sprintf(
		`SELECT i.* FROM memory_items i WHERE %s%s ORDER BY i.updated_at DESC LIMIT ?`,
		strings.Join(likeConds, " AND "), filterSQL,
	))
	args := append(likeArgs, filterArgs...)
	args = append(args, opts.Limit)
	return s.queryItems(q, args...)
}

// ListItems returns items matching opts with no full-text filter applied —
// the fallback for an empty/all-stop-word query.
func (s *Store) ListItems(opts SearchOptions) ([]*memtypes.Item, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	filterSQL, filterArgs := buildFilterConditions(opts)
	aliased := `SELECT i.id, i.tier, i.type, i.title, i.content, i.tags, i.entities, i.links_json, i.provenance_json,
		i.confidence, i.validation, i.scope, i.expires_at, i.usage_count, i.last_used_at,
		i.created_at, i.updated_at, i.rule_id, i.corpus_id, i.superseded_by, i.archived, i.injectable
		FROM memory_items i WHERE 1=1` + filterSQL + ` ORDER BY i.updated_at DESC LIMIT ?`
	args := append(filterArgs, opts.Limit)
	return s.queryItems(aliased, args...)
}

// itemSelectFromRows rewrites a "SELECT i.* FROM ..." query's projection to
// the explicit column list scanItem expects, keeping the rest of the query
// (joins, filters, order, limit) untouched.
func itemSelectFromRows(q string) string {
	cols := `i.id, i.tier, i.type, i.title, i.content, i.tags, i.entities, i.links_json, i.provenance_json,
		i.confidence, i.validation, i.scope, i.expires_at, i.usage_count, i.last_used_at,
		i.created_at, i.updated_at, i.rule_id, i.corpus_id, i.superseded_by, i.archived, i.injectable`
	return strings.Replace(q, "SELECT i.*", "SELECT "+cols, 1)
}

func (s *Store) queryItems(q string, args ...any) ([]*memtypes.Item, error) {
	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memtypes.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
