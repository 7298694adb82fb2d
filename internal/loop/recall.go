package loop

import (
	"github.com/memctl/memctl/internal/store"
)

// RecallItems runs a fulltext search scoped to injectable items, optionally
// restricted to the file set registered under mountID.
func RecallItems(s *store.Store, query string, limit int, mountID string) ([]ContextItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var allowed map[string]bool
	if mountID != "" {
		files, err := s.ListCorpusFiles(mountID)
		if err != nil {
			return nil, err
		}
		allowed = make(map[string]bool)
		for _, f := range files {
			for _, id := range f.ItemIDs {
				allowed[id] = true
			}
		}
	}

	items, _, err := s.SearchFulltext(query, store.SearchOptions{Limit: limit, ExcludeArchived: true})
	if err != nil {
		return nil, err
	}

	results := make([]ContextItem, 0, len(items))
	for _, it := range items {
		if !it.Injectable {
			continue
		}
		if allowed != nil && !allowed[it.ID] {
			continue
		}
		results = append(results, ContextItem{ID: it.ID, Title: it.Title, Content: it.Content})
	}
	return results, nil
}
