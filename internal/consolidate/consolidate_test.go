package consolidate

import (
	"testing"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stmItem(t *testing.T, s *store.Store, title, content string, tags []string, usage int) *memtypes.Item {
	t.Helper()
	it := memtypes.NewItem()
	it.Tier = memtypes.TierSTM
	it.Type = memtypes.TypeFact
	it.Title = title
	it.Content = content
	it.Tags = tags
	it.UsageCount = usage
	it.Scope = "project"
	if err := s.WriteItem(it, "test"); err != nil {
		t.Fatal(err)
	}
	return it
}

func TestRunMergesOverlappingCluster(t *testing.T) {
	s := newTestStore(t)
	a := stmItem(t, s, "Short", "short content", []string{"redis", "cache"}, 1)
	b := stmItem(t, s, "Longer", "this is much longer content describing redis caching behavior", []string{"redis", "cache"}, 2)

	cfg := config.Default().Consolidate
	p := New(s, &cfg)
	stats, err := p.Run("project", false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ClustersFound != 1 {
		t.Fatalf("expected 1 cluster, got %d: %+v", stats.ClustersFound, stats)
	}
	if stats.ItemsMerged != 2 {
		t.Fatalf("expected 2 items merged, got %d", stats.ItemsMerged)
	}

	mergedID := stats.MergeChains[0].MergedID
	if mergedID == "" {
		t.Fatal("expected merged id set")
	}

	items, err := s.ListItems(store.SearchOptions{ExcludeArchived: false, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	var merged *memtypes.Item
	archivedCount := 0
	for _, it := range items {
		if it.ID == mergedID {
			merged = it
		}
		if it.Archived {
			archivedCount++
		}
	}
	if merged == nil {
		t.Fatal("merged item not found in store")
	}
	if merged.Content != b.Content {
		t.Errorf("expected winner to be the longer item's content, got %q", merged.Content)
	}
	if merged.Tier != memtypes.TierMTM {
		t.Errorf("expected merged tier=mtm, got %s", merged.Tier)
	}
	if merged.UsageCount != a.UsageCount+b.UsageCount {
		t.Errorf("expected usage counts summed, got %d", merged.UsageCount)
	}
	if archivedCount != 2 {
		t.Errorf("expected both originals archived, got %d", archivedCount)
	}

	links, err := s.ListLinksFrom(mergedID)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 {
		t.Errorf("expected 2 supersedes links from merged item, got %d", len(links))
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	s := newTestStore(t)
	stmItem(t, s, "A", "content one about databases", []string{"db"}, 0)
	stmItem(t, s, "B", "content two about databases too", []string{"db"}, 0)

	cfg := config.Default().Consolidate
	p := New(s, &cfg)
	stats, err := p.Run("project", true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ClustersFound != 1 || len(stats.MergeChains) != 1 || !stats.MergeChains[0].DryRun {
		t.Fatalf("unexpected dry run stats: %+v", stats)
	}

	items, err := s.ListItems(store.SearchOptions{ExcludeArchived: false, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("expected dry run to leave store untouched, got %d items", len(items))
	}
}

func TestRunSkipsUnderTwoItems(t *testing.T) {
	s := newTestStore(t)
	stmItem(t, s, "Only", "lonely content", []string{"x"}, 0)

	cfg := config.Default().Consolidate
	p := New(s, &cfg)
	stats, err := p.Run("project", false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ClustersFound != 0 || stats.ItemsMerged != 0 {
		t.Errorf("expected no-op for single item, got %+v", stats)
	}
}

func TestRunPromotesHighUsageToLTM(t *testing.T) {
	s := newTestStore(t)
	stmItem(t, s, "A", "content about the deploy pipeline", []string{"deploy"}, 10)
	stmItem(t, s, "B", "content about the deploy pipeline in more detail", []string{"deploy"}, 10)

	cfg := config.Default().Consolidate
	cfg.UsageCountForLTM = 5
	p := New(s, &cfg)
	stats, err := p.Run("project", false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ItemsPromoted != 1 {
		t.Fatalf("expected 1 item promoted to LTM (usage %d+%d >= threshold), got %d", 10, 10, stats.ItemsPromoted)
	}
}

func TestCoarseClusterRequiresSameType(t *testing.T) {
	a := memtypes.NewItem()
	a.Type = memtypes.TypeFact
	a.Tags = []string{"x"}
	b := memtypes.NewItem()
	b.Type = memtypes.TypeDecision
	b.Tags = []string{"x"}

	clusters := coarseCluster([]*memtypes.Item{a, b}, 0.3)
	if len(clusters) != 0 {
		t.Errorf("expected no cluster across differing types, got %d", len(clusters))
	}
}

func TestDeterministicMergeIsIdempotentOrdering(t *testing.T) {
	a := memtypes.NewItem()
	a.ID = "MEM-a"
	a.Content = "short"
	a.CreatedAt = "2026-01-01T00:00:00Z"
	b := memtypes.NewItem()
	b.ID = "MEM-b"
	b.Content = "much longer content than the other item"
	b.CreatedAt = "2026-01-01T00:00:00Z"

	merged1 := deterministicMerge([]*memtypes.Item{a, b})
	merged2 := deterministicMerge([]*memtypes.Item{b, a})
	if merged1.Content != merged2.Content {
		t.Errorf("expected merge winner independent of cluster order: %q vs %q", merged1.Content, merged2.Content)
	}
	if merged1.Content != b.Content {
		t.Errorf("expected longer content to win, got %q", merged1.Content)
	}
}
