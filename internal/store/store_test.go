package store

import (
	"testing"

	"github.com/memctl/memctl/internal/memtypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndReadItem(t *testing.T) {
	s := openTestStore(t)
	it := memtypes.NewItem()
	it.Title = "hello"
	it.Content = "the sky is blue"

	if err := s.WriteItem(it, "test"); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}
	got, err := s.ReadItem(it.ID)
	if err != nil {
		t.Fatalf("ReadItem: %v", err)
	}
	if got == nil || got.Content != "the sky is blue" {
		t.Fatalf("ReadItem mismatch: %+v", got)
	}
}

func TestReadItemMissingReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.ReadItem("MEM-doesnotexist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing item, got %+v", got)
	}
}

func TestSearchFulltextFindsMatch(t *testing.T) {
	s := openTestStore(t)
	it := memtypes.NewItem()
	it.Title = "marmot facts"
	it.Content = "marmots are large ground squirrels"
	if err := s.WriteItem(it, "test"); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}

	items, _, err := s.SearchFulltext("marmot", SearchOptions{})
	if err != nil {
		t.Fatalf("SearchFulltext: %v", err)
	}
	if len(items) != 1 || items[0].ID != it.ID {
		t.Fatalf("expected one match, got %+v", items)
	}
}

func TestListItemsFiltersByTier(t *testing.T) {
	s := openTestStore(t)
	stm := memtypes.NewItem()
	stm.Content = "stm item"
	ltm := memtypes.NewItem()
	ltm.Tier = memtypes.TierLTM
	ltm.Content = "ltm item"
	ltm.Provenance.SourceID = "doc-1"
	if err := s.WriteItem(stm, "test"); err != nil {
		t.Fatalf("WriteItem stm: %v", err)
	}
	if err := s.WriteItem(ltm, "test"); err != nil {
		t.Fatalf("WriteItem ltm: %v", err)
	}

	items, err := s.ListItems(SearchOptions{Tier: "ltm"})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != ltm.ID {
		t.Fatalf("expected only the ltm item, got %+v", items)
	}
}

func TestStatsCountsByTier(t *testing.T) {
	s := openTestStore(t)
	it := memtypes.NewItem()
	it.Content = "counted"
	if err := s.WriteItem(it, "test"); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}
	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 1 {
		t.Errorf("Total = %d, want 1", st.Total)
	}
	if st.ByTier["stm"] != 1 {
		t.Errorf("ByTier[stm] = %d, want 1", st.ByTier["stm"])
	}
}

func TestResetClearsItemsPreservesMounts(t *testing.T) {
	s := openTestStore(t)
	it := memtypes.NewItem()
	it.Content = "to be erased"
	if err := s.WriteItem(it, "test"); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}

	counts, err := s.Reset(true, false)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if counts["memory_items"] != 1 {
		t.Errorf("reset reported counts %v, want memory_items=1", counts)
	}
	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Total != 0 {
		t.Errorf("Total after reset = %d, want 0", st.Total)
	}
}

func TestMountRegistrationIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	id, err := s.WriteMount(&memtypes.Mount{Path: dir})
	if err != nil {
		t.Fatalf("WriteMount: %v", err)
	}
	mount, err := s.ReadMountByPath(dir)
	if err != nil {
		t.Fatalf("ReadMountByPath: %v", err)
	}
	if mount == nil || mount.MountID != id {
		t.Fatalf("expected to read back the mount just written, got %+v", mount)
	}
}
