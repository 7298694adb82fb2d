package loop

import (
	"testing"

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

func writeTestItem(t *testing.T, s *store.Store, title, content string, injectable bool) string {
	t.Helper()
	it := memtypes.NewItem()
	it.Title = title
	it.Content = content
	it.Injectable = injectable
	if err := s.WriteItem(it, "test"); err != nil {
		t.Fatal(err)
	}
	return it.ID
}

func TestRecallItemsFiltersNonInjectable(t *testing.T) {
	s := newTestStore(t)
	writeTestItem(t, s, "Redis config", "redis config details here", true)
	hiddenID := writeTestItem(t, s, "Secret", "redis credentials hidden", false)

	items, err := RecallItems(s, "redis", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range items {
		if it.ID == hiddenID {
			t.Error("expected non-injectable item to be excluded from recall")
		}
	}
}

func TestRecallItemsScopedToMount(t *testing.T) {
	s := newTestStore(t)
	id := writeTestItem(t, s, "Deploy steps", "deployment steps for staging", true)
	writeTestItem(t, s, "Unrelated", "deployment notes from another source", true)

	mountID, err := s.WriteMount(&memtypes.Mount{MountID: "mnt-1", Path: "/tmp/project", Name: "project"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteCorpusHash(&memtypes.CorpusHash{
		MountID: mountID, AbsPath: "/tmp/project/a.md", SHA256: "deadbeef", ItemIDs: []string{id},
	}); err != nil {
		t.Fatal(err)
	}

	items, err := RecallItems(s, "deployment", 10, mountID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != id {
		t.Errorf("expected recall scoped to mount to return only %s, got %+v", id, items)
	}
}
