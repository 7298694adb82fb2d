package sync

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memctl/memctl/internal/store"
)

// Watch is a supplemented sync mode absent from the original system: it
// watches every registered mount for filesystem changes and re-runs
// SyncMount on the affected mount after a debounce window, instead of
// requiring an explicit periodic `sync` invocation.
func Watch(ctx context.Context, s *store.Store, opts SyncOptions, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	mounts, err := s.ListMounts()
	if err != nil {
		return err
	}
	pathToMount := make(map[string]string, len(mounts))
	for _, m := range mounts {
		if err := watcher.Add(m.Path); err != nil {
			log.Printf("[sync] watch: cannot watch %s: %v", m.Path, err)
			continue
		}
		pathToMount[m.Path] = m.Path
	}

	pending := map[string]*time.Timer{}
	fire := func(mountPath string) {
		if _, err := SyncMount(s, mountPath, opts); err != nil {
			log.Printf("[sync] watch: sync of %s failed: %v", mountPath, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			mountPath := nearestMount(ev.Name, pathToMount)
			if mountPath == "" {
				continue
			}
			if t, ok := pending[mountPath]; ok {
				t.Stop()
			}
			mp := mountPath
			pending[mountPath] = time.AfterFunc(debounce, func() { fire(mp) })

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[sync] watch error: %v", err)
		}
	}
}

// nearestMount returns the longest registered mount path that is a prefix
// of changedPath, or "" if none matches.
func nearestMount(changedPath string, mounts map[string]string) string {
	best := ""
	for path := range mounts {
		if len(path) > len(best) && hasPathPrefix(changedPath, path) {
			best = path
		}
	}
	return best
}

func hasPathPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}
