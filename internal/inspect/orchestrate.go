package inspect

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/memctl/memctl/internal/memtypes"
	memsync "github.com/memctl/memctl/internal/sync"
	"github.com/memctl/memctl/internal/store"
)

// SyncMode controls whether InspectPath re-syncs before measuring.
type SyncMode string

const (
	SyncAuto   SyncMode = "auto"
	SyncAlways SyncMode = "always"
	SyncNever  SyncMode = "never"
)

// MountMode controls whether InspectPath leaves its mount registered.
type MountMode string

const (
	MountPersist   MountMode = "persist"
	MountEphemeral MountMode = "ephemeral"
)

// PathResult is the outcome of one InspectPath orchestration call: the
// measured Stats plus metadata about what the orchestrator did along the
// way (mounted, synced, or both).
type PathResult struct {
	Stats              *Stats
	MountID            string
	MountLabel         string
	WasMounted         bool
	WasSynced          bool
	SyncSkipped        bool
	WasEphemeral       bool
	SyncFilesNew       int
	SyncFilesChanged   int
	SyncFilesUnchanged int
	SyncChunksCreated  int
}

// isStale compares disk inventory (stat only, no hashing) against the
// stored corpus_hashes rows for mount, and reports whether a sync is
// needed — O(n) in file count.
func isStale(s *store.Store, mount *memtypes.Mount, patterns []string) (bool, error) {
	if mount.LastSyncAt == nil {
		return true, nil
	}

	scan, err := memsync.ScanMount(mount.Path, patterns)
	if err != nil {
		return false, err
	}
	type triple struct {
		path  string
		size  int64
		mtime int64
	}
	disk := make(map[triple]bool, len(scan.Files))
	for _, fi := range scan.Files {
		disk[triple{fi.AbsPath, fi.SizeBytes, fi.MtimeEpoch}] = true
	}

	stored, err := s.ListCorpusFiles(mount.MountID)
	if err != nil {
		return false, err
	}
	storedSet := make(map[triple]bool, len(stored))
	for _, f := range stored {
		if f.SizeBytes != 0 || f.MtimeEpoch != 0 {
			storedSet[triple{f.AbsPath, f.SizeBytes, f.MtimeEpoch}] = true
		}
	}

	if len(disk) != len(storedSet) {
		return true, nil
	}
	for k := range disk {
		if !storedSet[k] {
			return true, nil
		}
	}
	return false, nil
}

// InspectPath orchestrates mount + sync + inspect for a filesystem path,
// so `memctl inspect <path>` works without separate mount/sync steps.
// logf receives informational progress messages (pass a no-op to silence).
func InspectPath(s *store.Store, path string, syncMode SyncMode, mountMode MountMode, budget int, ignorePatterns []string, logf func(string, ...any)) (*PathResult, error) {
	if syncMode == "" {
		syncMode = SyncAuto
	}
	if mountMode == "" {
		mountMode = MountPersist
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = resolved
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %s", canonical)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", canonical)
	}

	mount, err := s.ReadMountByPath(canonical)
	if err != nil {
		return nil, err
	}
	result := &PathResult{WasEphemeral: mountMode == MountEphemeral}

	if mount == nil {
		mountID, err := memsync.RegisterMount(s, canonical, "", ignorePatterns, "")
		if err != nil {
			return nil, err
		}
		mount, err = s.ReadMount(mountID)
		if err != nil {
			return nil, err
		}
		result.WasMounted = true
		logf("[inspect] mounted: %s", canonical)
	}
	result.MountID = mount.MountID
	result.MountLabel = mount.Name
	if result.MountLabel == "" {
		result.MountLabel = canonical
	}

	effectivePatterns := ignorePatterns
	if effectivePatterns == nil {
		effectivePatterns = mount.IgnorePatterns
	}

	doSync := false
	switch syncMode {
	case SyncAlways:
		doSync = true
		logf("[inspect] sync=always — syncing %s", canonical)
	case SyncNever:
		result.SyncSkipped = true
		logf("[inspect] sync=never — skipping sync")
	default:
		stale, err := isStale(s, mount, effectivePatterns)
		if err != nil {
			return nil, err
		}
		if stale {
			doSync = true
			logf("[inspect] store is stale — syncing %s", canonical)
		} else {
			result.SyncSkipped = true
			logf("[inspect] store is up-to-date — skipping sync")
		}
	}

	if doSync {
		sr, err := memsync.SyncMount(s, canonical, memsync.SyncOptions{Delta: true, IgnorePatterns: effectivePatterns, Quiet: true})
		if err != nil {
			return nil, err
		}
		result.WasSynced = true
		result.SyncFilesNew = sr.FilesNew
		result.SyncFilesChanged = sr.FilesChanged
		result.SyncFilesUnchanged = sr.FilesUnchanged
		result.SyncChunksCreated = sr.ChunksCreated
		logf("[inspect] synced: %d new, %d changed, %d unchanged, %d chunks",
			sr.FilesNew, sr.FilesChanged, sr.FilesUnchanged, sr.ChunksCreated)
	}

	stats, err := Compute(s, mount.MountID)
	if err != nil {
		return nil, err
	}
	result.Stats = stats

	if mountMode == MountEphemeral {
		if err := s.RemoveMount(mount.MountID); err != nil {
			return nil, err
		}
		logf("[inspect] ephemeral: mount removed")
	}

	return result, nil
}
