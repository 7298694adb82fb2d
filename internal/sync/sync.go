package sync

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/store"
)

// SyncResult summarizes one mount's sync pass.
type SyncResult struct {
	MountPath     string
	FilesScanned  int
	FilesNew      int
	FilesChanged  int
	FilesUnchanged int
	ChunksCreated int
}

// SyncOptions controls a sync pass.
type SyncOptions struct {
	Delta          bool // default true: skip files whose size+mtime are unchanged
	IgnorePatterns []string
	LangHint       string
	MaxTokens      int
	Quiet          bool
}

// SyncMount syncs one folder into the store, auto-registering it as a
// mount if it isn't already one. Implements the three-tier delta rule:
//  1. file not in corpus_hashes           → new, ingest
//  2. size_bytes and mtime_epoch unchanged → fast skip (no hashing)
//  3. sha256 unchanged                    → metadata-only update, skip ingest
//     sha256 changed                      → ingest
func SyncMount(s *store.Store, mountPath string, opts SyncOptions) (*SyncResult, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1800
	}
	canonical, err := filepath.Abs(mountPath)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = resolved
	}
	result := &SyncResult{MountPath: canonical}

	mount, err := s.ReadMountByPath(canonical)
	if err != nil {
		return nil, err
	}
	var mountID string
	if mount == nil {
		mountID, err = RegisterMount(s, canonical, "", opts.IgnorePatterns, opts.LangHint)
		if err != nil {
			return nil, err
		}
		mount, err = s.ReadMount(mountID)
		if err != nil {
			return nil, err
		}
	} else {
		mountID = mount.MountID
	}

	patterns := opts.IgnorePatterns
	if patterns == nil {
		patterns = mount.IgnorePatterns
	}
	mountLang := opts.LangHint
	if mountLang == "" {
		mountLang = mount.LangHint
	}

	scan, err := ScanMount(canonical, patterns)
	if err != nil {
		return nil, err
	}
	result.FilesScanned = len(scan.Files)
	if !opts.Quiet {
		log.Printf("[sync] scanned %d files in %s", len(scan.Files), canonical)
	}

	for _, fi := range scan.Files {
		existing, err := s.ReadCorpusHash(fi.AbsPath)
		if err != nil {
			return nil, err
		}

		if opts.Delta && existing != nil {
			if existing.SizeBytes == fi.SizeBytes && existing.MtimeEpoch == fi.MtimeEpoch {
				result.FilesUnchanged++
				continue
			}
			sha, err := FileSHA256(fi.AbsPath)
			if err != nil {
				return nil, err
			}
			if existing.SHA256 == sha {
				existing.MountID = mountID
				existing.RelPath = fi.RelPath
				existing.Ext = fi.Ext
				existing.SizeBytes = fi.SizeBytes
				existing.MtimeEpoch = fi.MtimeEpoch
				existing.LangHint = mountLang
				if err := s.WriteCorpusHash(existing); err != nil {
					return nil, err
				}
				result.FilesUnchanged++
				continue
			}
			result.FilesChanged++
		} else if existing == nil {
			result.FilesNew++
		} else {
			result.FilesChanged++
		}

		ingestResult, err := IngestFile(s, fi.AbsPath, IngestOptions{
			Scope: "project", MaxTokens: opts.MaxTokens, FormatMode: "auto", Injectable: true,
		})
		if err != nil {
			return nil, fmt.Errorf("ingest %s: %w", fi.AbsPath, err)
		}
		if ingestResult.ChunksCreated > 0 || ingestResult.FilesProcessed > 0 {
			if err := s.WriteCorpusHash(&memtypes.CorpusHash{
				MountID: mountID, AbsPath: fi.AbsPath, RelPath: fi.RelPath, SHA256: ingestResult.SHA256,
				ChunkCount: ingestResult.ChunksCreated, ItemIDs: ingestResult.ItemIDs,
				Ext: fi.Ext, SizeBytes: fi.SizeBytes, MtimeEpoch: fi.MtimeEpoch, LangHint: mountLang,
			}); err != nil {
				return nil, err
			}
			result.ChunksCreated += ingestResult.ChunksCreated
		}
	}

	if err := s.UpdateMountSyncTime(mountID); err != nil {
		return nil, err
	}
	if !opts.Quiet {
		log.Printf("[sync] done: %d new, %d changed, %d unchanged, %d chunks",
			result.FilesNew, result.FilesChanged, result.FilesUnchanged, result.ChunksCreated)
	}
	return result, nil
}

// SyncAll syncs every registered mount whose folder still exists on disk.
func SyncAll(s *store.Store, opts SyncOptions) (map[string]*SyncResult, error) {
	mounts, err := s.ListMounts()
	if err != nil {
		return nil, err
	}
	results := make(map[string]*SyncResult, len(mounts))
	for _, m := range mounts {
		if info, err := os.Stat(m.Path); err != nil || !info.IsDir() {
			if !opts.Quiet {
				log.Printf("[sync] mount path missing, skipping: %s", m.Path)
			}
			continue
		}
		mountOpts := opts
		mountOpts.IgnorePatterns = m.IgnorePatterns
		mountOpts.LangHint = m.LangHint
		res, err := SyncMount(s, m.Path, mountOpts)
		if err != nil {
			return nil, err
		}
		results[m.Path] = res
	}
	return results, nil
}
