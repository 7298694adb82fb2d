// Package inspect produces deterministic, token-bounded structural
// summaries of a corpus from its stored file metadata. No LLM calls, no
// embeddings — every observation is a hardcoded threshold over plain
// counts, so the same files always produce the same output.
package inspect

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/memctl/memctl/internal/store"
)

// Observation thresholds, frozen for reproducibility.
const (
	DominanceFrac        = 0.40 // a folder holding >= this share of total chunks is called out
	LowDensityThreshold  = 0.10 // bottom decile of chunks/file is called out as low-density
	ExtConcentrationFrac = 0.75 // one extension at >= this share of files is called out
	SparseThreshold      = 1    // folders with chunk_count <= this and >= 3 files are "sparse"
)

// FolderStat aggregates one mount-relative folder's file/chunk/size counts.
type FolderStat struct {
	FileCount  int
	ChunkCount int
	Size       int64
}

// LargestFile is one entry in the top-largest-files listing.
type LargestFile struct {
	Path       string
	SizeBytes  int64
	ChunkCount int
}

// Stats is the structured result of measuring a corpus.
type Stats struct {
	TotalFiles   int
	TotalChunks  int
	TotalSize    int64
	PerFolder    map[string]*FolderStat
	PerExtension map[string]int
	TopLargest   []LargestFile
	Observations []string
}

// safeRelPath returns a portable, never-absolute relative path for a
// corpus file entry: rel_path if sync set one, else the basename (files
// ingested by `push` have no mount context).
func safeRelPath(relPath, absPath string) string {
	if relPath != "" {
		return relPath
	}
	if absPath == "" {
		return ""
	}
	base := filepath.Base(absPath)
	if base != "" {
		return base
	}
	return absPath
}

// safeSize returns a file's recorded size, falling back to a live stat()
// of its absolute path when the stored value is missing or zero (covers
// rows written before size_bytes was tracked).
func safeSize(sizeBytes int64, absPath string) int64 {
	if sizeBytes > 0 {
		return sizeBytes
	}
	if absPath != "" {
		if info, err := os.Stat(absPath); err == nil {
			return info.Size()
		}
	}
	return 0
}

// Compute measures every corpus file registered under mountID ("" = every
// mount) and returns aggregate stats plus derived observations.
func Compute(s *store.Store, mountID string) (*Stats, error) {
	files, err := s.ListCorpusFiles(mountID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{PerFolder: map[string]*FolderStat{}, PerExtension: map[string]int{}}
	if len(files) == 0 {
		return stats, nil
	}

	type resolved struct {
		rel        string
		size       int64
		chunkCount int
		ext        string
	}
	rs := make([]resolved, 0, len(files))
	for _, f := range files {
		rel := safeRelPath(f.RelPath, f.AbsPath)
		size := safeSize(f.SizeBytes, f.AbsPath)
		ext := f.Ext
		if ext == "" {
			ext = strings.ToLower(filepath.Ext(f.AbsPath))
		}
		rs = append(rs, resolved{rel: rel, size: size, chunkCount: f.ChunkCount, ext: ext})

		stats.TotalChunks += f.ChunkCount
		stats.TotalSize += size

		folder := filepath.Dir(rel)
		if folder == "" {
			folder = "."
		}
		fs, ok := stats.PerFolder[folder]
		if !ok {
			fs = &FolderStat{}
			stats.PerFolder[folder] = fs
		}
		fs.FileCount++
		fs.ChunkCount += f.ChunkCount
		fs.Size += size

		if ext != "" {
			stats.PerExtension[ext]++
		}
	}
	stats.TotalFiles = len(files)

	sort.Slice(rs, func(i, j int) bool { return rs[i].size > rs[j].size })
	n := len(rs)
	if n > 5 {
		n = 5
	}
	for _, r := range rs[:n] {
		stats.TopLargest = append(stats.TopLargest, LargestFile{Path: r.rel, SizeBytes: r.size, ChunkCount: r.chunkCount})
	}

	stats.Observations = computeObservations(stats.PerFolder, stats.PerExtension, stats.TotalChunks, stats.TotalFiles)
	return stats, nil
}

func computeObservations(folders map[string]*FolderStat, exts map[string]int, totalChunks, totalFiles int) []string {
	var obs []string
	if totalChunks == 0 || totalFiles == 0 {
		return obs
	}

	folderNames := make([]string, 0, len(folders))
	for name := range folders {
		folderNames = append(folderNames, name)
	}
	sort.Strings(folderNames)

	for _, folder := range folderNames {
		fs := folders[folder]
		frac := float64(fs.ChunkCount) / float64(totalChunks)
		if frac >= DominanceFrac {
			obs = append(obs, fmt.Sprintf("%s/ dominates content (%d%% of chunks)", folder, int(frac*100)))
		}
	}

	if len(folders) >= 3 {
		type density struct {
			folder string
			d      float64
			files  int
		}
		var densities []density
		for _, folder := range folderNames {
			fs := folders[folder]
			if fs.FileCount > 0 {
				densities = append(densities, density{folder, float64(fs.ChunkCount) / float64(fs.FileCount), fs.FileCount})
			}
		}
		sort.Slice(densities, func(i, j int) bool { return densities[i].d < densities[j].d })
		thresholdIdx := int(float64(len(densities)) * LowDensityThreshold)
		if thresholdIdx < 1 {
			thresholdIdx = 1
		}
		if thresholdIdx > len(densities) {
			thresholdIdx = len(densities)
		}
		for _, d := range densities[:thresholdIdx] {
			if d.files >= 3 {
				obs = append(obs, fmt.Sprintf("%s/ has low chunk density (%.1f chunks/file, %d files)", d.folder, d.d, d.files))
			}
		}
	}

	extNames := make([]string, 0, len(exts))
	for e := range exts {
		extNames = append(extNames, e)
	}
	sort.Slice(extNames, func(i, j int) bool { return exts[extNames[i]] > exts[extNames[j]] })
	for _, ext := range extNames {
		frac := float64(exts[ext]) / float64(totalFiles)
		if frac >= ExtConcentrationFrac {
			obs = append(obs, fmt.Sprintf("%s files dominate (%d%% of all files)", ext, int(frac*100)))
		}
	}

	for _, folder := range folderNames {
		fs := folders[folder]
		if fs.ChunkCount <= SparseThreshold && fs.FileCount >= 3 {
			obs = append(obs, fmt.Sprintf("%s/ is sparse (%d chunks across %d files)", folder, fs.ChunkCount, fs.FileCount))
		}
	}

	return obs
}

func formatSize(n int64) string {
	switch {
	case n <= 0:
		return "unknown"
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

// FormatBlock renders stats as the "## Structure (Injected)" block,
// truncated to roughly budget tokens (4 chars/token).
func FormatBlock(stats *Stats, mountLabel string, budget int) string {
	if stats.TotalFiles == 0 {
		return "## Structure (Injected)\nNo files found.\n"
	}

	var b strings.Builder
	b.WriteString("## Structure (Injected)\n")
	b.WriteString("format_version: 1\n")
	b.WriteString("injection_type: structure_inspect\n")
	if mountLabel != "" {
		fmt.Fprintf(&b, "mount: %s\n", mountLabel)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Total files: %d\n", stats.TotalFiles)
	fmt.Fprintf(&b, "Total chunks: %d\n", stats.TotalChunks)
	fmt.Fprintf(&b, "Total size: %s\n\n", formatSize(stats.TotalSize))

	if len(stats.PerFolder) > 0 {
		b.WriteString("Folders:\n")
		names := make([]string, 0, len(stats.PerFolder))
		for n := range stats.PerFolder {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool {
			return stats.PerFolder[names[i]].ChunkCount > stats.PerFolder[names[j]].ChunkCount
		})
		for _, n := range names {
			fs := stats.PerFolder[n]
			fmt.Fprintf(&b, "- %s/ (%d files, %d chunks, %s)\n", n, fs.FileCount, fs.ChunkCount, formatSize(fs.Size))
		}
		b.WriteString("\n")
	}

	if len(stats.TopLargest) > 0 {
		b.WriteString("Largest files:\n")
		for _, f := range stats.TopLargest {
			fmt.Fprintf(&b, "- %s (%s, %d chunks)\n", f.Path, formatSize(f.SizeBytes), f.ChunkCount)
		}
		b.WriteString("\n")
	}

	if len(stats.PerExtension) > 0 {
		b.WriteString("Extensions:\n")
		names := make([]string, 0, len(stats.PerExtension))
		for n := range stats.PerExtension {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool { return stats.PerExtension[names[i]] > stats.PerExtension[names[j]] })
		for _, n := range names {
			fmt.Fprintf(&b, "- %s: %d\n", n, stats.PerExtension[n])
		}
		b.WriteString("\n")
	}

	if len(stats.Observations) > 0 {
		b.WriteString("Observations:\n")
		for _, o := range stats.Observations {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		b.WriteString("\n")
	}

	text := b.String()
	maxChars := budget * 4
	if budget > 0 && len(text) > maxChars {
		cut := text[:maxChars]
		if idx := strings.LastIndex(cut, "\n"); idx >= 0 {
			cut = cut[:idx]
		}
		text = cut + "\n[...truncated]\n"
	}
	return text
}

// InspectMount computes stats for mountID and renders them as a block.
func InspectMount(s *store.Store, mountID, mountLabel string, budget int) (string, error) {
	stats, err := Compute(s, mountID)
	if err != nil {
		return "", err
	}
	return FormatBlock(stats, mountLabel, budget), nil
}
