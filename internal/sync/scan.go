package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo is the scanned metadata for one file. SHA256 is left empty
// until sync decides hashing is actually needed (tier-2/3 of the delta
// rule) — scanning itself never hashes.
type FileInfo struct {
	AbsPath    string
	RelPath    string
	Ext        string
	SizeBytes  int64
	MtimeEpoch int64
	SHA256     string
}

// ScanResult is the outcome of walking one mount folder.
type ScanResult struct {
	MountPath  string
	Files      []FileInfo
	TotalSize  int64
	Extensions map[string]int
}

// isIgnored matches relPath (and its basename, for simple patterns like
// "*.log") against every glob pattern.
func isIgnored(relPath string, patterns []string) bool {
	base := filepath.Base(relPath)
	slashRel := filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, slashRel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ScanMount walks mountPath for ingestable files, skipping anything
// matching ignorePatterns. It never computes a file hash.
func ScanMount(mountPath string, ignorePatterns []string) (*ScanResult, error) {
	result := &ScanResult{MountPath: mountPath, Extensions: map[string]int{}}

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		var subdirs []string
		var files []os.DirEntry
		for _, e := range entries {
			if e.IsDir() {
				subdirs = append(subdirs, e.Name())
			} else {
				files = append(files, e)
			}
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
		for _, f := range files {
			absPath := filepath.Join(dir, f.Name())
			relPath, err := filepath.Rel(mountPath, absPath)
			if err != nil {
				continue
			}
			if isIgnored(relPath, ignorePatterns) {
				continue
			}
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if !AllIngestableExts[ext] {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			result.Files = append(result.Files, FileInfo{
				AbsPath: absPath, RelPath: relPath, Ext: ext,
				SizeBytes: info.Size(), MtimeEpoch: info.ModTime().Unix(),
			})
			result.TotalSize += info.Size()
			result.Extensions[ext]++
		}
		sort.Strings(subdirs)
		for _, d := range subdirs {
			if err := walk(filepath.Join(dir, d)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(mountPath); err != nil {
		return nil, err
	}
	return result, nil
}

// FileSHA256 computes a file's SHA-256 hex digest, streaming in 64KiB
// blocks so large files don't need to fit in memory.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, 65536)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// TextSHA256 computes the SHA-256 hex digest of a string (used for stdin
// ingest, where there is no file to hash).
func TextSHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
