// Package sync scans mounted folders, detects changed files via a 3-tier
// delta rule, and ingests their content into the store as paragraph-bounded
// memory chunks.
package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// textExts are read directly as UTF-8 text.
var textExts = map[string]bool{
	".md": true, ".txt": true, ".rst": true, ".csv": true, ".tsv": true,
	".html": true, ".htm": true, ".xml": true, ".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".go": true, ".rs": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true,
	".css": true, ".scss": true, ".less": true,
	".sh": true, ".bash": true, ".zsh": true,
	".sql": true, ".r": true, ".jl": true, ".lua": true, ".rb": true, ".php": true, ".swift": true, ".kt": true,
	".dockerfile": true,
}

// binaryExts are recognized but not extractable in this build — no office
// document or PDF extraction library is part of the domain stack, matching
// the file-format-extractor exclusion named at the system's interface
// boundary.
var binaryExts = map[string]bool{
	".docx": true, ".odt": true, ".pptx": true, ".odp": true, ".xlsx": true, ".ods": true, ".pdf": true,
}

// AllIngestableExts is every extension scan/resolve will consider, text and
// binary alike (binary files are recognized so they appear in scan results
// and produce a clear error at ingest time, rather than being silently
// invisible to sync).
var AllIngestableExts = func() map[string]bool {
	m := make(map[string]bool, len(textExts)+len(binaryExts))
	for e := range textExts {
		m[e] = true
	}
	for e := range binaryExts {
		m[e] = true
	}
	return m
}()

// ReadFileText reads a supported file's text content. Binary document and
// PDF formats are recognized but return a descriptive error: no extraction
// library for them is part of this build.
func ReadFileText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if binaryExts[ext] {
		return "", fmt.Errorf("no extractor available for %s files (path=%s): office/PDF extraction is out of scope for this build", ext, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// extTagMap maps an extension to a short content-type tag used by auto
// format inference.
var extTagMap = map[string]string{
	".md": "markdown", ".txt": "text", ".py": "python", ".java": "java",
	".yaml": "yaml", ".yml": "yaml", ".json": "json", ".csv": "csv", ".rst": "rst",
	".html": "html", ".htm": "html", ".xml": "xml", ".toml": "toml",
	".js": "javascript", ".ts": "typescript", ".go": "go", ".rs": "rust",
	".c": "c", ".cpp": "cpp", ".sh": "shell", ".sql": "sql", ".css": "css",
	".docx": "docx", ".odt": "odt", ".pptx": "pptx", ".odp": "odp", ".xlsx": "xlsx", ".ods": "ods", ".pdf": "pdf",
}
