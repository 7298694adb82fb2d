package sync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/store"
)

// RegisterMount registers folderPath as a mount point. Mount registration
// is metadata-only: no scanning, no ingestion. Idempotent — registering an
// already-known canonical path returns its existing mount_id.
func RegisterMount(s *store.Store, folderPath, name string, ignorePatterns []string, langHint string) (string, error) {
	canonical, err := filepath.EvalSymlinks(folderPath)
	if err != nil {
		return "", fmt.Errorf("mount path does not exist: %s", folderPath)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return "", fmt.Errorf("mount path does not exist: %s", canonical)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("mount path is not a directory: %s", canonical)
	}

	mountID, err := s.WriteMount(&memtypes.Mount{
		Name: name, Path: canonical, IgnorePatterns: ignorePatterns, LangHint: langHint,
	})
	if err != nil {
		return "", err
	}
	return mountID, nil
}

// ListMounts returns every registered mount.
func ListMounts(s *store.Store) ([]*memtypes.Mount, error) {
	return s.ListMounts()
}

// RemoveMount deletes a mount by id or name.
func RemoveMount(s *store.Store, mountIDOrName string) error {
	return s.RemoveMount(mountIDOrName)
}
