package store

import (
	"database/sql"
	"encoding/json"

	"github.com/memctl/memctl/internal/memtypes"
)

// WriteCorpusHash upserts the hash/size/mtime record for an ingested file,
// keyed by its absolute path. Used by sync to decide new/changed/unchanged.
func (s *Store) WriteCorpusHash(h *memtypes.CorpusHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idsJSON, _ := json.Marshal(h.ItemIDs)
	h.UpdatedAt = memtypes.NowISO()
	_, err := s.conn.Exec(`
		INSERT INTO corpus_hashes (mount_id, abs_path, rel_path, sha256, chunk_count, item_ids, ext, size_bytes, mtime_epoch, lang_hint, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(abs_path) DO UPDATE SET
			mount_id=excluded.mount_id, rel_path=excluded.rel_path, sha256=excluded.sha256,
			chunk_count=excluded.chunk_count, item_ids=excluded.item_ids, ext=excluded.ext,
			size_bytes=excluded.size_bytes, mtime_epoch=excluded.mtime_epoch,
			lang_hint=excluded.lang_hint, updated_at=excluded.updated_at`,
		h.MountID, h.AbsPath, h.RelPath, h.SHA256, h.ChunkCount, string(idsJSON), h.Ext, h.SizeBytes, h.MtimeEpoch, h.LangHint, h.UpdatedAt,
	)
	return err
}

// ReadCorpusHash fetches the corpus hash record for absPath, or (nil, nil)
// if no file has been registered at that path.
func (s *Store) ReadCorpusHash(absPath string) (*memtypes.CorpusHash, error) {
	row := s.conn.QueryRow(`SELECT mount_id, abs_path, rel_path, sha256, chunk_count, item_ids, ext, size_bytes, mtime_epoch, lang_hint, updated_at
		FROM corpus_hashes WHERE abs_path = ?`, absPath)
	var h memtypes.CorpusHash
	var idsJSON string
	err := row.Scan(&h.MountID, &h.AbsPath, &h.RelPath, &h.SHA256, &h.ChunkCount, &idsJSON, &h.Ext, &h.SizeBytes, &h.MtimeEpoch, &h.LangHint, &h.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(idsJSON), &h.ItemIDs)
	return &h, nil
}

// ListCorpusFiles returns every registered corpus-hash row, optionally
// scoped to one mount — the raw material inspect aggregates over.
func (s *Store) ListCorpusFiles(mountID string) ([]*memtypes.CorpusHash, error) {
	q := `SELECT mount_id, abs_path, rel_path, sha256, chunk_count, item_ids, ext, size_bytes, mtime_epoch, lang_hint, updated_at FROM corpus_hashes`
	var args []any
	if mountID != "" {
		q += ` WHERE mount_id = ?`
		args = append(args, mountID)
	}
	rows, err := s.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memtypes.CorpusHash
	for rows.Next() {
		var h memtypes.CorpusHash
		var idsJSON string
		if err := rows.Scan(&h.MountID, &h.AbsPath, &h.RelPath, &h.SHA256, &h.ChunkCount, &idsJSON, &h.Ext, &h.SizeBytes, &h.MtimeEpoch, &h.LangHint, &h.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(idsJSON), &h.ItemIDs)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// RemoveCorpusFile deletes the corpus-hash row for absPath (used when a
// mount is removed or a file is confirmed deleted from disk).
func (s *Store) RemoveCorpusFile(absPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`DELETE FROM corpus_hashes WHERE abs_path = ?`, absPath)
	return err
}

// WriteMount registers a folder mount, deduping by path: if path is
// already registered, its existing mount_id is returned unchanged.
func (s *Store) WriteMount(m *memtypes.Mount) (string, error) {
	if existing, err := s.ReadMountByPath(m.Path); err != nil {
		return "", err
	} else if existing != nil {
		return existing.MountID, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.MountID == "" {
		m.MountID = memtypes.NewID("MNT")
	}
	if m.CreatedAt == "" {
		m.CreatedAt = memtypes.NowISO()
	}
	patternsJSON, _ := json.Marshal(m.IgnorePatterns)
	_, err := s.conn.Exec(
		`INSERT INTO memory_mounts (mount_id, name, path, ignore_patterns, lang_hint, created_at, last_sync_at)
		 VALUES (?,?,?,?,?,?,?)`,
		m.MountID, m.Name, m.Path, string(patternsJSON), m.LangHint, m.CreatedAt, m.LastSyncAt,
	)
	if err != nil {
		return "", err
	}
	return m.MountID, nil
}

// ReadMount fetches a mount by mount_id.
func (s *Store) ReadMount(mountID string) (*memtypes.Mount, error) {
	return s.readMountWhere(`mount_id = ?`, mountID)
}

// ReadMountByPath fetches a mount by its registered folder path.
func (s *Store) ReadMountByPath(path string) (*memtypes.Mount, error) {
	return s.readMountWhere(`path = ?`, path)
}

func (s *Store) readMountWhere(cond string, arg any) (*memtypes.Mount, error) {
	row := s.conn.QueryRow(`SELECT mount_id, name, path, ignore_patterns, lang_hint, created_at, last_sync_at
		FROM memory_mounts WHERE `+cond, arg)
	var m memtypes.Mount
	var patternsJSON string
	var lastSync sql.NullString
	err := row.Scan(&m.MountID, &m.Name, &m.Path, &patternsJSON, &m.LangHint, &m.CreatedAt, &lastSync)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(patternsJSON), &m.IgnorePatterns)
	if lastSync.Valid {
		m.LastSyncAt = &lastSync.String
	}
	return &m, nil
}

// ListMounts returns every registered mount.
func (s *Store) ListMounts() ([]*memtypes.Mount, error) {
	rows, err := s.conn.Query(`SELECT mount_id, name, path, ignore_patterns, lang_hint, created_at, last_sync_at FROM memory_mounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*memtypes.Mount
	for rows.Next() {
		var m memtypes.Mount
		var patternsJSON string
		var lastSync sql.NullString
		if err := rows.Scan(&m.MountID, &m.Name, &m.Path, &patternsJSON, &m.LangHint, &m.CreatedAt, &lastSync); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(patternsJSON), &m.IgnorePatterns)
		if lastSync.Valid {
			m.LastSyncAt = &lastSync.String
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// RemoveMount deletes a mount by mount_id or by name.
func (s *Store) RemoveMount(mountIDOrName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`DELETE FROM memory_mounts WHERE mount_id = ? OR name = ?`, mountIDOrName, mountIDOrName)
	return err
}

// UpdateMountSyncTime stamps a mount's last_sync_at to now.
func (s *Store) UpdateMountSyncTime(mountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`UPDATE memory_mounts SET last_sync_at = ? WHERE mount_id = ?`, memtypes.NowISO(), mountID)
	return err
}

// WriteCorpusMetadata upserts a corpus lineage record (a supplemented V3.0
// feature carried from the original system — see SPEC_FULL.md §3).
func (s *Store) WriteCorpusMetadata(m *memtypes.CorpusMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.IngestedAt == "" {
		m.IngestedAt = memtypes.NowISO()
	}
	_, err := s.conn.Exec(`
		INSERT INTO corpus_metadata (corpus_id, corpus_label, parent_corpus_id, doc_count, item_count, scope, ingested_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(corpus_id) DO UPDATE SET
			corpus_label=excluded.corpus_label, parent_corpus_id=excluded.parent_corpus_id,
			doc_count=excluded.doc_count, item_count=excluded.item_count, scope=excluded.scope`,
		m.CorpusID, m.CorpusLabel, m.ParentCorpusID, m.DocCount, m.ItemCount, m.Scope, m.IngestedAt,
	)
	return err
}

// ReadCorpusMetadata fetches a corpus lineage record by id.
func (s *Store) ReadCorpusMetadata(corpusID string) (*memtypes.CorpusMetadata, error) {
	row := s.conn.QueryRow(`SELECT corpus_id, corpus_label, parent_corpus_id, doc_count, item_count, scope, ingested_at
		FROM corpus_metadata WHERE corpus_id = ?`, corpusID)
	var m memtypes.CorpusMetadata
	var parent sql.NullString
	err := row.Scan(&m.CorpusID, &m.CorpusLabel, &parent, &m.DocCount, &m.ItemCount, &m.Scope, &m.IngestedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		m.ParentCorpusID = &parent.String
	}
	return &m, nil
}

// ListCorpora returns every registered corpus-metadata record.
func (s *Store) ListCorpora() ([]*memtypes.CorpusMetadata, error) {
	rows, err := s.conn.Query(`SELECT corpus_id, corpus_label, parent_corpus_id, doc_count, item_count, scope, ingested_at FROM corpus_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*memtypes.CorpusMetadata
	for rows.Next() {
		var m memtypes.CorpusMetadata
		var parent sql.NullString
		if err := rows.Scan(&m.CorpusID, &m.CorpusLabel, &parent, &m.DocCount, &m.ItemCount, &m.Scope, &m.IngestedAt); err != nil {
			return nil, err
		}
		if parent.Valid {
			m.ParentCorpusID = &parent.String
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// WriteEmbedding stores a raw embedding vector for an item. The
// memory_embeddings table is reserved per SPEC_FULL.md — this is plain
// blob storage, never consulted by search (no vector search is performed
// anywhere in this build).
func (s *Store) WriteEmbedding(itemID string, vector []byte, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`
		INSERT INTO memory_embeddings (item_id, vector, model, created_at) VALUES (?,?,?,?)
		ON CONFLICT(item_id) DO UPDATE SET vector=excluded.vector, model=excluded.model, created_at=excluded.created_at`,
		itemID, vector, model, memtypes.NowISO(),
	)
	return err
}

// ReadEmbedding fetches a stored embedding vector, or (nil, nil) if none.
func (s *Store) ReadEmbedding(itemID string) ([]byte, error) {
	var v []byte
	err := s.conn.QueryRow(`SELECT vector FROM memory_embeddings WHERE item_id = ?`, itemID).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

// WritePalaceLocation stores a reserved-feature palace location for an
// item (unused by any core operation; present as schema + accessor surface
// per SPEC_FULL.md's "table reserved" note).
func (s *Store) WritePalaceLocation(itemID, room, position string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(`
		INSERT INTO memory_palace_locations (item_id, room, position, created_at) VALUES (?,?,?,?)
		ON CONFLICT(item_id) DO UPDATE SET room=excluded.room, position=excluded.position`,
		itemID, room, position, memtypes.NowISO(),
	)
	return err
}

// ReadPalaceLocation fetches a reserved palace location, or (nil, nil) if none.
func (s *Store) ReadPalaceLocation(itemID string) (room, position string, err error) {
	err = s.conn.QueryRow(`SELECT room, position FROM memory_palace_locations WHERE item_id = ?`, itemID).Scan(&room, &position)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	return room, position, err
}

// WriteLink stores a typed link row (distinct from the Links slice
// embedded in an Item, used for graph-style traversal queries).
func (s *Store) WriteLink(l *memtypes.StoredLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.CreatedAt == "" {
		l.CreatedAt = memtypes.NowISO()
	}
	_, err := s.conn.Exec(`INSERT OR IGNORE INTO memory_links (src_id, dst_id, rel, created_at) VALUES (?,?,?,?)`,
		l.SrcID, l.DstID, l.Rel, l.CreatedAt)
	return err
}

// ListLinksFrom returns every link originating at srcID.
func (s *Store) ListLinksFrom(srcID string) ([]*memtypes.StoredLink, error) {
	rows, err := s.conn.Query(`SELECT src_id, dst_id, rel, created_at FROM memory_links WHERE src_id = ?`, srcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*memtypes.StoredLink
	for rows.Next() {
		var l memtypes.StoredLink
		if err := rows.Scan(&l.SrcID, &l.DstID, &l.Rel, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
