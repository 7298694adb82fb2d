// Package store is memctl's embedded database layer: a single SQLite file
// holding canonical memory items, their full revision history, an
// append-only audit event log, typed links, corpus-hash dedup metadata,
// and folder-mount registrations. Every write goes through one process-wide
// mutex, matching SQLite's single-writer model; reads run unlocked.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memctl/memctl/internal/config"
)

// Store wraps a SQLite connection implementing the memctl schema.
type Store struct {
	conn         *sql.DB
	mu           sync.Mutex // serialize writes
	ftsAvailable bool
	tokenizer    string
}

// Open opens or creates the database at the configured path.
func Open(cfg *config.StoreConfig) (*Store, error) {
	return OpenPath(cfg.DBPath, cfg.WALMode, cfg.FTSTokenizer)
}

// OpenPath opens or creates the database at path, applying WAL pragmas if
// wal is true (skipped for ":memory:") and initializing FTS5 with the given
// tokenizer spec.
func OpenPath(path string, wal bool, tokenizer string) (*Store, error) {
	if tokenizer == "" {
		tokenizer = "unicode61 remove_diacritics 2"
	}
	if err := validateFTSTokenizer(tokenizer); err != nil {
		return nil, err
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		if wal {
			dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
		}
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{conn: conn, tokenizer: tokenizer}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.initFTS5(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init fts5: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory database, for tests.
func OpenMemory() (*Store, error) {
	return OpenPath(":memory:", false, "unicode61 remove_diacritics 2")
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying *sql.DB for callers that need direct access
// (e.g. the inspect and export packages reading ad hoc aggregates).
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// FTSAvailable reports whether the FTS5 module loaded successfully. When
// false, every search falls back to LIKE-based matching.
func (s *Store) FTSAvailable() bool {
	return s.ftsAvailable
}

var ftsTokenizerPattern = regexp.MustCompile(`^[a-zA-Z0-9_ .\-]+$`)

func validateFTSTokenizer(spec string) error {
	if !ftsTokenizerPattern.MatchString(spec) {
		return fmt.Errorf("invalid fts tokenizer spec: %q", spec)
	}
	return nil
}

// ftsTokenizerPresets are the named shorthand tokenizers memctl accepts on
// the CLI/--fts-tokenizer flag, resolved to a full FTS5 tokenizer spec.
var ftsTokenizerPresets = map[string]string{
	"fr":  "unicode61 remove_diacritics 2",
	"en":  "porter unicode61 remove_diacritics 2",
	"raw": "unicode61",
}

// ResolveTokenizer expands a preset name ("fr", "en", "raw") to its full
// FTS5 spec, or returns name unchanged if it isn't a known preset.
func ResolveTokenizer(name string) string {
	if spec, ok := ftsTokenizerPresets[name]; ok {
		return spec
	}
	return name
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS memory_items (
			id TEXT PRIMARY KEY,
			tier TEXT NOT NULL CHECK(tier IN ('stm','mtm','ltm')),
			type TEXT NOT NULL,
			title TEXT DEFAULT '',
			content TEXT DEFAULT '',
			tags TEXT DEFAULT '[]',
			entities TEXT DEFAULT '[]',
			links_json TEXT DEFAULT '[]',
			provenance_json TEXT DEFAULT '{}',
			confidence REAL DEFAULT 0.5,
			validation TEXT DEFAULT 'unverified',
			scope TEXT DEFAULT 'project',
			expires_at TEXT,
			usage_count INTEGER DEFAULT 0,
			last_used_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			rule_id TEXT,
			corpus_id TEXT DEFAULT '',
			superseded_by TEXT,
			archived INTEGER DEFAULT 0,
			injectable INTEGER DEFAULT 1,
			content_hash TEXT DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_tier ON memory_items(tier)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_type ON memory_items(type)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_scope ON memory_items(scope)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_corpus ON memory_items(corpus_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_items_archived ON memory_items(archived)`,

		`CREATE TABLE IF NOT EXISTS memory_revisions (
			item_id TEXT NOT NULL,
			revision_num INTEGER NOT NULL,
			snapshot TEXT NOT NULL,
			reason TEXT DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY (item_id, revision_num)
		)`,

		`CREATE TABLE IF NOT EXISTS memory_embeddings (
			item_id TEXT PRIMARY KEY,
			vector BLOB,
			model TEXT DEFAULT '',
			created_at TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS memory_palace_locations (
			item_id TEXT PRIMARY KEY,
			room TEXT DEFAULT '',
			position TEXT DEFAULT '',
			created_at TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS memory_links (
			src_id TEXT NOT NULL,
			dst_id TEXT NOT NULL,
			rel TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (src_id, dst_id, rel)
		)`,

		`CREATE TABLE IF NOT EXISTS memory_events (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			item_id TEXT,
			details TEXT DEFAULT '{}',
			content_hash TEXT DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_events_item ON memory_events(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_events_ts ON memory_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS corpus_hashes (
			mount_id TEXT NOT NULL DEFAULT '',
			abs_path TEXT NOT NULL,
			rel_path TEXT DEFAULT '',
			sha256 TEXT NOT NULL,
			chunk_count INTEGER DEFAULT 0,
			item_ids TEXT DEFAULT '[]',
			ext TEXT DEFAULT '',
			size_bytes INTEGER DEFAULT 0,
			mtime_epoch INTEGER DEFAULT 0,
			lang_hint TEXT DEFAULT '',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (abs_path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_corpus_hashes_mount ON corpus_hashes(mount_id)`,

		`CREATE TABLE IF NOT EXISTS corpus_metadata (
			corpus_id TEXT PRIMARY KEY,
			corpus_label TEXT DEFAULT '',
			parent_corpus_id TEXT,
			doc_count INTEGER DEFAULT 0,
			item_count INTEGER DEFAULT 0,
			scope TEXT DEFAULT 'project',
			ingested_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS memory_mounts (
			mount_id TEXT PRIMARY KEY,
			name TEXT DEFAULT '',
			path TEXT NOT NULL UNIQUE,
			ignore_patterns TEXT DEFAULT '[]',
			lang_hint TEXT DEFAULT '',
			created_at TEXT NOT NULL,
			last_sync_at TEXT
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, stmt)
		}
	}

	current := s.SchemaVersion()
	versioned := []struct {
		version int
		fn      func() error
	}{
		{1, s.migrateV1},
	}
	for _, m := range versioned {
		if current < m.version {
			if err := m.fn(); err != nil {
				return fmt.Errorf("migration v%d: %w", m.version, err)
			}
			if err := s.SetMeta("schema_version", strconv.Itoa(m.version)); err != nil {
				return fmt.Errorf("record migration v%d: %w", m.version, err)
			}
		}
	}
	if _, ok := s.GetMeta("created_by"); !ok {
		_ = s.SetMeta("created_by", "memctl")
	}
	return nil
}

// migrateV1 is the baseline version marker; the schema above already
// contains every column a first-run database needs.
func (s *Store) migrateV1() error { return nil }

// SchemaVersion returns the current schema version (0 if unset).
func (s *Store) SchemaVersion() int {
	v, ok := s.GetMeta("schema_version")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetMeta reads a key from schema_meta.
func (s *Store) GetMeta(key string) (string, bool) {
	var v string
	if err := s.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&v); err != nil {
		return "", false
	}
	return v, true
}

// SetMeta upserts a key into schema_meta.
func (s *Store) SetMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// hasColumn reports whether table currently has column — used by forward
// migrations that must stay idempotent (ALTER TABLE ADD COLUMN only if
// missing).
func (s *Store) hasColumn(table, column string) bool {
	rows, err := s.conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, primaryK int
		var defaultV sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultV, &primaryK); err != nil {
			continue
		}
		if strings.EqualFold(name, column) {
			return true
		}
	}
	return false
}

// IntegrityCheck runs PRAGMA integrity_check.
func (s *Store) IntegrityCheck() error {
	var result string
	if err := s.conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Reset clears every memory table inside one transaction. If preserveMounts
// is false, registered mounts are cleared too. If dryRun is true, no
// changes are made and Reset only reports the row counts it would clear.
func (s *Store) Reset(preserveMounts, dryRun bool) (map[string]int, error) {
	counts := map[string]int{}
	tables := []string{"memory_items", "memory_revisions", "memory_events", "memory_links", "corpus_hashes", "corpus_metadata"}
	if !preserveMounts {
		tables = append(tables, "memory_mounts")
	}
	for _, t := range tables {
		var n int
		if err := s.conn.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	if dryRun {
		return counts, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.conn.Begin()
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", t)); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return counts, nil
}
