package store

import (
	"fmt"
)

// initFTS5 creates the memory_items_fts external-content virtual table and
// its four sync triggers. If the sqlite3 build lacks the FTS5 module, this
// fails non-fatally: ftsAvailable stays false and every search call falls
// back to LIKE matching instead.
func (s *Store) initFTS5() error {
	schema := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_items_fts USING fts5(
			title, content, tags, entities,
			content='memory_items', content_rowid='rowid',
			tokenize='%s'
		)`, s.tokenizer)

	if _, err := s.conn.Exec(schema); err != nil {
		s.ftsAvailable = false
		return nil // non-fatal: degrade to LIKE search
	}
	s.ftsAvailable = true

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS memory_items_fts_ai AFTER INSERT ON memory_items BEGIN
			INSERT INTO memory_items_fts(rowid, title, content, tags, entities)
			VALUES (new.rowid, new.title, new.content, new.tags, new.entities);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memory_items_fts_bd BEFORE DELETE ON memory_items BEGIN
			INSERT INTO memory_items_fts(memory_items_fts, rowid, title, content, tags, entities)
			VALUES ('delete', old.rowid, old.title, old.content, old.tags, old.entities);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memory_items_fts_bu BEFORE UPDATE ON memory_items BEGIN
			INSERT INTO memory_items_fts(memory_items_fts, rowid, title, content, tags, entities)
			VALUES ('delete', old.rowid, old.title, old.content, old.tags, old.entities);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memory_items_fts_au AFTER UPDATE ON memory_items BEGIN
			INSERT INTO memory_items_fts(rowid, title, content, tags, entities)
			VALUES (new.rowid, new.title, new.content, new.tags, new.entities);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.conn.Exec(t); err != nil {
			return fmt.Errorf("fts trigger: %w", err)
		}
	}
	return nil
}

// RebuildFTS rebuilds the FTS5 index in place, or — if tokenizer differs
// from the table's current tokenizer — drops and recreates the table and
// triggers under the new tokenizer. Returns the number of items indexed,
// or -1 if FTS5 is unavailable.
func (s *Store) RebuildFTS(tokenizer string) (int, error) {
	if !s.ftsAvailable {
		return -1, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if tokenizer != "" && tokenizer != s.tokenizer {
		if err := validateFTSTokenizer(tokenizer); err != nil {
			return -1, err
		}
		drops := []string{
			`DROP TRIGGER IF EXISTS memory_items_fts_ai`,
			`DROP TRIGGER IF EXISTS memory_items_fts_bd`,
			`DROP TRIGGER IF EXISTS memory_items_fts_bu`,
			`DROP TRIGGER IF EXISTS memory_items_fts_au`,
			`DROP TABLE IF EXISTS memory_items_fts`,
		}
		for _, d := range drops {
			if _, err := s.conn.Exec(d); err != nil {
				return -1, err
			}
		}
		s.tokenizer = tokenizer
		if err := s.initFTS5(); err != nil {
			return -1, err
		}
	} else {
		if _, err := s.conn.Exec(`INSERT INTO memory_items_fts(memory_items_fts) VALUES('rebuild')`); err != nil {
			return -1, err
		}
	}

	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM memory_items`).Scan(&n); err != nil {
		return -1, err
	}
	return n, nil
}

// Tokenizer returns the FTS5 tokenizer spec currently in effect.
func (s *Store) Tokenizer() string {
	return s.tokenizer
}
