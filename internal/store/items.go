package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/memctl/memctl/internal/memtypes"
)

// WriteItem inserts or replaces item, bumps its revision history, and logs
// a "write" audit event, all inside one transaction/commit. reason is
// recorded on both the revision and the event (e.g. "create", "update",
// "ingest").
func (s *Store) WriteItem(it *memtypes.Item, reason string) error {
	if reason == "" {
		reason = "create"
	}
	it.UpdatedAt = memtypes.NowISO()
	ch := it.ContentHash()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tagsJSON, _ := json.Marshal(it.Tags)
	entitiesJSON, _ := json.Marshal(it.Entities)
	linksJSON, _ := json.Marshal(it.Links)
	provJSON, _ := json.Marshal(it.Provenance)

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO memory_items (
			id, tier, type, title, content, tags, entities, links_json, provenance_json,
			confidence, validation, scope, expires_at, usage_count, last_used_at,
			created_at, updated_at, rule_id, corpus_id, superseded_by, archived, injectable,
			content_hash
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, string(it.Tier), string(it.Type), it.Title, it.Content,
		string(tagsJSON), string(entitiesJSON), string(linksJSON), string(provJSON),
		it.Confidence, string(it.Validation), it.Scope, it.ExpiresAt, it.UsageCount, it.LastUsedAt,
		it.CreatedAt, it.UpdatedAt, it.RuleID, it.CorpusID, it.SupersededBy, boolToInt(it.Archived), boolToInt(it.Injectable),
		ch,
	)
	if err != nil {
		return fmt.Errorf("write item: %w", err)
	}

	revNum, err := nextRevisionNum(tx, it.ID)
	if err != nil {
		return err
	}
	snapshot, err := it.ToJSON()
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO memory_revisions (item_id, revision_num, snapshot, reason, created_at) VALUES (?,?,?,?,?)`,
		it.ID, revNum, string(snapshot), reason, memtypes.NowISO(),
	)
	if err != nil {
		return fmt.Errorf("write revision: %w", err)
	}

	if err := logEventTx(tx, "write", &it.ID, map[string]any{"reason": reason}, ch); err != nil {
		return err
	}

	return tx.Commit()
}

func nextRevisionNum(tx *sql.Tx, itemID string) (int, error) {
	var max sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(revision_num) FROM memory_revisions WHERE item_id = ?`, itemID).Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}

// ReadItem fetches an item by id, recording a "read" event and bumping
// usage tracking. Returns (nil, nil) if not found — reads have no side
// effect in that case.
func (s *Store) ReadItem(id string) (*memtypes.Item, error) {
	row := s.conn.QueryRow(itemSelectSQL()+` WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	it.Touch()
	s.mu.Lock()
	_, uerr := s.conn.Exec(
		`UPDATE memory_items SET usage_count = ?, last_used_at = ?, updated_at = ? WHERE id = ?`,
		it.UsageCount, it.LastUsedAt, it.UpdatedAt, it.ID,
	)
	if uerr == nil {
		uerr = logEvent(s.conn, "read", &it.ID, nil, "")
	}
	s.mu.Unlock()
	if uerr != nil {
		return it, uerr
	}
	return it, nil
}

// forbiddenPatchFields may never be changed via UpdateItem.
var forbiddenPatchFields = map[string]bool{"id": true, "created_at": true}

// UpdateItem applies a patch of field->value pairs to the item and writes
// it back via WriteItem(reason="update"). Unknown or forbidden keys are
// silently ignored, matching the original system's tolerant patch
// semantics (an LLM-driven update should never hard-fail on an extra key).
func (s *Store) UpdateItem(id string, patch map[string]any) error {
	it, err := s.readItemNoTouch(id)
	if err != nil {
		return err
	}
	if it == nil {
		return fmt.Errorf("item not found: %s", id)
	}
	applyPatch(it, patch)
	return s.WriteItem(it, "update")
}

// DeleteItem soft-deletes by setting archived=true via UpdateItem.
func (s *Store) DeleteItem(id string) error {
	return s.UpdateItem(id, map[string]any{"archived": true})
}

// SupersedeItem marks id as archived and superseded by newID.
func (s *Store) SupersedeItem(id, newID string) error {
	return s.UpdateItem(id, map[string]any{"superseded_by": newID, "archived": true})
}

func (s *Store) readItemNoTouch(id string) (*memtypes.Item, error) {
	row := s.conn.QueryRow(itemSelectSQL()+` WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return it, err
}

func applyPatch(it *memtypes.Item, patch map[string]any) {
	for k, v := range patch {
		if forbiddenPatchFields[k] {
			continue
		}
		switch k {
		case "tier":
			if s, ok := v.(string); ok {
				it.Tier = memtypes.MemoryTier(s)
			}
		case "type":
			if s, ok := v.(string); ok {
				it.Type = memtypes.MemoryType(s)
			}
		case "title":
			if s, ok := v.(string); ok {
				it.Title = s
			}
		case "content":
			if s, ok := v.(string); ok {
				it.Content = s
			}
		case "tags":
			if ss, ok := toStringSlice(v); ok {
				it.Tags = ss
			}
		case "entities":
			if ss, ok := toStringSlice(v); ok {
				it.Entities = ss
			}
		case "confidence":
			if f, ok := v.(float64); ok {
				it.Confidence = f
			}
		case "validation":
			if s, ok := v.(string); ok {
				it.Validation = memtypes.ValidationState(s)
			}
		case "scope":
			if s, ok := v.(string); ok {
				it.Scope = s
			}
		case "expires_at":
			if s, ok := v.(string); ok {
				it.ExpiresAt = &s
			}
		case "rule_id":
			if s, ok := v.(string); ok {
				it.RuleID = &s
			}
		case "corpus_id":
			if s, ok := v.(string); ok {
				it.CorpusID = s
			}
		case "superseded_by":
			if s, ok := v.(string); ok {
				it.SupersededBy = &s
			}
		case "archived":
			if b, ok := v.(bool); ok {
				it.Archived = b
			}
		case "injectable":
			if b, ok := v.(bool); ok {
				it.Injectable = b
			}
		case "provenance":
			if m, ok := v.(map[string]any); ok {
				if sk, ok := m["source_kind"].(string); ok {
					it.Provenance.SourceKind = memtypes.SourceKind(sk)
				}
				if sid, ok := m["source_id"].(string); ok {
					it.Provenance.SourceID = sid
				}
			}
		}
	}
}

func toStringSlice(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss, true
		}
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func itemSelectSQL() string {
	return `SELECT id, tier, type, title, content, tags, entities, links_json, provenance_json,
		confidence, validation, scope, expires_at, usage_count, last_used_at,
		created_at, updated_at, rule_id, corpus_id, superseded_by, archived, injectable
		FROM memory_items`
}

// rowScanner abstracts *sql.Row / *sql.Rows so scanItem works with either.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem decodes one memory_items row. Missing JSON columns (tags,
// entities, links, provenance) degrade to their zero value rather than
// erroring, matching the original store's tolerant reads across schema
// versions.
func scanItem(row rowScanner) (*memtypes.Item, error) {
	var it memtypes.Item
	var tier, typ, validation string
	var tagsJSON, entitiesJSON, linksJSON, provJSON string
	var expiresAt, lastUsedAt, ruleID, supersededBy sql.NullString
	var archived, injectable int

	err := row.Scan(
		&it.ID, &tier, &typ, &it.Title, &it.Content, &tagsJSON, &entitiesJSON, &linksJSON, &provJSON,
		&it.Confidence, &validation, &it.Scope, &expiresAt, &it.UsageCount, &lastUsedAt,
		&it.CreatedAt, &it.UpdatedAt, &ruleID, &it.CorpusID, &supersededBy, &archived, &injectable,
	)
	if err != nil {
		return nil, err
	}

	it.Tier = memtypes.MemoryTier(tier)
	it.Type = memtypes.MemoryType(typ)
	it.Validation = memtypes.ValidationState(validation)
	it.Archived = archived != 0
	it.Injectable = injectable != 0
	if expiresAt.Valid {
		it.ExpiresAt = &expiresAt.String
	}
	if lastUsedAt.Valid {
		it.LastUsedAt = &lastUsedAt.String
	}
	if ruleID.Valid {
		it.RuleID = &ruleID.String
	}
	if supersededBy.Valid {
		it.SupersededBy = &supersededBy.String
	}
	_ = json.Unmarshal([]byte(tagsJSON), &it.Tags)
	_ = json.Unmarshal([]byte(entitiesJSON), &it.Entities)
	_ = json.Unmarshal([]byte(linksJSON), &it.Links)
	_ = json.Unmarshal([]byte(provJSON), &it.Provenance)

	return &it, nil
}

// execer abstracts *sql.DB / *sql.Tx for logEvent/logEventTx sharing.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func logEvent(db execer, action string, itemID *string, details map[string]any, contentHash string) error {
	ev := memtypes.NewEvent(action, itemID, details, contentHash)
	detailsJSON, _ := json.Marshal(ev.Details)
	_, err := db.Exec(
		`INSERT INTO memory_events (id, action, item_id, details, content_hash, timestamp) VALUES (?,?,?,?,?,?)`,
		ev.ID, ev.Action, ev.ItemID, string(detailsJSON), ev.ContentHash, ev.Timestamp,
	)
	return err
}

func logEventTx(tx *sql.Tx, action string, itemID *string, details map[string]any, contentHash string) error {
	return logEvent(tx, action, itemID, details, contentHash)
}

// CountItems returns the total number of (non-archived, by default) items.
func (s *Store) CountItems(includeArchived bool) (int, error) {
	q := `SELECT COUNT(*) FROM memory_items`
	if !includeArchived {
		q += ` WHERE archived = 0`
	}
	var n int
	err := s.conn.QueryRow(q).Scan(&n)
	return n, err
}

// Stats is a snapshot of store-wide counters, used by the `stats` CLI
// command and the memory_stats MCP tool.
type Stats struct {
	Total           int            `json:"total"`
	ByTier          map[string]int `json:"by_tier"`
	ByType          map[string]int `json:"by_type"`
	EventsCount     int            `json:"events_count"`
	EmbeddingsCount int            `json:"embeddings_count"`
	FTS5Available   bool           `json:"fts5_available"`
	FTSTokenizer    string         `json:"fts_tokenizer"`
}

// Stats computes store-wide counters.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{ByTier: map[string]int{}, ByType: map[string]int{}, FTS5Available: s.ftsAvailable, FTSTokenizer: s.tokenizer}

	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM memory_items`).Scan(&st.Total); err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(`SELECT tier, COUNT(*) FROM memory_items GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err == nil {
			st.ByTier[tier] = n
		}
	}
	rows.Close()

	rows, err = s.conn.Query(`SELECT type, COUNT(*) FROM memory_items GROUP BY type`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err == nil {
			st.ByType[typ] = n
		}
	}
	rows.Close()

	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM memory_events`).Scan(&st.EventsCount); err != nil {
		return nil, err
	}
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM memory_embeddings`).Scan(&st.EmbeddingsCount); err != nil {
		return nil, err
	}
	return st, nil
}
