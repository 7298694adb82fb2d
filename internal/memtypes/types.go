// Package memtypes defines the canonical memory data model shared by every
// other package: memory items, their provenance, revisions, events, links,
// and the small set of enums that gate what a valid item looks like.
//
// Memory items are immutable once written; updates always create a new
// revision rather than overwrite history (see internal/store).
package memtypes

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// MemoryTier classifies how durable an item is meant to be.
type MemoryTier string

const (
	TierSTM MemoryTier = "stm"
	TierMTM MemoryTier = "mtm"
	TierLTM MemoryTier = "ltm"
)

// SearchStrategy records which step of the full-text cascade produced a
// result set.
type SearchStrategy string

const (
	StrategyAND         SearchStrategy = "AND"
	StrategyReducedAND  SearchStrategy = "REDUCED_AND"
	StrategyPrefixAND   SearchStrategy = "PREFIX_AND"
	StrategyORFallback  SearchStrategy = "OR_FALLBACK"
	StrategyLIKE        SearchStrategy = "LIKE"
)

// MemoryType is the semantic category of an item's content.
type MemoryType string

const (
	TypeFact       MemoryType = "fact"
	TypeDecision   MemoryType = "decision"
	TypeDefinition MemoryType = "definition"
	TypeConstraint MemoryType = "constraint"
	TypePattern    MemoryType = "pattern"
	TypeTodo       MemoryType = "todo"
	TypePointer    MemoryType = "pointer"
	TypeNote       MemoryType = "note"
)

// ValidationState tracks whether an item's content has been confirmed.
type ValidationState string

const (
	ValidationUnverified ValidationState = "unverified"
	ValidationVerified   ValidationState = "verified"
	ValidationContested  ValidationState = "contested"
	ValidationRetracted  ValidationState = "retracted"
)

// SourceKind identifies the origin channel of a memory's provenance.
type SourceKind string

const (
	SourceChat SourceKind = "chat"
	SourceDoc  SourceKind = "doc"
	SourceTool SourceKind = "tool"
	SourceMixed SourceKind = "mixed"
)

var validTiers = map[MemoryTier]bool{TierSTM: true, TierMTM: true, TierLTM: true}

var validTypes = map[MemoryType]bool{
	TypeFact: true, TypeDecision: true, TypeDefinition: true, TypeConstraint: true,
	TypePattern: true, TypeTodo: true, TypePointer: true, TypeNote: true,
}

var validValidationStates = map[ValidationState]bool{
	ValidationUnverified: true, ValidationVerified: true, ValidationContested: true, ValidationRetracted: true,
}

// typeCoercions maps type labels an LLM might emit to the nearest valid
// MemoryType instead of rejecting the item outright.
var typeCoercions = map[MemoryType]MemoryType{
	"process":     TypePattern,
	"rule":        TypeConstraint,
	"requirement": TypeConstraint,
}

// NowISO returns the current UTC time formatted as RFC 3339 (ISO-8601).
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewID mints a unique, prefixed identifier (e.g. "MEM-3f9a2c1b8e40").
func NewID(prefix string) string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is exceptional; fall back to a time-derived id
		// rather than panicking on a write path.
		return fmt.Sprintf("%s-%x", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(buf[:]))
}

// ContentHash returns the sha256 content hash of text, prefixed "sha256:".
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Provenance tracks the origin of a memory item.
type Provenance struct {
	SourceKind    SourceKind `json:"source_kind"`
	SourceID      string     `json:"source_id"`
	ChunkIDs      []string   `json:"chunk_ids"`
	ContentHashes []string   `json:"content_hashes"`
	CreatedAt     string     `json:"created_at"`
}

// NewProvenance returns a Provenance defaulted to a chat source stamped now.
func NewProvenance() Provenance {
	return Provenance{SourceKind: SourceChat, CreatedAt: NowISO()}
}

// Link is a typed relation {rel, to} embedded in a MemoryItem.
type Link struct {
	Rel string `json:"rel"`
	To  string `json:"to"`
}

// Item is the canonical, first-class memory object.
//
// Rules: content must be concise; long evidence belongs in a Type=pointer
// item with chunk references. Provenance.SourceID is mandatory for MTM/LTM
// (enforced by the policy engine, not here). Updates always create a new
// Revision — this struct itself carries no history.
type Item struct {
	ID             string          `json:"id"`
	Tier           MemoryTier      `json:"tier"`
	Type           MemoryType      `json:"type"`
	Title          string          `json:"title"`
	Content        string          `json:"content"`
	Tags           []string        `json:"tags"`
	Entities       []string        `json:"entities"`
	Links          []Link          `json:"links"`
	Provenance     Provenance      `json:"provenance"`
	Confidence     float64         `json:"confidence"`
	Validation     ValidationState `json:"validation"`
	Scope          string          `json:"scope"`
	ExpiresAt      *string         `json:"expires_at"`
	UsageCount     int             `json:"usage_count"`
	LastUsedAt     *string         `json:"last_used_at"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	RuleID         *string         `json:"rule_id"`
	CorpusID       string          `json:"corpus_id"`
	SupersededBy   *string         `json:"superseded_by"`
	Archived       bool            `json:"archived"`
	Injectable     bool            `json:"injectable"`
}

// NewItem constructs an Item with defaults matching the original dataclass
// (tier=stm, type=note, validation=unverified, confidence=0.5,
// injectable=true) and validates/coerces tier and type. It returns an error
// only for an invalid tier or validation state; unknown types are coerced
// to a known one (never rejected), mirroring the source system's tolerance
// for LLM-produced type labels.
func NewItem() *Item {
	now := NowISO()
	return &Item{
		ID:         NewID("MEM"),
		Tier:       TierSTM,
		Type:       TypeNote,
		Provenance: NewProvenance(),
		Confidence: 0.5,
		Validation: ValidationUnverified,
		Scope:      "project",
		CreatedAt:  now,
		UpdatedAt:  now,
		Injectable: true,
	}
}

// Validate checks tier/validation and coerces an unrecognized Type to its
// closest known value (or "note" if there is no mapping). It is called
// whenever an Item is built from untrusted input (import, proposal
// conversion, row decoding).
func (it *Item) Validate() error {
	if !validTiers[it.Tier] {
		return fmt.Errorf("invalid tier: %q", it.Tier)
	}
	if !validTypes[it.Type] {
		if mapped, ok := typeCoercions[it.Type]; ok {
			it.Type = mapped
		} else {
			it.Type = TypeNote
		}
	}
	if !validValidationStates[it.Validation] {
		return fmt.Errorf("invalid validation state: %q", it.Validation)
	}
	return nil
}

// ContentHash returns the content hash of the item's current content.
func (it *Item) ContentHash() string {
	return ContentHash(it.Content)
}

// Touch records a read/use: increments UsageCount and stamps LastUsedAt and
// UpdatedAt to now.
func (it *Item) Touch() {
	it.UsageCount++
	now := NowISO()
	it.LastUsedAt = &now
	it.UpdatedAt = now
}

// ToJSON serializes the item to indented JSON, matching the export/import
// on-disk representation.
func (it *Item) ToJSON() ([]byte, error) {
	return json.MarshalIndent(it, "", "  ")
}

// FromJSON decodes a single Item from JSON and validates it.
func FromJSON(data []byte) (*Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	return &it, nil
}

// FormatCatalogEntry renders the compact "frontier" projection of an item
// used in catalog listings.
func (it *Item) FormatCatalogEntry() map[string]any {
	return map[string]any{
		"id":         it.ID,
		"title":      it.Title,
		"tags":       it.Tags,
		"tier":       it.Tier,
		"type":       it.Type,
		"confidence": it.Confidence,
		"validation": it.Validation,
	}
}

// Proposal is a memory candidate emitted by an LLM, not yet stored — it
// must pass through the policy engine (internal/policy) before becoming an
// Item.
type Proposal struct {
	Type            MemoryType        `json:"type"`
	Title           string            `json:"title"`
	Content         string            `json:"content"`
	Tags            []string          `json:"tags"`
	WhyStore        string            `json:"why_store"`
	ProvenanceHint  map[string]string `json:"provenance_hint"`
	Scope           string            `json:"scope"`
	RuleID          *string           `json:"rule_id"`
}

// ToItem converts an accepted proposal into a memory Item at the given
// tier/scope/confidence.
func (p *Proposal) ToItem(tier MemoryTier, scope string, confidence float64) *Item {
	prov := NewProvenance()
	if sk, ok := p.ProvenanceHint["source_kind"]; ok && sk != "" {
		prov.SourceKind = SourceKind(sk)
	}
	prov.SourceID = p.ProvenanceHint["source_id"]

	effScope := scope
	if effScope == "" {
		effScope = p.Scope
	}

	it := NewItem()
	it.Tier = tier
	it.Type = p.Type
	it.Title = p.Title
	it.Content = p.Content
	it.Tags = append([]string{}, p.Tags...)
	it.Provenance = prov
	it.Confidence = confidence
	it.Scope = effScope
	it.RuleID = p.RuleID
	return it
}

// Revision is an immutable snapshot of an Item taken at write time.
type Revision struct {
	ItemID        string `json:"item_id"`
	RevisionNum   int    `json:"revision_num"`
	Snapshot      string `json:"snapshot"` // full JSON of the Item at this revision
	Reason        string `json:"reason"`
	CreatedAt     string `json:"created_at"`
}

// Event is an audit log entry for any store operation.
type Event struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"` // "write", "read", "update", "search", "consolidate", ...
	ItemID      *string        `json:"item_id"`
	Details     map[string]any `json:"details"`
	ContentHash string         `json:"content_hash"`
	Timestamp   string         `json:"timestamp"`
}

// NewEvent builds an audit event stamped with the current time.
func NewEvent(action string, itemID *string, details map[string]any, contentHash string) Event {
	return Event{
		ID:          NewID("EVT"),
		Action:      action,
		ItemID:      itemID,
		Details:     details,
		ContentHash: contentHash,
		Timestamp:   NowISO(),
	}
}

// Link_ (typed link between two items, as a standalone row rather than the
// embedded Links slice — used for the memory_links table).
type StoredLink struct {
	SrcID     string `json:"src_id"`
	DstID     string `json:"dst_id"`
	Rel       string `json:"rel"`
	CreatedAt string `json:"created_at"`
}

// CorpusHash records the last-seen hash/size/mtime of an ingested file.
type CorpusHash struct {
	MountID      string `json:"mount_id"`
	RelPath      string `json:"rel_path"`
	AbsPath      string `json:"abs_path"`
	SHA256       string `json:"sha256"`
	ChunkCount   int    `json:"chunk_count"`
	ItemIDs      []string `json:"item_ids"`
	Ext          string `json:"ext"`
	SizeBytes    int64  `json:"size_bytes"`
	MtimeEpoch   int64  `json:"mtime_epoch"`
	LangHint     string `json:"lang_hint"`
	UpdatedAt    string `json:"updated_at"`
}

// Mount records a registered folder available for sync.
type Mount struct {
	MountID         string   `json:"mount_id"`
	Name            string   `json:"name"`
	Path            string   `json:"path"`
	IgnorePatterns  []string `json:"ignore_patterns"`
	LangHint        string   `json:"lang_hint"`
	CreatedAt       string   `json:"created_at"`
	LastSyncAt      *string  `json:"last_sync_at"`
}

// CorpusMetadata tracks cross-corpus lineage (a V3.0 supplement preserved
// from the original system; not part of the closed core data model but
// kept as reserved storage since memory_items.CorpusID can point at it).
type CorpusMetadata struct {
	CorpusID       string  `json:"corpus_id"`
	CorpusLabel    string  `json:"corpus_label"`
	ParentCorpusID *string `json:"parent_corpus_id"`
	DocCount       int     `json:"doc_count"`
	ItemCount      int     `json:"item_count"`
	Scope          string  `json:"scope"`
	IngestedAt     string  `json:"ingested_at"`
}

// SearchMeta describes how a search query was resolved by the FTS cascade.
// Advisory only — callers that don't need it may ignore it.
type SearchMeta struct {
	Strategy           SearchStrategy `json:"strategy"`
	OriginalTerms      []string       `json:"original_terms"`
	EffectiveTerms     []string       `json:"effective_terms"`
	DroppedTerms       []string       `json:"dropped_terms"`
	TotalCandidates    int            `json:"total_candidates"`
	MorphologicalHint  *string        `json:"morphological_hint"`
}
