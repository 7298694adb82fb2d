package memtypes

import (
	"strings"
	"testing"
)

func TestNewItemDefaults(t *testing.T) {
	it := NewItem()
	if it.Tier != TierSTM {
		t.Errorf("Tier = %q, want stm", it.Tier)
	}
	if it.Type != TypeNote {
		t.Errorf("Type = %q, want note", it.Type)
	}
	if it.Validation != ValidationUnverified {
		t.Errorf("Validation = %q, want unverified", it.Validation)
	}
	if !it.Injectable {
		t.Error("expected Injectable true by default")
	}
	if !strings.HasPrefix(it.ID, "MEM-") {
		t.Errorf("ID = %q, want MEM- prefix", it.ID)
	}
}

func TestValidateCoercesUnknownType(t *testing.T) {
	it := NewItem()
	it.Type = "rule"
	if err := it.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.Type != TypeConstraint {
		t.Errorf("Type after coercion = %q, want constraint", it.Type)
	}

	it2 := NewItem()
	it2.Type = "totally-unknown"
	if err := it2.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it2.Type != TypeNote {
		t.Errorf("Type after fallback coercion = %q, want note", it2.Type)
	}
}

func TestValidateRejectsBadTier(t *testing.T) {
	it := NewItem()
	it.Tier = "bogus"
	if err := it.Validate(); err == nil {
		t.Error("expected error for invalid tier")
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("same content")
	b := ContentHash("same content")
	c := ContentHash("different content")
	if a != b {
		t.Error("expected identical content to hash identically")
	}
	if a == c {
		t.Error("expected different content to hash differently")
	}
	if !strings.HasPrefix(a, "sha256:") {
		t.Errorf("hash = %q, want sha256: prefix", a)
	}
}

func TestTouchIncrementsUsage(t *testing.T) {
	it := NewItem()
	if it.UsageCount != 0 {
		t.Fatalf("expected zero usage at construction")
	}
	it.Touch()
	if it.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", it.UsageCount)
	}
	if it.LastUsedAt == nil {
		t.Error("expected LastUsedAt to be set")
	}
}

func TestItemJSONRoundtrip(t *testing.T) {
	it := NewItem()
	it.Title = "roundtrip"
	it.Content = "body text"
	it.Tags = []string{"a", "b"}

	data, err := it.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	got, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.Title != it.Title || got.Content != it.Content {
		t.Errorf("roundtrip mismatch: got %+v", got)
	}
}

func TestProposalToItem(t *testing.T) {
	p := &Proposal{
		Type:           TypeFact,
		Title:          "t",
		Content:        "c",
		Tags:           []string{"x"},
		ProvenanceHint: map[string]string{"source_kind": "doc", "source_id": "file.md"},
	}
	it := p.ToItem(TierMTM, "project", 0.8)
	if it.Tier != TierMTM {
		t.Errorf("Tier = %q, want mtm", it.Tier)
	}
	if it.Provenance.SourceKind != SourceDoc {
		t.Errorf("SourceKind = %q, want doc", it.Provenance.SourceKind)
	}
	if it.Provenance.SourceID != "file.md" {
		t.Errorf("SourceID = %q, want file.md", it.Provenance.SourceID)
	}
	if it.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", it.Confidence)
	}
}

func TestProposalToItemFallsBackToProposalScope(t *testing.T) {
	p := &Proposal{Type: TypeNote, Title: "t", Content: "c", Scope: "personal"}
	it := p.ToItem(TierSTM, "", 0.5)
	if it.Scope != "personal" {
		t.Errorf("Scope = %q, want personal", it.Scope)
	}
}
