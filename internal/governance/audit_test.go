package governance

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAuditLoggerWritesOneJSONLRecord(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)
	rid := a.NewRID()
	a.Log("memory_write", rid, "s1", "memory.db", "ok", nil, 12*time.Millisecond)

	line := strings.TrimSpace(buf.String())
	if strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("expected exactly one JSONL line, got %q", buf.String())
	}

	var rec AuditRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("expected valid JSON: %v", err)
	}
	if rec.V != AuditSchemaVersion || rec.Tool != "memory_write" || rec.SID != "s1" || rec.Outcome != "ok" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.RID != rid {
		t.Errorf("expected rid %q, got %q", rid, rec.RID)
	}
}

func TestAuditLoggerNewRIDIsUnique(t *testing.T) {
	a := NewAuditLogger(&bytes.Buffer{})
	if a.NewRID() == a.NewRID() {
		t.Error("expected distinct request ids")
	}
}

func TestAuditLoggerIncludesDetail(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)
	a.Log("memory_write", a.NewRID(), "s1", "memory.db", "rejected",
		map[string]any{"bytes": 42}, time.Millisecond)

	var rec AuditRecord
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Detail["bytes"].(float64) != 42 {
		t.Errorf("expected detail bytes=42, got %v", rec.Detail)
	}
}

func TestAuditLoggerMultipleCallsProduceMultipleLines(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLogger(&buf)
	for i := 0; i < 3; i++ {
		a.Log("memory_recall", a.NewRID(), "s1", "memory.db", "ok", nil, 0)
	}
	scanner := bufio.NewScanner(&buf)
	count := 0
	for scanner.Scan() {
		count++
	}
	if count != 3 {
		t.Errorf("expected 3 lines, got %d", count)
	}
}

func TestMakeContentDetailShortContent(t *testing.T) {
	d := MakeContentDetail("hello world", nil)
	if d["bytes"].(int) != len("hello world") {
		t.Errorf("unexpected byte count: %v", d["bytes"])
	}
	if d["preview"].(string) != "hello world" {
		t.Errorf("expected untruncated preview, got %v", d["preview"])
	}
	if _, ok := d["policy"]; ok {
		t.Error("expected no policy key when nil is passed")
	}
}

func TestMakeContentDetailTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("a", 200)
	d := MakeContentDetail(long, nil)
	preview := d["preview"].(string)
	if !strings.HasSuffix(preview, "…") {
		t.Errorf("expected ellipsis-truncated preview, got %q", preview)
	}
	if len([]rune(preview)) > PreviewMaxChars+1 {
		t.Errorf("expected preview capped near %d runes, got %d", PreviewMaxChars, len([]rune(preview)))
	}
}

func TestMakeContentDetailSanitizesNewlines(t *testing.T) {
	d := MakeContentDetail("line one\nline two\r\n", nil)
	preview := d["preview"].(string)
	if strings.ContainsAny(preview, "\n\r") {
		t.Errorf("expected newlines stripped from preview, got %q", preview)
	}
}

func TestMakeContentDetailIncludesPolicy(t *testing.T) {
	d := MakeContentDetail("x", map[string]any{"verdict": "accept"})
	policy, ok := d["policy"].(map[string]any)
	if !ok || policy["verdict"] != "accept" {
		t.Errorf("expected policy passthrough, got %v", d["policy"])
	}
}
