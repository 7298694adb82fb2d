package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditSchemaVersion is bumped whenever a field in AuditRecord changes
// meaning or is removed.
const AuditSchemaVersion = 1

// PreviewMaxChars bounds how much raw content an audit record may
// quote back, per the logger's privacy contract: never log content
// beyond a short preview.
const PreviewMaxChars = 120

// AuditRecord is one structured JSONL line describing an MCP tool
// call's outcome.
type AuditRecord struct {
	V       int            `json:"v"`
	TS      string         `json:"ts"`
	RID     string         `json:"rid"`
	Tool    string         `json:"tool"`
	SID     string         `json:"sid"`
	DB      string         `json:"db"`
	Outcome string         `json:"outcome"` // "ok", "error", "rejected", "rate_limited"
	Detail  map[string]any `json:"d,omitempty"`
	MS      float64        `json:"ms"`
}

// AuditLogger writes one JSONL record per MCP tool call. Log is
// fire-and-forget: a marshal or write failure is swallowed rather than
// surfaced, since an audit failure must never disrupt the tool call it
// is describing.
type AuditLogger struct {
	mu     sync.Mutex
	output io.Writer
}

// NewAuditLogger builds a logger writing to output, or os.Stderr if
// output is nil.
func NewAuditLogger(output io.Writer) *AuditLogger {
	if output == nil {
		output = os.Stderr
	}
	return &AuditLogger{output: output}
}

// NewRID generates a new request ID.
func (a *AuditLogger) NewRID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Log writes one audit record. latency is the tool call's wall-clock
// duration.
func (a *AuditLogger) Log(tool, rid, sessionID, dbPath, outcome string, detail map[string]any, latency time.Duration) {
	defer func() { recover() }()

	record := AuditRecord{
		V:       AuditSchemaVersion,
		TS:      time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		RID:     rid,
		Tool:    tool,
		SID:     sessionID,
		DB:      dbPath,
		Outcome: outcome,
		Detail:  detail,
		MS:      roundToTenth(float64(latency.Microseconds()) / 1000.0),
	}

	line, err := json.Marshal(record)
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.output.Write(append(line, '\n')); err != nil {
		return
	}
	if f, ok := a.output.(*os.File); ok {
		_ = f.Sync()
	}
}

func roundToTenth(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

// MakeContentDetail builds the safe audit detail fields for a
// content-carrying tool call: byte length, a SHA-256 hash for
// correlation without storing content, and a truncated preview.
// policyResult, if non-nil, is merged in under "policy".
func MakeContentDetail(content string, policyResult map[string]any) map[string]any {
	sum := sha256.Sum256([]byte(content))

	runes := []rune(content)
	previewLen := len(runes)
	truncated := false
	if previewLen > PreviewMaxChars {
		previewLen = PreviewMaxChars
		truncated = true
	}
	preview := string(runes[:previewLen])
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\r", "")
	if truncated {
		preview = strings.TrimRight(preview, " ") + "…"
	}

	detail := map[string]any{
		"bytes":   len(content),
		"hash":    hex.EncodeToString(sum[:]),
		"preview": preview,
	}
	if policyResult != nil {
		detail["policy"] = policyResult
	}
	return detail
}
