package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memctl/memctl/internal/ask"
	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/consolidate"
	"github.com/memctl/memctl/internal/exportimport"
	"github.com/memctl/memctl/internal/governance"
	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/loop"
	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/store"
	"github.com/memctl/memctl/internal/sync"
)

// Deps bundles everything a tool handler needs: the store and policy
// engine that decide what happens, and the governance middleware that
// decides whether the call is allowed to happen at all.
type Deps struct {
	Store     *store.Store
	Policy    *policy.Engine
	Config    *config.Config
	Guard     *governance.Guard
	RateLimit *governance.RateLimiter
	Sessions  *governance.SessionTracker
	Audit     *governance.AuditLogger
}

// resolveQuarantineExpiry turns policy's relative "+Nh" duration into an
// absolute ISO-8601 timestamp anchored to now — policy itself stays free
// of wall-clock state (see internal/policy).
func resolveQuarantineExpiry(relative string) string {
	if !strings.HasPrefix(relative, "+") || !strings.HasSuffix(relative, "h") {
		return relative
	}
	hoursStr := strings.TrimSuffix(strings.TrimPrefix(relative, "+"), "h")
	hours, err := strconv.ParseFloat(hoursStr, 64)
	if err != nil {
		return relative
	}
	return time.Now().UTC().Add(time.Duration(hours * float64(time.Hour))).Format(time.RFC3339)
}

// guardedWrite runs the full write-side middleware order around fn:
// path/size/budget checks, then the rate limiter, then the session
// tracker, then the audit log — win or lose, the audit entry is always
// written. If the middleware itself rejects the call, guardedWrite
// returns a ready-to-use error *mcp.CallToolResult and fn is never
// invoked; otherwise it returns nil and the caller uses fn's own result.
func (d *Deps) guardedWrite(tool, sessionID string, contentBytes int, fn func() (map[string]any, error)) *mcp.CallToolResult {
	start := time.Now()
	rid := d.Audit.NewRID()
	sess := d.Sessions.GetOrCreate(sessionID)

	if err := d.Guard.CheckWriteSize(strings.Repeat("x", contentBytes)); err != nil {
		d.Audit.Log(tool, rid, sessionID, d.Guard.DBRoot(), "rejected", map[string]any{"reason": err.Error()}, time.Since(start))
		return textResult(fmt.Sprintf("Error: %v", err))
	}
	if err := d.Guard.CheckWriteBudget(sessionID, contentBytes); err != nil {
		d.Audit.Log(tool, rid, sessionID, d.Guard.DBRoot(), "rejected", map[string]any{"reason": err.Error()}, time.Since(start))
		return textResult(fmt.Sprintf("Error: %v", err))
	}
	if err := d.RateLimit.CheckWrite(sessionID); err != nil {
		d.Audit.Log(tool, rid, sessionID, d.Guard.DBRoot(), "rate_limited", map[string]any{"reason": err.Error()}, time.Since(start))
		return textResult(fmt.Sprintf("Error: %v", err))
	}

	detail, err := fn()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		detail = map[string]any{"error": err.Error()}
	} else {
		sess.RecordWrite()
	}
	d.Audit.Log(tool, rid, sessionID, d.Guard.DBRoot(), outcome, detail, time.Since(start))
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err))
	}
	return nil
}

func (d *Deps) guardedRead(tool, sessionID string) (func(outcome string, detail map[string]any), error) {
	rid := d.Audit.NewRID()
	start := time.Now()
	if err := d.RateLimit.CheckRead(sessionID); err != nil {
		d.Audit.Log(tool, rid, sessionID, d.Guard.DBRoot(), "rate_limited", map[string]any{"reason": err.Error()}, time.Since(start))
		return nil, err
	}
	return func(outcome string, detail map[string]any) {
		d.Audit.Log(tool, rid, sessionID, d.Guard.DBRoot(), outcome, detail, time.Since(start))
	}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textResult(fmt.Sprintf("Error: could not encode result: %v", err))
	}
	return textResult(string(data))
}

// sessionIDFromRequest resolves the governance session id for a call. A
// stdio MCP server serves exactly one client per process, so every call
// shares the default session rather than per-request identity.
func sessionIDFromRequest(req *mcp.CallToolRequest) string {
	return governance.DefaultSessionID
}

// Register wires all fourteen memory_* tools onto server, each one a thin
// adapter over the core packages — every decision about what gets stored
// lives in policy/store, not here.
func Register(server *mcp.Server, d *Deps) {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}
	boolPtr := func(b bool) *bool { return &b }
	writeNonDestructive := &mcp.ToolAnnotations{DestructiveHint: boolPtr(false), IdempotentHint: true}
	writeDestructive := &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_recall",
		Description: "Recall memories relevant to a query, formatted as an injection block ready to paste into a prompt.\n\nArgs:\n  query: natural language query\n  budget_tokens: approximate token budget for the returned block (default 800)\n  tier: optional tier filter (stm, mtm, ltm)\n  scope: optional scope filter\n\nReturns a formatted '## Memory (Injected)' block, or a notice if nothing matched.",
		Annotations: readOnly,
	}, d.handleMemoryRecall)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search stored memories and return structured results (not an injection block).\n\nArgs:\n  query: natural language query, or empty to list recent items\n  tags: optional comma-separated tag filter\n  tier: optional tier filter\n  type: optional type filter\n  limit: max results (default 20)\n\nReturns a JSON array of {id, title, tier, type, tags, confidence, validation, content_preview}.",
		Annotations: readOnly,
	}, d.handleMemorySearch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_propose",
		Description: "Propose a candidate memory for storage. The proposal is evaluated by the policy engine and may be accepted, quarantined, or rejected — it is never stored blindly.\n\nArgs:\n  type: fact, decision, definition, constraint, pattern, todo, pointer, or note\n  title: short title\n  content: the memory body\n  tags: optional comma-separated tags\n  why_store: why this is worth remembering\n  source_id: provenance source identifier\n  scope: optional scope (default project)\n\nReturns the verdict and, if accepted or quarantined, the new item's id.",
		Annotations: writeNonDestructive,
	}, d.handleMemoryPropose)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_write",
		Description: "Write a memory item directly at a specific tier, bypassing the propose/accept flow. Still passes through the full policy engine — a tier requiring provenance without a source_id is hard-rejected.\n\nArgs:\n  tier: stm, mtm, or ltm\n  type: fact, decision, definition, constraint, pattern, todo, pointer, or note\n  title: short title\n  content: the memory body\n  tags: optional comma-separated tags\n  source_id: provenance source identifier (required for mtm/ltm)\n  scope: optional scope (default project)\n  confidence: optional confidence 0-1 (default 0.5)\n\nReturns the verdict and the written item's id.",
		Annotations: writeNonDestructive,
	}, d.handleMemoryWrite)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_read",
		Description: "Read one memory item by id in full, including provenance and tags.\n\nArgs:\n  id: the memory item's id\n\nReturns the full item as JSON, or a not-found notice.",
		Annotations: readOnly,
	}, d.handleMemoryRead)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_consolidate",
		Description: "Run the deterministic STM -> MTM -> LTM consolidation pass: cluster related short-term items, merge each cluster, archive the originals, and promote high-usage merges onward.\n\nArgs:\n  scope: optional scope filter, empty = all scopes\n  dry_run: if true, report what would happen without writing (default false)\n\nReturns consolidation statistics.",
		Annotations: writeDestructive,
	}, d.handleMemoryConsolidate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_stats",
		Description: "Report store-wide counters: total items, counts by tier and type, event log size, embeddings, and FTS availability.\n\nReturns a JSON stats object.",
	}, d.handleMemoryStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_import",
		Description: "Import memory items from a JSONL payload (one JSON item per line). Each item is deduplicated by content hash and routed through the policy engine before being stored.\n\nArgs:\n  jsonl: the JSONL payload as a single string\n  preserve_ids: keep each item's existing id instead of minting new ones (default false)\n  dry_run: validate and report without writing (default false)\n\nReturns import counts (imported, skipped_dedup, skipped_policy, errors).",
		Annotations: writeNonDestructive,
	}, d.handleMemoryImport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_export",
		Description: "Export memory items as JSONL, one item per line.\n\nArgs:\n  tier: optional tier filter\n  type: optional type filter\n  scope: optional scope filter\n  exclude_archived: skip archived items (default true)\n\nReturns the JSONL payload as a single string.",
		Annotations: readOnly,
	}, d.handleMemoryExport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_sync",
		Description: "Sync a mounted folder's files into the store: new files are ingested, changed files are re-ingested, unchanged files are skipped (delta sync by size+mtime+content hash).\n\nArgs:\n  path: the mounted folder's path\n  full: re-ingest every file regardless of change detection (default false)\n\nReturns sync counts (files new/changed/unchanged, chunks created).",
		Annotations: writeNonDestructive,
	}, d.handleMemorySync)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_mount",
		Description: "Register a folder as a mount point (metadata only — does not scan or ingest). Idempotent: mounting an already-known path returns its existing mount id.\n\nArgs:\n  path: folder to mount\n  name: optional human-readable name\n\nReturns the mount id.",
	}, d.handleMemoryMount)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_inspect",
		Description: "Produce a deterministic structural summary of a mounted folder's contents: file/chunk/size totals, per-folder breakdown, largest files, and threshold-based observations. No LLM calls.\n\nArgs:\n  path: the mounted folder's path\n  budget_tokens: approximate token budget for the block (default 600)\n  sync: 'auto' (sync if stale), 'always', or 'never' (default auto)\n\nReturns a '## Structure (Injected)' block.",
		Annotations: readOnly,
	}, d.handleMemoryInspect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_ask",
		Description: "Answer a single question about a folder's contents in one call: mount + sync + inspect + scoped recall + a bounded recall-answer loop against an external LLM command. Deterministic and bounded — not a REPL.\n\nArgs:\n  path: folder to answer about\n  question: the question to answer\n  llm_cmd: shell command that reads a prompt on stdin and writes a response on stdout\n  budget_tokens: total context budget (default 2200)\n\nReturns the answer plus orchestration metadata (mounted/synced, iterations, stop reason).",
		Annotations: readOnly,
	}, d.handleMemoryAsk)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_loop",
		Description: "Run the bounded recall-answer loop directly against an already-assembled context: on each iteration the LLM sees the accumulated context, may request a refinement query, and the loop recalls more items until it stops (enough context, a fixed point, a query cycle, or the call cap).\n\nArgs:\n  query: the question to answer\n  context: optional starting context\n  llm_cmd: shell command that reads a prompt on stdin and writes a response on stdout\n  max_calls: maximum LLM invocations (default 3)\n\nReturns the answer plus iteration count, convergence, and stop reason.",
		Annotations: readOnly,
	}, d.handleMemoryLoop)
}

// --- memory_recall ---

type recallInput struct {
	Query        string `json:"query" jsonschema:"Natural language query"`
	BudgetTokens int    `json:"budget_tokens,omitempty" jsonschema:"Approximate token budget (default 800)"`
	Tier         string `json:"tier,omitempty" jsonschema:"Optional tier filter: stm, mtm, ltm"`
	Scope        string `json:"scope,omitempty" jsonschema:"Optional scope filter"`
}

func (d *Deps) handleMemoryRecall(ctx context.Context, req *mcp.CallToolRequest, input recallInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	finish, err := d.guardedRead("memory_recall", sid)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	budget := input.BudgetTokens
	if budget <= 0 {
		budget = d.Config.Loop.DefaultBudget
	}

	items, meta, err := d.Store.SearchFulltext(input.Query, store.SearchOptions{
		Tier: input.Tier, Scope: input.Scope, ExcludeArchived: true, Limit: 50,
	})
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	injectable := make([]*memtypes.Item, 0, len(items))
	for _, it := range items {
		if it.Injectable {
			injectable = append(injectable, it)
		}
	}
	block := FormatInjectionBlock(injectable, budget, len(items), "recall")
	if block == "" {
		block = "No relevant memories found."
	}
	finish("ok", map[string]any{"matched": len(items), "strategy": string(meta.Strategy)})
	return textResult(block), nil, nil
}

// --- memory_search ---

type searchInput struct {
	Query string `json:"query,omitempty" jsonschema:"Natural language query, empty lists recent items"`
	Tags  string `json:"tags,omitempty" jsonschema:"Comma-separated tag filter"`
	Tier  string `json:"tier,omitempty" jsonschema:"Optional tier filter"`
	Type  string `json:"type,omitempty" jsonschema:"Optional type filter"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max results (default 20)"`
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func itemHasAllTags(it *memtypes.Item, tags []string) bool {
	have := make(map[string]bool, len(it.Tags))
	for _, t := range it.Tags {
		have[strings.ToLower(t)] = true
	}
	for _, t := range tags {
		if !have[strings.ToLower(t)] {
			return false
		}
	}
	return true
}

func (d *Deps) handleMemorySearch(ctx context.Context, req *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	finish, err := d.guardedRead("memory_search", sid)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	tags := splitCommaList(input.Tags)

	// Tag filtering has no dedicated store query; memory_search filters
	// client-side over a (possibly query-scoped) candidate set rather
	// than widening the store's public search API for one caller.
	var items []*memtypes.Item
	if tags != nil {
		fetchLimit := limit * 5
		if fetchLimit < 200 {
			fetchLimit = 200
		}
		if input.Query != "" {
			items, _, err = d.Store.SearchFulltext(input.Query, store.SearchOptions{
				Tier: input.Tier, Type: input.Type, ExcludeArchived: true, Limit: fetchLimit,
			})
		} else {
			items, err = d.Store.ListItems(store.SearchOptions{
				Tier: input.Tier, Type: input.Type, ExcludeArchived: true, Limit: fetchLimit,
			})
		}
		if err == nil {
			filtered := make([]*memtypes.Item, 0, len(items))
			for _, it := range items {
				if itemHasAllTags(it, tags) {
					filtered = append(filtered, it)
				}
			}
			if len(filtered) > limit {
				filtered = filtered[:limit]
			}
			items = filtered
		}
	} else if input.Query != "" {
		items, _, err = d.Store.SearchFulltext(input.Query, store.SearchOptions{
			Tier: input.Tier, Type: input.Type, ExcludeArchived: true, Limit: limit,
		})
	} else {
		items, err = d.Store.ListItems(store.SearchOptions{
			Tier: input.Tier, Type: input.Type, ExcludeArchived: true, Limit: limit,
		})
	}
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}

	results := FormatSearchResults(items)
	finish("ok", map[string]any{"results": len(results)})
	return jsonResult(results), results, nil
}

// --- memory_propose ---

type proposeInput struct {
	Type     string `json:"type" jsonschema:"fact, decision, definition, constraint, pattern, todo, pointer, or note"`
	Title    string `json:"title" jsonschema:"Short title"`
	Content  string `json:"content" jsonschema:"The memory body"`
	Tags     string `json:"tags,omitempty" jsonschema:"Comma-separated tags"`
	WhyStore string `json:"why_store,omitempty" jsonschema:"Why this is worth remembering"`
	SourceID string `json:"source_id,omitempty" jsonschema:"Provenance source identifier"`
	Scope    string `json:"scope,omitempty" jsonschema:"Optional scope (default project)"`
}

func (d *Deps) handleMemoryPropose(ctx context.Context, req *mcp.CallToolRequest, input proposeInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	if err := d.RateLimit.CheckProposals(sid, 1); err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}

	prop := &memtypes.Proposal{
		Type: memtypes.MemoryType(input.Type), Title: input.Title, Content: input.Content,
		Tags: splitCommaList(input.Tags), WhyStore: input.WhyStore, Scope: input.Scope,
		ProvenanceHint: map[string]string{"source_kind": "chat", "source_id": input.SourceID},
	}

	var response *mcp.CallToolResult
	rejected := d.guardedWrite("memory_propose", sid, len(input.Content), func() (map[string]any, error) {
		verdict := d.Policy.EvaluateProposal(prop)
		if verdict.Verdict == policy.VerdictReject {
			response = jsonResult(map[string]any{"verdict": "reject", "reasons": verdict.Reasons})
			return map[string]any{"verdict": "reject", "reasons": verdict.Reasons}, nil
		}

		tier := memtypes.TierSTM
		confidence := 0.5
		if verdict.Verdict == policy.VerdictQuarantine {
			tier = verdict.ForcedTier
		}
		it := prop.ToItem(tier, input.Scope, confidence)
		if verdict.Verdict == policy.VerdictQuarantine {
			it.Validation = verdict.ForcedValidation
			it.Injectable = !verdict.ForcedNonInjectable
			if verdict.ForcedExpiresAt != "" {
				exp := resolveQuarantineExpiry(verdict.ForcedExpiresAt)
				it.ExpiresAt = &exp
			}
		}
		if err := d.Store.WriteItem(it, "propose"); err != nil {
			return nil, err
		}
		response = jsonResult(map[string]any{"verdict": string(verdict.Verdict), "id": it.ID, "reasons": verdict.Reasons})
		return map[string]any{"verdict": string(verdict.Verdict), "id": it.ID}, nil
	})
	if rejected != nil {
		return rejected, nil, nil
	}
	return response, nil, nil
}

// --- memory_write ---

type writeInput struct {
	Tier       string  `json:"tier" jsonschema:"stm, mtm, or ltm"`
	Type       string  `json:"type" jsonschema:"fact, decision, definition, constraint, pattern, todo, pointer, or note"`
	Title      string  `json:"title" jsonschema:"Short title"`
	Content    string  `json:"content" jsonschema:"The memory body"`
	Tags       string  `json:"tags,omitempty" jsonschema:"Comma-separated tags"`
	SourceID   string  `json:"source_id,omitempty" jsonschema:"Provenance source identifier (required for mtm/ltm)"`
	Scope      string  `json:"scope,omitempty" jsonschema:"Optional scope (default project)"`
	Confidence float64 `json:"confidence,omitempty" jsonschema:"Optional confidence 0-1 (default 0.5)"`
}

func (d *Deps) handleMemoryWrite(ctx context.Context, req *mcp.CallToolRequest, input writeInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	confidence := input.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	scope := input.Scope
	if scope == "" {
		scope = "project"
	}

	it := memtypes.NewItem()
	it.Tier = memtypes.MemoryTier(input.Tier)
	it.Type = memtypes.MemoryType(input.Type)
	it.Title = input.Title
	it.Content = input.Content
	it.Tags = splitCommaList(input.Tags)
	it.Scope = scope
	it.Confidence = confidence
	it.Provenance.SourceID = input.SourceID
	if err := it.Validate(); err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}

	var response *mcp.CallToolResult
	rejected := d.guardedWrite("memory_write", sid, len(input.Content), func() (map[string]any, error) {
		verdict := d.Policy.EvaluateItem(it)
		if verdict.Verdict == policy.VerdictReject {
			response = jsonResult(map[string]any{"verdict": "reject", "reasons": verdict.Reasons})
			return map[string]any{"verdict": "reject", "reasons": verdict.Reasons}, nil
		}
		if verdict.Verdict == policy.VerdictQuarantine {
			it.Validation = verdict.ForcedValidation
			it.Injectable = !verdict.ForcedNonInjectable
			if verdict.ForcedExpiresAt != "" {
				exp := resolveQuarantineExpiry(verdict.ForcedExpiresAt)
				it.ExpiresAt = &exp
			}
		}
		if err := d.Store.WriteItem(it, "write"); err != nil {
			return nil, err
		}
		response = jsonResult(map[string]any{"verdict": string(verdict.Verdict), "id": it.ID, "reasons": verdict.Reasons})
		return map[string]any{"verdict": string(verdict.Verdict), "id": it.ID}, nil
	})
	if rejected != nil {
		return rejected, nil, nil
	}
	return response, nil, nil
}

// --- memory_read ---

type readInput struct {
	ID string `json:"id" jsonschema:"The memory item's id"`
}

func (d *Deps) handleMemoryRead(ctx context.Context, req *mcp.CallToolRequest, input readInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	finish, err := d.guardedRead("memory_read", sid)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	it, err := d.Store.ReadItem(input.ID)
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	if it == nil {
		finish("not_found", nil)
		return textResult(fmt.Sprintf("No item found with id %q.", input.ID)), nil, nil
	}
	finish("ok", map[string]any{"id": it.ID})
	return jsonResult(it), it, nil
}

// --- memory_consolidate ---

type consolidateInput struct {
	Scope  string `json:"scope,omitempty" jsonschema:"Optional scope filter, empty = all scopes"`
	DryRun bool   `json:"dry_run,omitempty" jsonschema:"Report without writing (default false)"`
}

func (d *Deps) handleMemoryConsolidate(ctx context.Context, req *mcp.CallToolRequest, input consolidateInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	var response *mcp.CallToolResult
	rejected := d.guardedWrite("memory_consolidate", sid, 0, func() (map[string]any, error) {
		pipeline := consolidate.New(d.Store, &d.Config.Consolidate)
		stats, err := pipeline.Run(input.Scope, input.DryRun)
		if err != nil {
			return nil, err
		}
		response = jsonResult(stats)
		return map[string]any{"clusters": stats.ClustersFound, "merged": stats.ItemsMerged, "promoted": stats.ItemsPromoted}, nil
	})
	if rejected != nil {
		return rejected, nil, nil
	}
	return response, nil, nil
}

// --- memory_stats ---

type statsInput struct{}

func (d *Deps) handleMemoryStats(ctx context.Context, req *mcp.CallToolRequest, input statsInput) (*mcp.CallToolResult, any, error) {
	st, err := d.Store.Stats()
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	d.Audit.Log("memory_stats", d.Audit.NewRID(), sessionIDFromRequest(req), d.Guard.DBRoot(), "ok", nil, 0)
	return jsonResult(st), st, nil
}

// --- memory_import ---

type importInput struct {
	JSONL       string `json:"jsonl" jsonschema:"The JSONL payload as a single string"`
	PreserveIDs bool   `json:"preserve_ids,omitempty" jsonschema:"Keep existing ids (default false)"`
	DryRun      bool   `json:"dry_run,omitempty" jsonschema:"Validate without writing (default false)"`
}

func (d *Deps) handleMemoryImport(ctx context.Context, req *mcp.CallToolRequest, input importInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	lineCount := strings.Count(input.JSONL, "\n") + 1
	if err := d.Guard.CheckImportBatch(lineCount); err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}

	var response *mcp.CallToolResult
	rejected := d.guardedWrite("memory_import", sid, len(input.JSONL), func() (map[string]any, error) {
		res, err := exportimport.Import(d.Store, strings.NewReader(input.JSONL), exportimport.ImportOptions{
			PreserveIDs: input.PreserveIDs, DryRun: input.DryRun, Policy: &d.Config.Policy,
			Log: func(string, ...any) {},
		})
		if err != nil {
			return nil, err
		}
		response = jsonResult(res)
		return map[string]any{"imported": res.Imported, "skipped_dedup": res.SkippedDedup, "skipped_policy": res.SkippedPolicy, "errors": res.Errors}, nil
	})
	if rejected != nil {
		return rejected, nil, nil
	}
	return response, nil, nil
}

// --- memory_export ---

type exportInput struct {
	Tier            string `json:"tier,omitempty" jsonschema:"Optional tier filter"`
	Type            string `json:"type,omitempty" jsonschema:"Optional type filter"`
	Scope           string `json:"scope,omitempty" jsonschema:"Optional scope filter"`
	ExcludeArchived bool   `json:"exclude_archived,omitempty" jsonschema:"Skip archived items (default true)"`
}

func (d *Deps) handleMemoryExport(ctx context.Context, req *mcp.CallToolRequest, input exportInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	finish, err := d.guardedRead("memory_export", sid)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}

	var buf strings.Builder
	count, err := exportimport.Export(d.Store, &buf, exportimport.ExportOptions{
		Tier: input.Tier, Type: input.Type, Scope: input.Scope,
		ExcludeArchived: input.ExcludeArchived, Log: func(string, ...any) {},
	})
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	finish("ok", map[string]any{"exported": count})
	return textResult(buf.String()), nil, nil
}

// --- memory_sync ---

type syncInput struct {
	Path string `json:"path" jsonschema:"The mounted folder's path"`
	Full bool   `json:"full,omitempty" jsonschema:"Re-ingest every file instead of only new/changed ones (default false)"`
}

func (d *Deps) handleMemorySync(ctx context.Context, req *mcp.CallToolRequest, input syncInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	var response *mcp.CallToolResult
	rejected := d.guardedWrite("memory_sync", sid, 0, func() (map[string]any, error) {
		res, err := sync.SyncMount(d.Store, input.Path, sync.SyncOptions{Delta: !input.Full, Quiet: true})
		if err != nil {
			return nil, err
		}
		response = jsonResult(res)
		return map[string]any{"new": res.FilesNew, "changed": res.FilesChanged, "unchanged": res.FilesUnchanged, "chunks": res.ChunksCreated}, nil
	})
	if rejected != nil {
		return rejected, nil, nil
	}
	return response, nil, nil
}

// --- memory_mount ---

type mountInput struct {
	Path string `json:"path" jsonschema:"Folder to mount"`
	Name string `json:"name,omitempty" jsonschema:"Optional human-readable name"`
}

func (d *Deps) handleMemoryMount(ctx context.Context, req *mcp.CallToolRequest, input mountInput) (*mcp.CallToolResult, any, error) {
	mountID, err := sync.RegisterMount(d.Store, input.Path, input.Name, nil, "")
	if err != nil {
		d.Audit.Log("memory_mount", d.Audit.NewRID(), sessionIDFromRequest(req), d.Guard.DBRoot(), "error", map[string]any{"error": err.Error()}, 0)
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	d.Audit.Log("memory_mount", d.Audit.NewRID(), sessionIDFromRequest(req), d.Guard.DBRoot(), "ok", map[string]any{"mount_id": mountID}, 0)
	return jsonResult(map[string]any{"mount_id": mountID}), mountID, nil
}

// --- memory_inspect ---

type inspectInput struct {
	Path         string `json:"path" jsonschema:"The mounted folder's path"`
	BudgetTokens int    `json:"budget_tokens,omitempty" jsonschema:"Approximate token budget (default 600)"`
	Sync         string `json:"sync,omitempty" jsonschema:"auto, always, or never (default auto)"`
}

func (d *Deps) handleMemoryInspect(ctx context.Context, req *mcp.CallToolRequest, input inspectInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	finish, err := d.guardedRead("memory_inspect", sid)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	budget := input.BudgetTokens
	if budget <= 0 {
		budget = 600
	}
	syncMode := inspect.SyncMode(input.Sync)
	if syncMode == "" {
		syncMode = inspect.SyncAuto
	}

	ir, err := inspect.InspectPath(d.Store, input.Path, syncMode, inspect.MountPersist, budget, nil, func(string, ...any) {})
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	block, err := inspect.InspectMount(d.Store, ir.MountID, ir.MountLabel, budget)
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	finish("ok", map[string]any{"mount_id": ir.MountID, "synced": ir.WasSynced})
	return textResult(block), nil, nil
}

// --- memory_ask ---

type askInput struct {
	Path         string `json:"path" jsonschema:"Folder to answer about"`
	Question     string `json:"question" jsonschema:"The question to answer"`
	LLMCmd       string `json:"llm_cmd" jsonschema:"Shell command that reads a prompt on stdin and writes a response on stdout"`
	BudgetTokens int    `json:"budget_tokens,omitempty" jsonschema:"Total context budget (default 2200)"`
}

func (d *Deps) handleMemoryAsk(ctx context.Context, req *mcp.CallToolRequest, input askInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	finish, err := d.guardedRead("memory_ask", sid)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	opts := ask.Options{Log: func(string) {}}
	if input.BudgetTokens > 0 {
		opts.Budget = input.BudgetTokens
	}
	res, err := ask.Ask(d.Store, input.Path, input.Question, input.LLMCmd, opts)
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	finish("ok", map[string]any{"iterations": res.LoopIterations, "stop_reason": res.StopReason})
	return jsonResult(res), res, nil
}

// --- memory_loop ---

type loopInput struct {
	Query    string `json:"query" jsonschema:"The question to answer"`
	Context  string `json:"context,omitempty" jsonschema:"Optional starting context"`
	LLMCmd   string `json:"llm_cmd" jsonschema:"Shell command that reads a prompt on stdin and writes a response on stdout"`
	MaxCalls int    `json:"max_calls,omitempty" jsonschema:"Maximum LLM invocations (default 3)"`
}

func (d *Deps) handleMemoryLoop(ctx context.Context, req *mcp.CallToolRequest, input loopInput) (*mcp.CallToolResult, any, error) {
	sid := sessionIDFromRequest(req)
	finish, err := d.guardedRead("memory_loop", sid)
	if err != nil {
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	res, err := loop.RunLoop(ctx, d.Store, input.Context, input.Query, input.LLMCmd, loop.Options{
		MaxCalls: input.MaxCalls, Quiet: true,
	})
	if err != nil {
		finish("error", map[string]any{"error": err.Error()})
		return textResult(fmt.Sprintf("Error: %v", err)), nil, nil
	}
	finish("ok", map[string]any{"iterations": res.Iterations, "stop_reason": res.StopReason})
	return jsonResult(res), res, nil
}
