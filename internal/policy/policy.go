// Package policy implements memctl's write-governance rule engine: every
// candidate memory (a Proposal or an existing Item) is evaluated
// deterministically into accept, quarantine, or reject before it is ever
// written to the store. The engine has no network access and no hidden
// state — the same input always produces the same verdict.
package policy

import (
	"fmt"
	"regexp"

	"github.com/mdombrov-33/go-promptguard"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memtypes"
)

// Verdict is the outcome of evaluating a proposal or item.
type Verdict string

const (
	VerdictAccept     Verdict = "accept"
	VerdictQuarantine Verdict = "quarantine"
	VerdictReject     Verdict = "reject"
)

// Result carries the verdict plus the forced field overrides a quarantine
// verdict applies.
type Result struct {
	Verdict            Verdict
	Reasons            []string
	ForcedTier         memtypes.MemoryTier
	ForcedValidation   memtypes.ValidationState
	ForcedExpiresAt    string
	ForcedNonInjectable bool
}

// secretPatterns mirrors the original system's ten hard-blocking secret
// detectors. Order is part of the external contract — reason strings embed
// the 1-based index — so patterns are only ever appended, never reordered.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`(?i)\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
	regexp.MustCompile(`(?i)\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
	regexp.MustCompile(`(?i)\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`(?i)\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`),
	regexp.MustCompile(`(?i)\bpassword\s*[:=]\s*\S{6,}`),
	regexp.MustCompile(`(?i)\bsecret\s*[:=]\s*\S{6,}`),
	regexp.MustCompile(`(?i)\bapi[_-]?key\s*[:=]\s*\S{6,}`),
	regexp.MustCompile(`(?i)\btoken\s*[:=]\s*\S{10,}`),
}

// injectionPatterns mirrors the original system's eight prompt-injection
// hard blockers.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?(previous|above|prior) instructions`),
	regexp.MustCompile(`(?i)disregard (all )?(previous|above|prior) (instructions|rules)`),
	regexp.MustCompile(`(?i)you are now (in )?(developer|jailbreak|dan) mode`),
	regexp.MustCompile(`(?i)system\s*:\s*override`),
	regexp.MustCompile(`(?i)pretend (you are|to be) (an? )?unrestricted`),
	regexp.MustCompile(`(?i)reveal (your|the) (system prompt|instructions)`),
	regexp.MustCompile(`(?i)do anything now`),
	regexp.MustCompile(`(?i)act as if (you have no|there are no) (restrictions|guardrails|rules)`),
}

// instructionalBlockPatterns mirrors the eight patterns hard-blocking
// content that attempts to instruct a future reader/agent outright.
var instructionalBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*new instructions?\s*:`),
	regexp.MustCompile(`(?i)from now on,? (you|the assistant) (must|should|will)`),
	regexp.MustCompile(`(?i)always (respond|reply|answer) with`),
	regexp.MustCompile(`(?i)never (mention|reveal|disclose) (that|this)`),
	regexp.MustCompile(`(?i)when (asked|prompted) about .* (say|respond|answer)`),
	regexp.MustCompile(`(?i)your new (goal|objective|purpose) is`),
	regexp.MustCompile(`(?i)override (your|the) (guidelines|policy|rules)`),
	regexp.MustCompile(`(?i)this (memory|note|message) (overrides|supersedes) all`),
}

// instructionalQuarantinePatterns mirrors the four patterns that only
// soft-block ("self-instruction" phrasing worth a closer look, but not
// severe enough to reject outright).
var instructionalQuarantinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)remember to always`),
	regexp.MustCompile(`(?i)in future (sessions|conversations),? (you|please)`),
	regexp.MustCompile(`(?i)next time (you|we) (talk|chat|meet)`),
	regexp.MustCompile(`(?i)make sure (you|to) (always|never)`),
}

// piiPatterns are a SPEC-mandated supplement absent from the original
// system: five soft-block detectors for personally identifiable
// information. They join the quarantine tier exactly like the
// instructional-quarantine patterns, each forcing non-injectable.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                                                    // US SSN
	regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),                                                    // credit-card-shaped run of digits
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),                             // email
	regexp.MustCompile(`\+?\d{1,3}[-.\s]?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}`),                 // phone
	regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),                                          // IBAN
}

// Engine evaluates proposals and items against the configured rule set.
type Engine struct {
	cfg *config.PolicyConfig
	pg  *promptguard.Guard
}

// New builds an Engine from the given policy configuration.
func New(cfg *config.PolicyConfig) *Engine {
	e := &Engine{cfg: cfg}
	if cfg.PromptguardEnabled {
		e.pg = promptguard.New()
	}
	return e
}

// EvaluateProposal runs the full hard-block then soft-block ladder over a
// not-yet-stored Proposal, returning the verdict that should gate whether
// (and how) it becomes an Item.
func (e *Engine) EvaluateProposal(p *memtypes.Proposal) Result {
	text := p.Title + "\n" + p.Content

	// Hard blocks, in priority order.
	if e.cfg.SecretPatternsEnabled {
		for i, re := range secretPatterns {
			if re.MatchString(text) {
				return Result{Verdict: VerdictReject, Reasons: []string{fmt.Sprintf("HARD_BLOCK: secret pattern #%d matched", i+1)}}
			}
		}
	}
	if e.cfg.InjectionPatternsEnabled {
		for i, re := range injectionPatterns {
			if re.MatchString(text) {
				return Result{Verdict: VerdictReject, Reasons: []string{fmt.Sprintf("HARD_BLOCK: injection pattern #%d matched", i+1)}}
			}
		}
	}
	if e.cfg.InstructionalContentEnabled {
		for i, re := range instructionalBlockPatterns {
			if re.MatchString(text) {
				return Result{Verdict: VerdictReject, Reasons: []string{fmt.Sprintf("HARD_BLOCK: instructional_content pattern #%d matched", i+1)}}
			}
		}
	}
	if e.pg != nil {
		if hit, _ := e.pg.Scan(text); hit {
			return Result{Verdict: VerdictReject, Reasons: []string{"HARD_BLOCK: promptguard pattern matched"}}
		}
	}
	if p.Type != memtypes.TypePointer && len(p.Content) > e.cfg.MaxContentLength {
		return Result{Verdict: VerdictReject, Reasons: []string{fmt.Sprintf("HARD_BLOCK: content length %d exceeds max %d", len(p.Content), e.cfg.MaxContentLength)}}
	}

	// Soft blocks: accumulate, then quarantine if any fired.
	var reasons []string
	forceNonInjectable := false

	if e.cfg.InstructionalContentEnabled {
		for i, re := range instructionalQuarantinePatterns {
			if re.MatchString(text) {
				reasons = append(reasons, fmt.Sprintf("QUARANTINE: instructional_self_instruction pattern #%d matched", i+1))
				forceNonInjectable = true
			}
		}
	}
	if e.cfg.PIIPatternsEnabled {
		for i, re := range piiPatterns {
			if re.MatchString(text) {
				reasons = append(reasons, fmt.Sprintf("QUARANTINE: pii pattern #%d matched", i+1))
				forceNonInjectable = true
			}
		}
	}
	if p.WhyStore == "" {
		reasons = append(reasons, "QUARANTINE: missing why_store")
	}
	if p.ProvenanceHint["source_id"] == "" {
		reasons = append(reasons, "QUARANTINE: missing provenance source_id")
	}

	if len(reasons) > 0 {
		return Result{
			Verdict:             VerdictQuarantine,
			Reasons:             reasons,
			ForcedTier:          memtypes.TierSTM,
			ForcedValidation:    memtypes.ValidationUnverified,
			ForcedExpiresAt:     quarantineExpiry(e.cfg.QuarantineExpiryHours),
			ForcedNonInjectable: forceNonInjectable,
		}
	}
	return Result{Verdict: VerdictAccept}
}

// EvaluateItem re-runs the same ladder over an already-constructed Item
// (used by import and by direct memory_write calls) and additionally
// hard-rejects tiers that require provenance but lack a SourceID.
func (e *Engine) EvaluateItem(it *memtypes.Item) Result {
	p := &memtypes.Proposal{
		Type:    it.Type,
		Title:   it.Title,
		Content: it.Content,
		Tags:    it.Tags,
		Scope:   it.Scope,
		ProvenanceHint: map[string]string{
			"source_kind": string(it.Provenance.SourceKind),
			"source_id":   it.Provenance.SourceID,
		},
	}
	if e.cfg.RequireProvenance(string(it.Tier)) && it.Provenance.SourceID == "" {
		return Result{Verdict: VerdictReject, Reasons: []string{fmt.Sprintf("HARD_BLOCK: tier %s requires provenance.source_id", it.Tier)}}
	}
	// Reuse proposal evaluation for pattern-based blocks; items always
	// carry a "stored" why_store equivalent (their existence), so the
	// missing-why_store soft block does not apply once an item exists.
	p.WhyStore = "stored"
	return e.EvaluateProposal(p)
}

func quarantineExpiry(hours float64) string {
	// Computed by the caller against wall-clock time; policy only reports
	// the configured duration here since it must stay free of hidden
	// timing state. Callers (store.WriteItem) add hours to "now".
	return fmt.Sprintf("+%gh", hours)
}
