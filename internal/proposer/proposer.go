// Package proposer extracts memory.propose calls from LLM output: either
// from a structured tool-call side channel, or from a delimited JSON block
// embedded in the response text. Proposals still have to pass through the
// policy engine before they become stored items — this package only
// parses, it never accepts or rejects.
package proposer

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/memtypes"
)

// ToolCall is one structured tool invocation from an LLM response, in the
// shape both a native tool-call API and an OpenAI-style function-call
// payload can populate.
type ToolCall struct {
	Action    string         `json:"action"`
	Name      string         `json:"name"`
	Items     []json.RawMessage `json:"items"`
	Arguments json.RawMessage   `json:"arguments"`
}

// Proposer parses LLM output for memory proposals using the strategy
// named in its config ("tool", "delimiter", or "both").
type Proposer struct {
	cfg         *config.ProposerConfig
	delimiterRE *regexp.Regexp
}

// New builds a Proposer from cfg (config.Default().Proposer if nil).
func New(cfg *config.ProposerConfig) *Proposer {
	if cfg == nil {
		def := config.Default().Proposer
		cfg = &def
	}
	pattern := regexp.QuoteMeta(cfg.DelimiterOpen) + `(?s)(.*?)` + regexp.QuoteMeta(cfg.DelimiterClose)
	return &Proposer{cfg: cfg, delimiterRE: regexp.MustCompile(pattern)}
}

// SystemInstruction is the prompt segment instructing the LLM how to emit
// proposals via the delimiter channel.
func (p *Proposer) SystemInstruction() string {
	return p.cfg.SystemInstruction
}

type proposalItems struct {
	Items []json.RawMessage `json:"items"`
}

func decodeProposal(raw json.RawMessage) (*memtypes.Proposal, error) {
	var prop memtypes.Proposal
	if err := json.Unmarshal(raw, &prop); err != nil {
		return nil, err
	}
	return &prop, nil
}

// ParseToolCalls extracts proposals from structured tool calls whose
// action or name is "memory.propose"/"memory_propose".
func (p *Proposer) ParseToolCalls(calls []ToolCall) []*memtypes.Proposal {
	var proposals []*memtypes.Proposal
	for _, call := range calls {
		action := call.Action
		if action == "" {
			action = call.Name
		}
		if action != "memory.propose" && action != "memory_propose" {
			continue
		}
		items := call.Items
		if len(items) == 0 && len(call.Arguments) > 0 {
			var args proposalItems
			raw := call.Arguments
			var argString string
			if err := json.Unmarshal(raw, &argString); err == nil {
				raw = json.RawMessage(argString)
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				continue
			}
			items = args.Items
		}
		for _, itemRaw := range items {
			prop, err := decodeProposal(itemRaw)
			if err != nil {
				log.Printf("[proposer] failed to parse proposal: %v", err)
				continue
			}
			proposals = append(proposals, prop)
		}
	}
	return proposals
}

// ParseResponseText extracts proposals embedded between the configured
// delimiters and returns the text with those blocks stripped.
func (p *Proposer) ParseResponseText(text string) (string, []*memtypes.Proposal) {
	var proposals []*memtypes.Proposal
	matches := p.delimiterRE.FindAllStringSubmatch(text, -1)

	for _, m := range matches {
		block := strings.TrimSpace(m[1])
		var asArray []json.RawMessage
		var asObject proposalItems

		var items []json.RawMessage
		if err := json.Unmarshal([]byte(block), &asArray); err == nil {
			items = asArray
		} else if err := json.Unmarshal([]byte(block), &asObject); err == nil {
			items = asObject.Items
		} else {
			log.Printf("[proposer] failed to parse delimiter block as JSON")
			continue
		}

		for _, itemRaw := range items {
			prop, err := decodeProposal(itemRaw)
			if err != nil {
				log.Printf("[proposer] failed to parse proposal from delimiter: %v", err)
				continue
			}
			proposals = append(proposals, prop)
		}
	}

	cleaned := strings.TrimSpace(p.delimiterRE.ReplaceAllString(text, ""))
	return cleaned, proposals
}

// ExtractProposals runs both channels according to the configured
// strategy and returns the cleaned response text plus every proposal
// found.
func (p *Proposer) ExtractProposals(responseText string, toolCalls []ToolCall) (string, []*memtypes.Proposal) {
	var proposals []*memtypes.Proposal
	cleaned := responseText

	if (p.cfg.Strategy == "tool" || p.cfg.Strategy == "both") && len(toolCalls) > 0 {
		proposals = append(proposals, p.ParseToolCalls(toolCalls)...)
	}
	if (p.cfg.Strategy == "delimiter" || p.cfg.Strategy == "both") && responseText != "" {
		var delimProposals []*memtypes.Proposal
		cleaned, delimProposals = p.ParseResponseText(responseText)
		proposals = append(proposals, delimProposals...)
	}

	if len(proposals) > 0 {
		log.Printf("[proposer] extracted %d memory proposal(s)", len(proposals))
	}
	return cleaned, proposals
}
