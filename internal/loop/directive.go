// Package loop implements memctl's bounded recall-answer loop: a
// deterministic controller that sends context + question to an
// answer-producer subprocess, parses its refinement directive, performs
// additional recalls, and stops on convergence, cycling, or a hard call
// cap. The subprocess is never autonomous — it only proposes queries; the
// controller enforces every bound.
package loop

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ProtocolSystemPrompt is prepended to every call made under the "json"
// protocol, instructing the answer-producer how to format its response.
const ProtocolSystemPrompt = `You are answering a question using retrieved context. Follow this protocol exactly:

1. Your FIRST line of output MUST be a JSON object with these fields:
   {"need_more": <bool>, "query": "<string or null>", "rationale": "<string or null>", "stop": <bool>}

2. After the JSON line, leave ONE blank line, then write your answer.

3. If the provided context is SUFFICIENT to answer fully:
   {"need_more": false, "query": null, "rationale": null, "stop": true}

4. If the provided context is INSUFFICIENT and you need more information:
   {"need_more": true, "query": "specific refined search query", "rationale": "what is missing", "stop": false}

5. Do NOT emit anything before the JSON line. Do NOT wrap it in markdown.`

// Directive is the parsed refinement directive from one subprocess call.
type Directive struct {
	NeedMore  bool
	Query     string
	Rationale string
	Stop      bool
}

// Protocol names the directive parsing strategy.
type Protocol string

const (
	ProtocolJSON    Protocol = "json"
	ProtocolRegex   Protocol = "regex"
	ProtocolPassive Protocol = "passive"
)

var (
	needMoreRE = regexp.MustCompile(`(?i)NEED_MORE\s*:\s*(.+)`)
	queryRE    = regexp.MustCompile(`(?i)QUERY\s*:\s*(.+)`)
)

type jsonDirective struct {
	NeedMore  *bool   `json:"need_more"`
	Query     *string `json:"query"`
	Rationale *string `json:"rationale"`
	Stop      *bool   `json:"stop"`
}

// ParseJSONDirective parses the "json" protocol: the first line of output
// must be a JSON object, everything after a blank line is the answer. If
// the first line fails to parse and strict is false, the whole output is
// treated as the answer with no refinement requested.
func ParseJSONDirective(output string, strict bool) (Directive, string, error) {
	firstLine, rest, _ := strings.Cut(output, "\n")
	firstLine = strings.TrimSpace(firstLine)
	rest = strings.TrimLeft(rest, "\n")

	var obj jsonDirective
	if err := json.Unmarshal([]byte(firstLine), &obj); err != nil {
		if strict {
			return Directive{}, "", err
		}
		return Directive{NeedMore: false, Stop: true}, output, nil
	}

	d := Directive{}
	if obj.NeedMore != nil {
		d.NeedMore = *obj.NeedMore
	}
	if obj.Query != nil {
		d.Query = *obj.Query
	}
	if obj.Rationale != nil {
		d.Rationale = *obj.Rationale
	}
	if obj.Stop != nil {
		d.Stop = *obj.Stop
	}
	if d.NeedMore && strings.TrimSpace(d.Query) == "" {
		d.NeedMore = false
		d.Stop = true
	}
	return d, rest, nil
}

// ParseRegexDirective scans output for NEED_MORE:/QUERY: markers instead
// of requiring strict JSON. The answer is the full output — these markers
// are metadata, not stripped.
func ParseRegexDirective(output string) (Directive, string) {
	needMoreMatch := needMoreRE.FindStringSubmatch(output)
	queryMatch := queryRE.FindStringSubmatch(output)

	if needMoreMatch != nil || queryMatch != nil {
		var query, rationale string
		if queryMatch != nil {
			query = strings.TrimSpace(queryMatch[1])
		}
		if needMoreMatch != nil {
			rationale = strings.TrimSpace(needMoreMatch[1])
		}
		needMore := query != ""
		return Directive{NeedMore: needMore, Query: query, Rationale: rationale, Stop: !needMore}, output
	}
	return Directive{NeedMore: false, Stop: true}, output
}

// ParsePassiveDirective never requests refinement: the answer is the full
// output, verbatim.
func ParsePassiveDirective(output string) (Directive, string) {
	return Directive{NeedMore: false, Stop: true}, output
}

// ParseDirective dispatches to the parser named by protocol.
func ParseDirective(output string, protocol Protocol, strict bool) (Directive, string, error) {
	switch protocol {
	case ProtocolJSON, "":
		return ParseJSONDirective(output, strict)
	case ProtocolRegex:
		d, a := ParseRegexDirective(output)
		return d, a, nil
	case ProtocolPassive:
		d, a := ParsePassiveDirective(output)
		return d, a, nil
	default:
		return Directive{}, "", &UnknownProtocolError{Protocol: string(protocol)}
	}
}

// UnknownProtocolError reports an unrecognized Protocol value.
type UnknownProtocolError struct{ Protocol string }

func (e *UnknownProtocolError) Error() string { return "unknown protocol: " + e.Protocol }
