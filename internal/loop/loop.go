package loop

import (
	"context"
	"time"

	"github.com/memctl/memctl/internal/similarity"
	"github.com/memctl/memctl/internal/store"
)

// Result is the outcome of one RunLoop call.
type Result struct {
	Answer     string
	Iterations int
	Converged  bool
	Traces     []Trace
	StopReason string
}

// Options bounds and configures one RunLoop call. Zero values fall back to
// the defaults named in each field's comment.
type Options struct {
	MaxCalls       int           // default 3
	Threshold      float64       // fixed-point similarity threshold, default 0.92
	QueryThreshold float64       // query-cycle similarity threshold, default 0.90
	StableSteps    int           // consecutive stable iterations required, default 2
	StopOnNoNew    bool          // stop immediately if a recall adds zero new items
	Protocol       Protocol      // default ProtocolJSON
	LLMMode        InvokeMode    // default ModeStdin
	SystemPrompt   string
	Budget         int           // context char budget, default 2200
	Strict         bool          // require valid JSON directives (ProtocolJSON only)
	Trace          bool
	TraceFile      string
	Quiet          bool
	Timeout        time.Duration // per-call subprocess timeout, default 300s
	RecallLimit    int           // default 50
	MountID        string        // restrict recall to this mount's files, "" = unrestricted
}

func (o Options) withDefaults() Options {
	if o.MaxCalls <= 0 {
		o.MaxCalls = 3
	}
	if o.Threshold <= 0 {
		o.Threshold = 0.92
	}
	if o.QueryThreshold <= 0 {
		o.QueryThreshold = 0.90
	}
	if o.StableSteps <= 0 {
		o.StableSteps = 2
	}
	if o.Protocol == "" {
		o.Protocol = ProtocolJSON
	}
	if o.LLMMode == "" {
		o.LLMMode = ModeStdin
	}
	if o.Budget <= 0 {
		o.Budget = 2200
	}
	if o.RecallLimit <= 0 {
		o.RecallLimit = 50
	}
	return o
}

// RunLoop drives the bounded recall-answer loop: on each iteration it sends
// the accumulated context and query to llmCmd, parses its directive, and
// either stops (the producer says it has enough, the answer has reached a
// fixed point, a query cycle is detected, or the call cap is hit) or
// recalls more items for the next iteration. The producer only proposes
// refinement queries — RunLoop enforces every stopping bound itself.
func RunLoop(ctx context.Context, s *store.Store, initialContext, query, llmCmd string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	context_ := initialContext
	seenIDs := map[string]bool{}
	var queryHistory []string
	var traces []Trace
	var prevAnswer string
	consecutiveStable := 0
	var answer, stopReason string
	converged := false

	iteration := 0
	for {
		iteration++
		prompt := BuildPrompt(context_, query, opts.SystemPrompt, opts.Protocol)
		output, err := InvokeLLM(ctx, llmCmd, prompt, opts.LLMMode, opts.Timeout)
		if err != nil {
			return nil, err
		}
		directive, parsedAnswer, err := ParseDirective(output, opts.Protocol, opts.Strict)
		if err != nil {
			return nil, err
		}
		answer = parsedAnswer

		var simPtr *float64
		if iteration >= 2 {
			sim := similarity.DefaultSimilarity(answer, prevAnswer)
			simPtr = &sim
			if similarity.IsFixedPoint(answer, prevAnswer, opts.Threshold) {
				consecutiveStable++
			} else {
				consecutiveStable = 0
			}
		}
		prevAnswer = answer

		var action string
		switch {
		case directive.Stop || !directive.NeedMore:
			action = "llm_stop"
		case consecutiveStable >= opts.StableSteps:
			action = "fixed_point"
		case similarity.IsQueryCycle(directive.Query, queryHistory, opts.QueryThreshold):
			action = "query_cycle"
		case iteration >= opts.MaxCalls:
			action = "max_calls"
		default:
			action = "continue"
		}

		newCount := 0
		if action == "continue" && directive.Query != "" {
			items, err := RecallItems(s, directive.Query, opts.RecallLimit, opts.MountID)
			if err != nil {
				return nil, err
			}
			context_, newCount = MergeContext(context_, items, seenIDs, opts.Budget)
			if newCount == 0 && opts.StopOnNoNew {
				action = "no_new_items"
			}
			queryHistory = append(queryHistory, directive.Query)
		}

		trace := Trace{Iter: iteration, Query: directive.Query, NewItems: newCount, Sim: simPtr, Action: action}
		traces = append(traces, trace)
		if opts.Trace {
			if err := EmitTrace(trace, opts.TraceFile, opts.Quiet); err != nil {
				return nil, err
			}
		}

		if action != "continue" {
			stopReason = action
			converged = action == "fixed_point" || action == "llm_stop"
			break
		}
	}

	return &Result{
		Answer:     answer,
		Iterations: iteration,
		Converged:  converged,
		Traces:     traces,
		StopReason: stopReason,
	}, nil
}
