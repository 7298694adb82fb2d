// Package ask implements one-shot folder Q&A: mount + sync + inspect +
// scoped recall + the bounded recall-answer loop, run once end to end
// for a single question. Deterministic and bounded — no REPL.
package ask

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/loop"
	"github.com/memctl/memctl/internal/store"
	"github.com/memctl/memctl/internal/sync"
)

func defaultLog(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}

// Result is the outcome of one Ask call.
type Result struct {
	Answer          string
	MountID         string
	WasMounted      bool
	WasSynced       bool
	RecallItemsUsed int
	LoopIterations  int
	Converged       bool
	StopReason      string
}

// Options configures one Ask call; zero values take the same defaults
// as the bounded loop and the path orchestrator.
type Options struct {
	SyncMode       inspect.SyncMode
	MountMode      inspect.MountMode
	Budget         int
	InspectCap     int
	Protocol       loop.Protocol
	MaxCalls       int
	Threshold      float64
	QueryThreshold float64
	StableSteps    int
	SystemPrompt   string
	LLMMode        loop.InvokeMode
	Timeout        int // seconds
	IgnorePatterns []string
	Log            func(string)
}

func (o Options) withDefaults() Options {
	if o.Budget == 0 {
		o.Budget = 2200
	}
	if o.InspectCap == 0 {
		o.InspectCap = 600
	}
	if o.MaxCalls == 0 {
		o.MaxCalls = 1
	}
	if o.Threshold == 0 {
		o.Threshold = 0.92
	}
	if o.QueryThreshold == 0 {
		o.QueryThreshold = 0.90
	}
	if o.StableSteps == 0 {
		o.StableSteps = 2
	}
	if o.Timeout == 0 {
		o.Timeout = 300
	}
	if o.Log == nil {
		o.Log = defaultLog
	}
	if o.Protocol == "" {
		o.Protocol = loop.ProtocolPassive
	}
	return o
}

// Ask answers question about path's contents using llmCmd, orchestrating
// automount, auto-sync, structural inspection, scoped recall, and the
// bounded recall-answer loop, in that order.
func Ask(s *store.Store, path, question, llmCmd string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.InspectCap >= opts.Budget {
		return nil, fmt.Errorf("inspect_cap (%d) must be less than budget (%d)", opts.InspectCap, opts.Budget)
	}

	ir, err := inspect.InspectPath(s, path, opts.SyncMode, inspect.MountPersist, opts.Budget, opts.IgnorePatterns,
		func(format string, args ...any) { opts.Log(fmt.Sprintf(format, args...)) })
	if err != nil {
		return nil, err
	}
	mountID := ir.MountID

	inspectCapChars := opts.InspectCap * 4
	inspectBlock, err := inspect.InspectMount(s, mountID, ir.MountLabel, opts.InspectCap)
	if err != nil {
		return nil, err
	}
	if len(inspectBlock) > inspectCapChars {
		inspectBlock = inspectBlock[:inspectCapChars]
	}

	recallBudget := opts.Budget - opts.InspectCap
	recallBudgetChars := recallBudget * 4

	items, err := loop.RecallItems(s, question, 50, mountID)
	if err != nil {
		return nil, err
	}
	seenIDs := map[string]bool{}
	recallBlock, recallCount := loop.MergeContext("", items, seenIDs, recallBudgetChars)

	opts.Log(fmt.Sprintf("[ask] Context: %d chars inspect + %d chars recall (%d items)",
		len(inspectBlock), len(recallBlock), recallCount))

	var combined string
	switch {
	case inspectBlock != "" && recallBlock != "":
		combined = inspectBlock + "\n\n" + recallBlock
	case inspectBlock != "":
		combined = inspectBlock
	default:
		combined = recallBlock
	}

	result, err := loop.RunLoop(context.Background(), s, combined, question, llmCmd, loop.Options{
		MaxCalls:       opts.MaxCalls,
		Threshold:      opts.Threshold,
		QueryThreshold: opts.QueryThreshold,
		StableSteps:    opts.StableSteps,
		Protocol:       opts.Protocol,
		LLMMode:        opts.LLMMode,
		SystemPrompt:   opts.SystemPrompt,
		Budget:         opts.Budget,
		Quiet:          true,
		MountID:        mountID,
		Timeout:        time.Duration(opts.Timeout) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	opts.Log(fmt.Sprintf("[ask] %d iteration(s), stop=%s, converged=%v",
		result.Iterations, result.StopReason, result.Converged))

	if opts.MountMode == inspect.MountEphemeral {
		if err := sync.RemoveMount(s, mountID); err != nil {
			opts.Log(fmt.Sprintf("[ask] warning: ephemeral mount cleanup failed: %v", err))
		} else {
			opts.Log("[ask] Ephemeral: mount removed")
		}
	}

	return &Result{
		Answer:          result.Answer,
		MountID:         mountID,
		WasMounted:      ir.WasMounted,
		WasSynced:       ir.WasSynced,
		RecallItemsUsed: recallCount,
		LoopIterations:  result.Iterations,
		Converged:       result.Converged,
		StopReason:      result.StopReason,
	}, nil
}
