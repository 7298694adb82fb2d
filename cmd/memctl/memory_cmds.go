package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/exportimport"
	"github.com/memctl/memctl/internal/mcpserver"
	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/store"
)

func formatInjectionBlockCLI(items []*memtypes.Item, budget, matched int) string {
	return mcpserver.FormatInjectionBlock(items, budget, matched, "session_inject")
}

// resolveQuarantineExpiryCLI mirrors internal/mcpserver's resolution of
// policy's relative "+Nh" duration into an absolute timestamp — each
// external-facing surface resolves this independently at its own point
// of use, since policy itself stays free of wall-clock state.
func resolveQuarantineExpiryCLI(relative string) string {
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

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func readContent(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	data, err := io.ReadAll(bufio.NewReader(os.Stdin))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func pushCmd() *cobra.Command {
	var tier, typ, title, content, tags, why, sourceID, scope string
	var confidence float64
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Propose a memory; content is read from stdin unless --content is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readContent(content)
			if err != nil {
				fail("push", err)
				return errOperational
			}
			s, cfg, err := openStore()
			if err != nil {
				fail("push", err)
				return errOperational
			}
			defer s.Close()

			prop := &memtypes.Proposal{
				Type: memtypes.MemoryType(typ), Title: title, Content: body,
				Tags: splitTags(tags), WhyStore: why, Scope: scope,
				ProvenanceHint: map[string]string{"source_kind": "chat", "source_id": sourceID},
			}
			verdict := policy.New(&cfg.Policy).EvaluateProposal(prop)
			if verdict.Verdict == policy.VerdictReject {
				diagf("[push] rejected: %s", strings.Join(verdict.Reasons, "; "))
				return errOperational
			}

			resolvedTier := memtypes.MemoryTier(tier)
			if verdict.Verdict == policy.VerdictQuarantine {
				resolvedTier = verdict.ForcedTier
			}
			it := prop.ToItem(resolvedTier, scope, confidence)
			if verdict.Verdict == policy.VerdictQuarantine {
				it.Validation = verdict.ForcedValidation
				it.Injectable = !verdict.ForcedNonInjectable
				if verdict.ForcedExpiresAt != "" {
					exp := resolveQuarantineExpiryCLI(verdict.ForcedExpiresAt)
					it.ExpiresAt = &exp
				}
			}
			if err := s.WriteItem(it, "push"); err != nil {
				fail("push", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(map[string]any{"verdict": string(verdict.Verdict), "id": it.ID})
			}
			fmt.Printf("%s %s\n", verdict.Verdict, it.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "stm", "Tier if accepted without quarantine (stm, mtm, ltm)")
	cmd.Flags().StringVar(&typ, "type", "note", "fact, decision, definition, constraint, pattern, todo, pointer, or note")
	cmd.Flags().StringVar(&title, "title", "", "Short title")
	cmd.Flags().StringVar(&content, "content", "", "Memory body (reads stdin if omitted)")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	cmd.Flags().StringVar(&why, "why", "", "Why this is worth remembering")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Provenance source identifier")
	cmd.Flags().StringVar(&scope, "scope", "project", "Scope")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "Confidence 0-1")
	return cmd
}

func pullCmd() *cobra.Command {
	var query, tier, scope string
	cmd := &cobra.Command{
		Use:   "pull [query]",
		Short: "Recall memories as a formatted injection block",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				query = strings.Join(args, " ")
			}
			s, cfg, err := openStore()
			if err != nil {
				fail("pull", err)
				return errOperational
			}
			defer s.Close()

			budget := cfg.Loop.DefaultBudget
			items, _, err := s.SearchFulltext(query, store.SearchOptions{
				Tier: tier, Scope: scope, ExcludeArchived: true, Limit: 50,
			})
			if err != nil {
				fail("pull", err)
				return errInternal
			}
			injectable := make([]*memtypes.Item, 0, len(items))
			for _, it := range items {
				if it.Injectable {
					injectable = append(injectable, it)
				}
			}
			block := formatInjectionBlockCLI(injectable, budget, len(items))
			if block == "" {
				diagf("[pull] no relevant memories found")
				return errOperational
			}
			fmt.Println(block)
			return nil
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "", "Optional tier filter")
	cmd.Flags().StringVar(&scope, "scope", "", "Optional scope filter")
	return cmd
}

func searchCmd() *cobra.Command {
	var query, tags, tier, typ string
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stored memories and print structured results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				query = strings.Join(args, " ")
			}
			s, _, err := openStore()
			if err != nil {
				fail("search", err)
				return errOperational
			}
			defer s.Close()

			var items []*memtypes.Item
			if query != "" {
				items, _, err = s.SearchFulltext(query, store.SearchOptions{Tier: tier, Type: typ, ExcludeArchived: true, Limit: limit})
			} else {
				items, err = s.ListItems(store.SearchOptions{Tier: tier, Type: typ, ExcludeArchived: true, Limit: limit})
			}
			if err != nil {
				fail("search", err)
				return errInternal
			}
			if tagList := splitTags(tags); tagList != nil {
				filtered := items[:0]
				for _, it := range items {
					if hasAllTagsCLI(it, tagList) {
						filtered = append(filtered, it)
					}
				}
				items = filtered
			}
			if flags.jsonOut {
				return printJSON(items)
			}
			for _, it := range items {
				fmt.Printf("%-18s [%s:%s] %-10s %s\n", it.ID, it.Tier, it.Validation, it.Type, it.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tag filter")
	cmd.Flags().StringVar(&tier, "tier", "", "Optional tier filter")
	cmd.Flags().StringVar(&typ, "type", "", "Optional type filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max results")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one memory item in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				fail("show", err)
				return errOperational
			}
			defer s.Close()
			it, err := s.ReadItem(args[0])
			if err != nil {
				fail("show", err)
				return errInternal
			}
			if it == nil {
				diagf("[show] no item found with id %q", args[0])
				return errOperational
			}
			if flags.jsonOut {
				return printJSON(it)
			}
			fmt.Printf("%s\n%s\n\n%s\n", it.Title, strings.Repeat("-", len(it.Title)), it.Content)
			fmt.Printf("\ntier=%s type=%s validation=%s confidence=%.2f tags=%s\n",
				it.Tier, it.Type, it.Validation, it.Confidence, strings.Join(it.Tags, ","))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var tier, typ, scope string
	var excludeArchived bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memory items as JSON-Lines to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				fail("export", err)
				return errOperational
			}
			defer s.Close()
			_, err = exportimport.Export(s, os.Stdout, exportimport.ExportOptions{
				Tier: tier, Type: typ, Scope: scope, ExcludeArchived: excludeArchived,
				Log: func(f string, a ...any) { diagf(f, a...) },
			})
			if err != nil {
				fail("export", err)
				return errInternal
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "", "Optional tier filter")
	cmd.Flags().StringVar(&typ, "type", "", "Optional type filter")
	cmd.Flags().StringVar(&scope, "scope", "", "Optional scope filter")
	cmd.Flags().BoolVar(&excludeArchived, "exclude-archived", true, "Skip archived items")
	return cmd
}

func importCmd() *cobra.Command {
	var preserveIDs, dryRun bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import memory items from JSON-Lines on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore()
			if err != nil {
				fail("import", err)
				return errOperational
			}
			defer s.Close()
			res, err := exportimport.Import(s, os.Stdin, exportimport.ImportOptions{
				PreserveIDs: preserveIDs, DryRun: dryRun, Policy: &cfg.Policy,
				Log: func(f string, a ...any) { diagf(f, a...) },
			})
			if err != nil {
				fail("import", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(res)
			}
			fmt.Printf("imported=%d skipped_dedup=%d skipped_policy=%d errors=%d\n",
				res.Imported, res.SkippedDedup, res.SkippedPolicy, res.Errors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&preserveIDs, "preserve-ids", false, "Keep each item's existing id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without writing")
	return cmd
}

func hasAllTagsCLI(it *memtypes.Item, tags []string) bool {
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
