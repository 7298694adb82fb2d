package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/ask"
	"github.com/memctl/memctl/internal/consolidate"
	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/loop"
	"github.com/memctl/memctl/internal/mcpserver"
	"github.com/memctl/memctl/internal/memtypes"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/proposer"
)

func consolidateCmd() *cobra.Command {
	var scope string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run the STM -> MTM -> LTM promotion pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore()
			if err != nil {
				fail("consolidate", err)
				return errOperational
			}
			defer s.Close()
			stats, err := consolidate.New(s, &cfg.Consolidate).Run(scope, dryRun)
			if err != nil {
				fail("consolidate", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(stats)
			}
			fmt.Printf("processed=%d clusters=%d merged=%d promoted=%d\n",
				stats.ItemsProcessed, stats.ClustersFound, stats.ItemsMerged, stats.ItemsPromoted)
			for _, mc := range stats.MergeChains {
				fmt.Printf("  merged %v -> %s\n", mc.SourceTitles, mc.MergedID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Optional scope filter")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report clusters without writing")
	return cmd
}

func askCmd() *cobra.Command {
	var llmCmd, syncMode string
	var inspectCap int
	cmd := &cobra.Command{
		Use:   "ask <path> <question>",
		Short: "Answer a question about a mounted folder's contents via an external LLM command",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if llmCmd == "" {
				diagf("[ask] --llm is required (a shell command that reads a prompt and prints a directive)")
				return errOperational
			}
			s, cfg, err := openStore()
			if err != nil {
				fail("ask", err)
				return errOperational
			}
			defer s.Close()

			budget := cfg.Loop.DefaultBudget
			if flags.budget > 0 {
				budget = flags.budget
			}
			res, err := ask.Ask(s, args[0], strings.Join(args[1:], " "), llmCmd, ask.Options{
				SyncMode:   inspect.SyncMode(syncMode),
				Budget:     budget,
				InspectCap: inspectCap,
				Log:        func(msg string) { diagf("%s", msg) },
			})
			if err != nil {
				fail("ask", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(res)
			}
			fmt.Println(res.Answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&llmCmd, "llm", "", "Shell command invoked per iteration with the prompt on stdin")
	cmd.Flags().StringVar(&syncMode, "sync", "auto", "auto, always, or never")
	cmd.Flags().IntVar(&inspectCap, "inspect-cap", 600, "Token budget reserved for the structure block")
	return cmd
}

func loopCmd() *cobra.Command {
	var llmCmd string
	var mountID string
	var maxCalls int
	cmd := &cobra.Command{
		Use:   "loop <query>",
		Short: "Run the bounded recall-answer loop directly against the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if llmCmd == "" {
				diagf("[loop] --llm is required (a shell command that reads a prompt and prints a directive)")
				return errOperational
			}
			s, cfg, err := openStore()
			if err != nil {
				fail("loop", err)
				return errOperational
			}
			defer s.Close()

			budget := cfg.Loop.DefaultBudget
			if flags.budget > 0 {
				budget = flags.budget
			}
			result, err := loop.RunLoop(cmd.Context(), s, "", strings.Join(args, " "), llmCmd, loop.Options{
				MaxCalls: maxCalls,
				Budget:   budget,
				MountID:  mountID,
				Quiet:    flags.quiet,
			})
			if err != nil {
				fail("loop", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(result)
			}
			fmt.Println(result.Answer)
			return nil
		},
	}
	cmd.Flags().StringVar(&llmCmd, "llm", "", "Shell command invoked per iteration with the prompt on stdin")
	cmd.Flags().StringVar(&mountID, "mount", "", "Restrict recall to this mount")
	cmd.Flags().IntVar(&maxCalls, "max-calls", 3, "Maximum LLM round trips")
	return cmd
}

// chatCmd is a minimal REPL: each line typed is treated as an assistant
// turn's raw response text, scanned for memory proposals the same way
// memory_propose would be invoked by an MCP client, and accepted
// proposals are written immediately.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactively scan pasted assistant responses for memory proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore()
			if err != nil {
				fail("chat", err)
				return errOperational
			}
			defer s.Close()

			prop := proposer.New(&cfg.Proposer)
			pol := policy.New(&cfg.Policy)
			fmt.Fprintln(os.Stderr, "Paste assistant output, one turn per line. Ctrl-D to exit.")

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for scanner.Scan() {
				line := scanner.Text()
				cleaned, proposals := prop.ExtractProposals(line, nil)
				if cleaned != "" {
					fmt.Println(cleaned)
				}
				for _, p := range proposals {
					verdict := pol.EvaluateProposal(p)
					if verdict.Verdict == policy.VerdictReject {
						diagf("[chat] rejected %q: %s", p.Title, strings.Join(verdict.Reasons, "; "))
						continue
					}
					tier := memtypes.TierSTM
					it := p.ToItem(tier, p.Scope, 0.5)
					if verdict.Verdict == policy.VerdictQuarantine {
						it.Validation = verdict.ForcedValidation
						it.Injectable = !verdict.ForcedNonInjectable
						if verdict.ForcedExpiresAt != "" {
							exp := resolveQuarantineExpiryCLI(verdict.ForcedExpiresAt)
							it.ExpiresAt = &exp
						}
					}
					if err := s.WriteItem(it, "chat"); err != nil {
						diagf("[chat] write failed for %q: %v", p.Title, err)
						continue
					}
					diagf("[chat] %s %s: %s", verdict.Verdict, it.ID, it.Title)
				}
			}
			return scanner.Err()
		},
	}
}

func serveCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			mcpserver.Version = Version
			if err := mcpserver.Serve(mcpserver.ServeOptions{
				DBPath:       flags.db,
				FTSTokenizer: flags.ftsTokenizer,
				InjectBudget: flags.budget,
				Verbose:      verbose,
			}); err != nil {
				fail("serve", err)
				return errInternal
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log extra diagnostics to stderr")
	return cmd
}
