// Package main is the entrypoint for the memctl CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// globalFlags mirrors the external interface's stable flag surface:
// --db, --budget, --fts-tokenizer, -q/--quiet, --json, in increasing
// precedence over environment variables and compiled defaults.
type globalFlags struct {
	db           string
	budget       int
	ftsTokenizer string
	quiet        bool
	jsonOut      bool
}

var flags globalFlags

// exit codes per the external interface's taxonomy: 0 success (including
// idempotent no-op), 1 operational (bad args, policy rejection,
// not-found), 2 internal (unexpected failure, I/O error).
const (
	exitOperational = 1
	exitInternal    = 2
)

// errOperational and errInternal are sentinels RunE functions return (via
// errors.Join, to keep the underlying cause in the message) so main can
// pick an exit code per the external interface's taxonomy without every
// command re-implementing the mapping.
var (
	errOperational = errors.New("operational error")
	errInternal    = errors.New("internal error")
)

func diagf(format string, args ...any) {
	if flags.quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func fail(kind string, err error) {
	fmt.Fprintf(os.Stderr, "[%s] %v\n", kind, err)
}

// loadConfig merges compiled defaults, the discovered TOML file, and
// environment variables, then applies any CLI flags the caller set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.db != "" {
		cfg.Store.DBPath = flags.db
	}
	if flags.ftsTokenizer != "" {
		cfg.Store.FTSTokenizer = flags.ftsTokenizer
	}
	if flags.budget > 0 {
		cfg.Loop.DefaultBudget = flags.budget
	}
	return cfg, nil
}

// openStore loads the merged config and opens the store it points at.
func openStore() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(&cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

func main() {
	root := &cobra.Command{
		Use:           "memctl",
		Short:         "A layered, auditable memory store for AI coding assistants",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.db, "db", "", "Database path (overrides config and MEMCTL_DB_PATH)")
	root.PersistentFlags().IntVar(&flags.budget, "budget", 0, "Token budget for injection-block commands (overrides config)")
	root.PersistentFlags().StringVar(&flags.ftsTokenizer, "fts-tokenizer", "", "FTS5 tokenizer spec (overrides config)")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress non-fatal diagnostics")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "Emit machine-readable JSON where supported")

	root.AddCommand(
		initCmd(),
		pushCmd(),
		pullCmd(),
		searchCmd(),
		showCmd(),
		statsCmd(),
		statusCmd(),
		consolidateCmd(),
		loopCmd(),
		mountCmd(),
		syncCmd(),
		inspectCmd(),
		askCmd(),
		chatCmd(),
		exportCmd(),
		importCmd(),
		reindexCmd(),
		resetCmd(),
		serveCmd(),
	)

	if err := root.Execute(); err != nil {
		switch {
		case errors.Is(err, errInternal):
			os.Exit(exitInternal)
		case errors.Is(err, errOperational):
			os.Exit(exitOperational)
		default:
			fail("memctl", err)
			os.Exit(exitOperational)
		}
	}
}
