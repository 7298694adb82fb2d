package mcpserver

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memctl/memctl/internal/config"
	"github.com/memctl/memctl/internal/governance"
	"github.com/memctl/memctl/internal/policy"
	"github.com/memctl/memctl/internal/store"
)

// Version is set by the caller (main) before calling Serve.
var Version = "dev"

// ServeOptions carries the serve subcommand's flags; zero values mean
// "use the merged config's default".
type ServeOptions struct {
	DBPath       string
	FTSTokenizer string
	InjectBudget int
	Verbose      bool
}

// Serve opens the store, assembles the governance middleware, registers
// the fourteen memory_* tools, and runs the MCP server on stdio until
// the client disconnects or the process is signaled.
func Serve(opts ServeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.DBPath != "" {
		cfg.Store.DBPath = opts.DBPath
	}
	if opts.FTSTokenizer != "" {
		cfg.Store.FTSTokenizer = opts.FTSTokenizer
	}
	if opts.InjectBudget > 0 {
		cfg.Loop.DefaultBudget = opts.InjectBudget
	}

	s, err := store.Open(&cfg.Store)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	dbRoot := ""
	if cfg.Store.DBPath != ":memory:" {
		if abs, err := filepath.Abs(filepath.Dir(cfg.Store.DBPath)); err == nil {
			dbRoot = abs
		}
	}

	// The audit trail is always written to stderr regardless of
	// verbosity — Verbose instead governs the CLI's own log level,
	// set up by the caller before Serve runs.
	var auditOut io.Writer

	deps := &Deps{
		Store:  s,
		Policy: policy.New(&cfg.Policy),
		Config: cfg,
		Guard: governance.NewGuard(dbRoot,
			cfg.Governance.MaxWriteBytes,
			cfg.Governance.MaxWriteBytesPerMinute,
			cfg.Governance.MaxImportItems,
			0),
		RateLimit: governance.NewRateLimiter(
			cfg.Governance.WritesPerMinute,
			cfg.Governance.ReadsPerMinute,
			cfg.Governance.BurstFactor,
			cfg.Governance.MaxProposalsPerTurn),
		Sessions: governance.NewSessionTracker(),
		Audit:    governance.NewAuditLogger(auditOut),
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "memctl",
		Version: Version,
	}, nil)

	Register(server, deps)

	return server.Run(context.Background(), &mcp.StdioTransport{})
}
