package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/config"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg := config.Default()
			if flags.db != "" {
				cfg.Store.DBPath = flags.db
			}
			if err := config.Write(cwd, cfg); err != nil {
				fail("init", err)
				return errOperational
			}
			s, _, err := openStore()
			if err != nil {
				fail("init", err)
				return errOperational
			}
			defer s.Close()
			fmt.Printf("Initialized memctl store at %s\n", cfg.Store.DBPath)
			fmt.Printf("Config written to %s\n", config.ConfigFilePath(cwd))
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store-wide counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				fail("stats", err)
				return errOperational
			}
			defer s.Close()
			st, err := s.Stats()
			if err != nil {
				fail("stats", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(st)
			}
			fmt.Printf("Total items:  %d\n", st.Total)
			for tier, n := range st.ByTier {
				fmt.Printf("  %-5s %d\n", tier, n)
			}
			fmt.Printf("Events:       %d\n", st.EventsCount)
			fmt.Printf("Embeddings:   %d\n", st.EmbeddingsCount)
			fmt.Printf("FTS5:         %v (%s)\n", st.FTS5Available, st.FTSTokenizer)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the store and its registered mounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore()
			if err != nil {
				fail("status", err)
				return errOperational
			}
			defer s.Close()

			st, err := s.Stats()
			if err != nil {
				fail("status", err)
				return errInternal
			}
			mounts, err := s.ListMounts()
			if err != nil {
				fail("status", err)
				return errInternal
			}

			if flags.jsonOut {
				return printJSON(map[string]any{
					"db_path": cfg.Store.DBPath,
					"stats":   st,
					"mounts":  mounts,
				})
			}
			fmt.Printf("Database: %s\n", cfg.Store.DBPath)
			fmt.Printf("Items:    %d (fts5=%v)\n", st.Total, st.FTS5Available)
			fmt.Printf("Mounts:   %d\n", len(mounts))
			for _, m := range mounts {
				fmt.Printf("  %-12s %s\n", m.MountID, m.Path)
			}
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var preserveMounts, dryRun, yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase store content; mounts are preserved unless --preserve-mounts=false",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !dryRun {
				fmt.Fprintln(os.Stderr, "reset is destructive; pass --yes to confirm or --dry-run to preview")
				return errOperational
			}
			s, _, err := openStore()
			if err != nil {
				fail("reset", err)
				return errOperational
			}
			defer s.Close()
			counts, err := s.Reset(preserveMounts, dryRun)
			if err != nil {
				fail("reset", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(counts)
			}
			for table, n := range counts {
				fmt.Printf("%-16s %d\n", table, n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&preserveMounts, "preserve-mounts", true, "Keep mount registrations across the reset")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be erased without writing")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the destructive reset")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
