package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memctl/memctl/internal/inspect"
	"github.com/memctl/memctl/internal/sync"
)

func mountCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "mount <path>",
		Short: "Register a folder as a mount point (metadata only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				fail("mount", err)
				return errOperational
			}
			defer s.Close()
			mountID, err := sync.RegisterMount(s, args[0], name, nil, "")
			if err != nil {
				fail("mount", err)
				return errOperational
			}
			if flags.jsonOut {
				return printJSON(map[string]any{"mount_id": mountID})
			}
			fmt.Println(mountID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Optional human-readable name")
	return cmd
}

func syncCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "sync <path>",
		Short: "Sync a mounted folder's files into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				fail("sync", err)
				return errOperational
			}
			defer s.Close()
			res, err := sync.SyncMount(s, args[0], sync.SyncOptions{Delta: !full, Quiet: flags.quiet})
			if err != nil {
				fail("sync", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(res)
			}
			fmt.Printf("new=%d changed=%d unchanged=%d chunks=%d\n",
				res.FilesNew, res.FilesChanged, res.FilesUnchanged, res.ChunksCreated)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Re-ingest every file regardless of change detection")
	return cmd
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Force a full resync of every registered mount",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openStore()
			if err != nil {
				fail("reindex", err)
				return errOperational
			}
			defer s.Close()
			results, err := sync.SyncAll(s, sync.SyncOptions{Delta: false, Quiet: flags.quiet})
			if err != nil {
				fail("reindex", err)
				return errInternal
			}
			if flags.jsonOut {
				return printJSON(results)
			}
			for path, res := range results {
				fmt.Printf("%s: new=%d changed=%d chunks=%d\n", path, res.FilesNew, res.FilesChanged, res.ChunksCreated)
			}
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	var syncFlag string
	cmd := &cobra.Command{
		Use:   "inspect <path>",
		Short: "Print a deterministic structural summary of a mounted folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore()
			if err != nil {
				fail("inspect", err)
				return errOperational
			}
			defer s.Close()

			budget := cfg.Loop.DefaultBudget
			if flags.budget > 0 {
				budget = flags.budget
			}
			syncMode := inspect.SyncMode(syncFlag)
			if syncMode == "" {
				syncMode = inspect.SyncAuto
			}
			ir, err := inspect.InspectPath(s, args[0], syncMode, inspect.MountPersist, budget, nil,
				func(f string, a ...any) { diagf(f, a...) })
			if err != nil {
				fail("inspect", err)
				return errInternal
			}
			block, err := inspect.InspectMount(s, ir.MountID, ir.MountLabel, budget)
			if err != nil {
				fail("inspect", err)
				return errInternal
			}
			fmt.Println(block)
			return nil
		},
	}
	cmd.Flags().StringVar(&syncFlag, "sync", "auto", "auto, always, or never")
	return cmd
}
