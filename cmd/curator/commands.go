package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/STRATINT/eventcurator/internal/eventmanager"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "curator",
		Short: "Scrape, deduplicate and curate local events",
		Long: `curator pulls event announcements from the sources listed in the
pipeline file, merges them into the pending collection and moves events
through publish, reject and archive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newScrapeCmd(),
		newPublishCmd(),
		newRejectCmd(),
		newAutoRejectCmd(),
		newArchiveCmd(),
		newStatsCmd(),
	)
	return root
}

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Fetch all enabled sources and merge new events into pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "scrape", true, func(ctx context.Context, a *app) error {
				summary, err := a.manager.Scrape(ctx)
				a.recordScrape(summary)
				if printErr := printJSON(summary); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <id|pattern>...",
		Short: "Publish pending events by ID, title or wildcard pattern",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "publish", false, func(ctx context.Context, a *app) error {
				result, err := a.manager.Publish(ctx, args...)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func newRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id|pattern>...",
		Short: "Reject pending events by ID, title or wildcard pattern",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "reject", false, func(ctx context.Context, a *app) error {
				result, err := a.manager.Reject(ctx, reason, args...)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on each rejected event")
	return cmd
}

func newAutoRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto-reject",
		Short: "Apply the auto-reject rules to pending events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "auto-reject", false, func(ctx context.Context, a *app) error {
				summary, err := a.manager.AutoReject(ctx, time.Now())
				if err != nil {
					return err
				}
				a.collector.Candidates("auto_rejected", summary.Total())
				return printJSON(summary)
			})
		},
	}
}

func newArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move published events past the retention window into monthly archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "archive", false, func(ctx context.Context, a *app) error {
				summary, err := a.manager.Archive(ctx, time.Now())
				if err != nil {
					return err
				}
				a.collector.Archived(summary.Archived)
				return printJSON(summary)
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show collection sizes and archive partitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, "stats", false, func(ctx context.Context, a *app) error {
				stats, err := a.manager.Stats(ctx)
				if err != nil {
					return err
				}
				out := struct {
					eventmanager.Stats
					Database map[string]any `json:"database,omitempty"`
				}{Stats: stats, Database: a.databaseStats(ctx)}
				return printJSON(out)
			})
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
