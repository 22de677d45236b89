package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the card store and search cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

type cacheStatsOutput struct {
	Cards        int        `json:"cards"`
	SearchRows   int        `json:"searchRows"`
	SearchOldest *time.Time `json:"searchOldest,omitempty"`
	SearchNewest *time.Time `json:"searchNewest,omitempty"`
	SearchTTL    string     `json:"searchTtl"`
	ArtSearch    bool       `json:"artSearch"`
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached card and search counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(svc *services) error {
				cards, err := svc.store.CardCount(cmd.Context())
				if err != nil {
					return err
				}
				stats, err := svc.search.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cacheStatsOutput{
					Cards:      cards,
					SearchRows: stats.Rows,
					SearchTTL:  svc.cfg.SearchTTL().String(),
					ArtSearch:  svc.art.Enabled(),
				}
				if !stats.Oldest.IsZero() {
					out.SearchOldest = &stats.Oldest
					out.SearchNewest = &stats.Newest
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, out)
				}

				rows := [][]string{
					{"Cards", strconv.Itoa(out.Cards)},
					{"Search rows", strconv.Itoa(out.SearchRows)},
					{"Oldest search", formatTime(stats.Oldest)},
					{"Newest search", formatTime(stats.Newest)},
					{"Search TTL", out.SearchTTL},
					{"Art search", yesNo(out.ArtSearch)},
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, renderTable([]string{"Cache", "Value"}, rows, []columnAlignment{alignLeft, alignRight}, shouldColorize(w)))
				return nil
			})
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired search cache rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(svc *services) error {
				removed, err := svc.search.PurgeExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired search rows\n", removed)
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every search cache row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(svc *services) error {
				if err := svc.search.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Search cache cleared")
				return nil
			})
		},
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
