package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardcat/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logs.Options
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the cardcat log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return logs.Tail(cmd.Context(), cfg.LogPath(), opts, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Keep printing new lines as they are written")
	cmd.Flags().StringVar(&opts.Component, "component", "", "Only show lines from one component (for example resolve or catalog)")
	return cmd
}
