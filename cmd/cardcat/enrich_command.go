package main

import (
	"context"

	"github.com/spf13/cobra"

	"cardcat/internal/enrich"
)

type streamLine struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var flags queryFlags
	var mode string
	cmd := &cobra.Command{
		Use:   "enrich [query...]",
		Short: "Stream enrichment events for a card list as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedMode, err := enrich.ParseMode(mode)
			if err != nil {
				return err
			}
			queries, err := flags.collect(cmd, args)
			if err != nil {
				return err
			}

			return ctx.withServices(cmd, func(svc *services) error {
				opts := enrich.OptionsFromConfig(svc.cfg)
				opts.Mode = parsedMode
				runner := &enrich.Runner{Resolver: svc.resolver, Options: opts, Logger: svc.logger}

				enc := jsonLineEncoder(cmd.OutOrStdout())
				sink := enrich.SinkFunc(func(_ context.Context, ev enrich.Event) error {
					return enc.Encode(streamLine{Event: ev.Name, Data: ev.Data})
				})
				return runner.Run(cmd.Context(), queries, sink)
			})
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&mode, "mode", "best", "Resolution mode: best or all-prints")
	return cmd
}
