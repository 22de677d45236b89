package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardcat/internal/logging"
	"cardcat/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and streaming enrichment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd, func(svc *services) error {
				if bind != "" {
					svc.cfg.Server.Bind = bind
				}
				srv, err := server.New(server.Deps{
					Config:   svc.cfg,
					Store:    svc.store,
					Resolver: svc.resolver,
					Art:      svc.art,
					Search:   svc.search,
					Logger:   svc.logger,
					Version:  version,
				})
				if err != nil {
					return err
				}
				if err := srv.Start(cmd.Context()); err != nil {
					return fmt.Errorf("start server: %w", err)
				}
				svc.logger.Info("cardcat serving",
					logging.String("address", srv.Addr()),
					logging.String("database", svc.cfg.DatabasePath()),
					logging.String("version", version),
				)
				<-cmd.Context().Done()
				srv.Stop()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override the configured listen address")
	return cmd
}
