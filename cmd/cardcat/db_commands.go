package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cardcat/internal/store"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Card database utilities",
	}
	dbCmd.AddCommand(newDBVersionCommand(ctx))
	dbCmd.AddCommand(newDBMigrateCommand(ctx))
	return dbCmd
}

type dbVersionOutput struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Version int    `json:"version"`
	Current int    `json:"current"`
}

func newDBVersionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the database schema version without migrating",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			version, exists, err := store.Inspect(cmd.Context(), cfg.DatabasePath())
			if err != nil {
				return err
			}
			out := dbVersionOutput{Path: cfg.DatabasePath(), Exists: exists, Version: version, Current: store.CurrentVersion}
			if ctx.jsonOutput() {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Database: %s\n", out.Path)
			if !exists {
				fmt.Fprintln(w, "Database does not exist yet")
				return nil
			}
			fmt.Fprintf(w, "Schema version: %d (current %d)\n", out.Version, out.Current)
			if out.Version < out.Current {
				fmt.Fprintln(w, "Run `cardcat db migrate` to upgrade")
			}
			return nil
		},
	}
}

func newDBMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the card database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			before, _, err := store.Inspect(cmd.Context(), cfg.DatabasePath())
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cfg)
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.DatabasePath(), store.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("migrate %s: %w", cfg.DatabasePath(), err)
			}
			defer st.Close()
			after, err := st.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if before == after {
				fmt.Fprintf(w, "Database already at schema version %d\n", after)
				return nil
			}
			fmt.Fprintf(w, "Migrated database from version %d to %d\n", before, after)
			return nil
		},
	}
}
