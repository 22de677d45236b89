package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cardcat/internal/artsearch"
)

func newArtCommand(ctx *commandContext) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "art <query>",
		Short: "Search the secondary art catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized, err := artsearch.NormalizeCategory(category)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			return ctx.withServices(cmd, func(svc *services) error {
				if !svc.art.Enabled() {
					return fmt.Errorf("%w: set [art_search] enabled and base_url", artsearch.ErrDisabled)
				}
				results, err := svc.art.Search(cmd.Context(), query, normalized)
				if err != nil {
					return fmt.Errorf("art search: %w", err)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, results)
				}

				w := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintf(w, "No %s art found for %q\n", strings.ToLower(normalized), query)
					return nil
				}
				rows := make([][]string, 0, len(results))
				for _, res := range results {
					rows = append(rows, []string{res.Name, res.Artist, res.ImageURL})
				}
				fmt.Fprintln(w, renderTable([]string{"Name", "Artist", "Image"}, rows, nil, shouldColorize(w)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", artsearch.CategoryCard, "Art category: CARD, CARDBACK, or TOKEN")
	return cmd
}
