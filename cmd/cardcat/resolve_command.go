package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cardcat/internal/card"
	"cardcat/internal/language"
)

type resolveOutput struct {
	Cards   map[string]card.Record `json:"cards"`
	Missing []string               `json:"missing"`
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "resolve [query...]",
		Short: "Resolve card queries to canonical records",
		Long: `Resolve card queries to canonical records.

Queries are card names, optionally followed by a set code in parentheses and a
collector number, for example "Sol Ring (C21) 263". Lists may be read from a
file with --file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := flags.collect(cmd, args)
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(svc *services) error {
				found, err := svc.resolver.ResolveBatch(cmd.Context(), queries)
				if err != nil {
					return fmt.Errorf("resolve: %w", err)
				}

				out := resolveOutput{Cards: found, Missing: []string{}}
				rows := make([][]string, 0, len(queries))
				seen := make(map[string]struct{}, len(queries))
				for _, q := range queries {
					key := q.Normalize().Key()
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					rec, ok := found[key]
					if !ok {
						out.Missing = append(out.Missing, key)
						rows = append(rows, []string{q.Normalize().String(), "-", "", "", "", "not found"})
						continue
					}
					rows = append(rows, []string{
						q.Normalize().String(), rec.Name, strings.ToUpper(rec.Set), rec.CollectorNumber, language.DisplayName(rec.Lang), rec.TypeLine,
					})
				}

				if ctx.jsonOutput() {
					return writeJSON(cmd, out)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, renderTable(
					[]string{"Query", "Card", "Set", "Number", "Language", "Type"},
					rows, nil, shouldColorize(w),
				))
				fmt.Fprintf(w, "Resolved %d of %d\n", len(seen)-len(out.Missing), len(seen))
				return nil
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

type tokensOutput struct {
	Card       card.Record      `json:"card"`
	TokenParts []card.TokenPart `json:"tokenParts"`
}

func newTokensCommand(ctx *commandContext) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "tokens <card name>",
		Short: "List the tokens a card creates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := flags.collect(cmd, []string{strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return ctx.withServices(cmd, func(svc *services) error {
				rec, err := svc.resolver.ResolveOne(cmd.Context(), queries[0])
				if err != nil {
					return err
				}
				tokens := card.DeriveTokens(rec)
				if ctx.jsonOutput() {
					return writeJSON(cmd, tokensOutput{Card: rec, TokenParts: tokens})
				}

				w := cmd.OutOrStdout()
				if len(tokens) == 0 {
					fmt.Fprintf(w, "%s creates no tokens\n", rec.Name)
					return nil
				}
				rows := make([][]string, 0, len(tokens))
				for _, tok := range tokens {
					rows = append(rows, []string{tok.Name, tok.TypeLine, tok.ID})
				}
				fmt.Fprintf(w, "Tokens for %s (%s)\n", rec.Name, strings.ToUpper(rec.Set))
				fmt.Fprintln(w, renderTable([]string{"Token", "Type", "ID"}, rows, nil, shouldColorize(w)))
				return nil
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}
