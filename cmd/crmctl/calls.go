package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/crmsync/internal/api"
	"github.com/spf13/cobra"
)

func newCallsCmd(g *globals) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Show call history grouped by phone number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(func(ctx context.Context, c *api.Client) error {
				resp, err := c.ListCallGroups(ctx)
				if err != nil {
					return err
				}
				if reset {
					if err := c.ResetNewCalls(ctx); err != nil {
						return err
					}
				}
				if g.jsonOut {
					return outputJSON(cmd.OutOrStdout(), resp)
				}
				out := cmd.OutOrStdout()
				s := resp.Stats
				fmt.Fprintf(out, "Total %d  missed %d  answered %d  today %d  new %d\n",
					s.TotalCalls, s.MissedCalls, s.AnsweredCalls, s.TodayCalls, resp.NewCalls)
				for _, grp := range resp.Groups {
					fmt.Fprintln(out, formatCallGroup(grp))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the new-calls badge after listing")
	cmd.AddCommand(newCallsResetCmd(g))
	return cmd
}

func newCallsResetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the new-calls badge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(func(ctx context.Context, c *api.Client) error {
				return c.ResetNewCalls(ctx)
			})
		},
	}
}
