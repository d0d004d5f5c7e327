package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"icpquery/internal/daemonrun"
	"icpquery/internal/query"
)

func newQueryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "query <domain>",
		Short: "Look up the filing record for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd.Context(), func(c *daemonrun.Components) error {
				result, err := c.Query.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				return printLookup(cmd, result)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}

func printLookup(cmd *cobra.Command, result query.Result) error {
	out := cmd.OutOrStdout()
	if result.Record == nil {
		fmt.Fprintln(out, "No record")
		return nil
	}
	fmt.Fprintln(out, renderRecordDetail(result.Record))
	fmt.Fprintf(out, "Served from cache: %s\n", yesNo(result.Cached))
	return nil
}
