package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"icpquery/internal/store"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List cached filing records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Store.ListPageSize
			}

			records, err := store.Open(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer records.Close()

			rows, err := records.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, rows)
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No cached records")
				return nil
			}
			fmt.Fprintln(out, renderRecordTable(rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to list (0 lists all; defaults to store.list_page_size)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	return cmd
}
