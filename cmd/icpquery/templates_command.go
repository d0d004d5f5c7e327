package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"icpquery/internal/background"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the background templates the solver will load",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			canvas := background.Canvas{Width: cfg.Captcha.CanvasWidth, Height: cfg.Captcha.CanvasHeight}
			templates, err := background.LoadTemplates(cfg.Captcha.TemplateDir, canvas)
			if err != nil {
				return err
			}
			defer templates.Close()

			names := templates.Names()
			rows := make([][]string, 0, len(names))
			for i, name := range names {
				rows = append(rows, []string{strconv.Itoa(i), name})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"#", "Template"}, rows, []columnAlignment{alignRight, alignLeft}))
			fmt.Fprintf(out, "%d templates in %s (%dx%d)\n", len(names), cfg.Captcha.TemplateDir, canvas.Width, canvas.Height)
			return nil
		},
	}
}
