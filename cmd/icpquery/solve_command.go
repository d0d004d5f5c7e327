package main

import (
	"github.com/spf13/cobra"

	"icpquery/internal/daemonrun"
)

type credentialOutput struct {
	Identifier string `json:"identifier"`
	Sign       string `json:"sign"`
}

func newSolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "solve",
		Short: "Solve one registry challenge and print the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd.Context(), func(c *daemonrun.Components) error {
				cred, err := c.Pool.Acquire(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd, credentialOutput{Identifier: cred.Identifier, Sign: cred.Sign})
			})
		},
	}
}
