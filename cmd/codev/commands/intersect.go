package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newIntersectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intersect <jar>...",
		Short: "Write the classes and members every jar has in common",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			strategy, _ := cmd.Flags().GetString("strategy")
			return c.app.Intersect(cmd.Context(), app.IntersectOptions{
				Inputs:   args,
				Out:      out,
				Strategy: strategy,
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output jar")
	cmd.Flags().String("strategy", "strict", "Class file version handling: strict or cross-version")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
