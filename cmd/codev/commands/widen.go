package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newWidenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "widen <jar>",
		Short: "Apply access wideners and transformers to a jar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			wideners, _ := cmd.Flags().GetStringSlice("widener")
			namespace, _ := cmd.Flags().GetString("namespace")
			return c.app.Widen(cmd.Context(), app.WidenOptions{
				Input:     args[0],
				Out:       out,
				Wideners:  wideners,
				Namespace: namespace,
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output jar")
	cmd.Flags().StringSliceP("widener", "w", nil, "Access wideners, transformers or mod jars declaring them")
	cmd.Flags().String("namespace", "", "Namespace the wideners must be written in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
