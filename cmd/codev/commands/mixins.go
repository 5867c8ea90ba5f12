package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newMixinsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mixins",
		Short: "Remove mixin configs from mod jars",
	}
	cmd.AddCommand(c.newMixinsSubCmd("strip", "Remove mixin configs when the jar declares any", false))
	cmd.AddCommand(c.newMixinsSubCmd("remove", "Remove mixin configs, failing when none can be found", true))
	return cmd
}

func (c *CLI) newMixinsSubCmd(use, short string, required bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <jar>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return c.app.Mixins(cmd.Context(), app.MixinsOptions{
				Input:    args[0],
				Out:      out,
				Required: required,
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output jar")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
