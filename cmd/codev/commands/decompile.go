package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newDecompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decompile <jar>",
		Short: "Write a sources jar with the configured decompiler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			classpath, _ := cmd.Flags().GetStringSlice("classpath")
			return c.app.Decompile(cmd.Context(), app.DecompileOptions{
				Input:     args[0],
				Out:       out,
				Classpath: classpath,
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output sources jar")
	cmd.Flags().StringSlice("classpath", nil, "Libraries passed to the decompiler")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
