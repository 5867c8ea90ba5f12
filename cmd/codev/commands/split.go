package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <client> <server>",
		Short: "Write the classes and resources of a client jar that the server lacks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			common, _ := cmd.Flags().GetString("common")
			return c.app.Split(cmd.Context(), app.SplitOptions{Client: args[0], Server: args[1], Out: out, Common: common})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output jar")
	cmd.Flags().String("common", "", "Also merge both sides into this jar (servers without a bundle)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
