package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Inspect bundled server jars",
	}
	cmd.AddCommand(c.newServerExtractCmd())
	cmd.AddCommand(c.newServerLibrariesCmd())
	return cmd
}

func (c *CLI) newServerExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <jar>",
		Short: "Write the server jar embedded in a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, _ := cmd.Flags().GetString("game-version")
			out, _ := cmd.Flags().GetString("out")
			legacy, _ := cmd.Flags().GetBool("allow-legacy")
			return c.app.ExtractServer(cmd.Context(), app.ServerOptions{
				Jar:         args[0],
				Version:     version,
				Out:         out,
				AllowLegacy: legacy,
			})
		},
	}
	cmd.Flags().String("game-version", "", "Game version to extract")
	cmd.Flags().StringP("out", "o", "", "Output jar")
	cmd.Flags().Bool("allow-legacy", false, "Copy jars without a bundle index as they are")
	_ = cmd.MarkFlagRequired("game-version")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (c *CLI) newServerLibrariesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "libraries <jar>",
		Short: "List the libraries embedded in a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			libs, err := c.app.Libraries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, lib := range libs {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), lib.String())
			}
			return nil
		},
	}
}
