package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [artifacts...]",
		Short: "Build configured artifacts and the artifacts they intersect with",
		Long: "Build runs the pipelines of codev.yaml. Without arguments every artifact is built.\n" +
			"Stages whose inputs did not change are served from the cache.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return c.app.Build(cmd.Context(), args, app.BuildOptions{OutputDir: out})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Copy the built artifacts to this directory")
	return cmd
}
