package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
)

func (c *CLI) newIncludesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "includes <jar>",
		Short: "Extract the jars nested in a mod jar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, _ := cmd.Flags().GetString("out-dir")
			classpath, _ := cmd.Flags().GetStringSlice("classpath")
			paths, err := c.app.Includes(cmd.Context(), app.IncludesOptions{
				Input:     args[0],
				OutDir:    outDir,
				Classpath: classpath,
			})
			if err != nil {
				return err
			}
			for _, p := range paths {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringP("out-dir", "d", "", "Directory receiving the nested jars and the stripped jar")
	cmd.Flags().StringSlice("classpath", nil, "Jars that are not extracted again when nested")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}
