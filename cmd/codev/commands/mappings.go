package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newMappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Work with mapping files",
	}

	convert := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Merge mapping files and write them as tiny v2",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			return c.app.ConvertMappings(cmd.Context(), args, out)
		},
	}
	convert.Flags().StringP("out", "o", "", "Output tiny file")
	_ = convert.MarkFlagRequired("out")

	cmd.AddCommand(convert)
	return cmd
}
