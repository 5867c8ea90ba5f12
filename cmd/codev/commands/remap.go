package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
	"go.trai.ch/codev/internal/core/domain"
)

func (c *CLI) newRemapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remap <jar>",
		Short: "Remap a jar between two mapping namespaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			out, _ := flags.GetString("out")
			from, _ := flags.GetString("from")
			to, _ := flags.GetString("to")
			mappings, _ := flags.GetStringSlice("mappings")
			classpath, _ := flags.GetStringSlice("classpath")
			return c.app.Remap(cmd.Context(), app.RemapOptions{
				Input:     args[0],
				Out:       out,
				From:      from,
				To:        to,
				Mappings:  mappings,
				Classpath: classpath,
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output jar")
	cmd.Flags().String("from", domain.NamespaceObf, "Namespace of the input jar")
	cmd.Flags().String("to", domain.NamespaceNamed, "Namespace to remap to")
	cmd.Flags().StringSliceP("mappings", "m", nil, "Mapping files (tiny, proguard, or a jar holding mappings.tiny)")
	cmd.Flags().StringSlice("classpath", nil, "Jars the input compiles against")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
