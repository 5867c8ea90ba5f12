package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/codev/internal/app"
	"go.trai.ch/codev/internal/core/domain"
)

func (c *CLI) newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <version>",
		Short: "Download the jar of a game version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sideName, _ := cmd.Flags().GetString("side")
			side, err := domain.ParseSide(sideName)
			if err != nil {
				return err
			}
			split, _ := cmd.Flags().GetBool("split")
			mappings, _ := cmd.Flags().GetBool("mappings")
			out, _ := cmd.Flags().GetString("out")

			paths, err := c.app.Fetch(cmd.Context(), app.FetchOptions{
				Version:  args[0],
				Side:     side,
				Split:    split,
				Mappings: mappings,
				Out:      out,
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
	cmd.Flags().StringP("side", "s", string(domain.SideClient), "Side to fetch: client or server")
	cmd.Flags().Bool("split", false, "Reduce the client to the classes the server lacks")
	cmd.Flags().BoolP("mappings", "m", false, "Also fetch the obfuscation map")
	cmd.Flags().StringP("out", "o", "", "Copy the jar to this path")
	return cmd
}
