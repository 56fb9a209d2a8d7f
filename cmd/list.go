package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlkit/internal/spiders"
)

// newListCmd creates the 'list' subcommand.
func newListCmd(registry *spiders.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists registered spiders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range registry.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
