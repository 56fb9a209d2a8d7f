package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlkit/internal/spiders"
)

// newRunCmd creates the 'run' subcommand, which runs one spider to completion.
func newRunCmd(registry *spiders.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "run <spider>",
		Short: "Runs a registered spider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			spider, err := registry.Get(args[0])
			if err != nil {
				return err
			}
			appInstance.Logger().Info("running spider", zap.String("spider", spider.Name))
			if err := appInstance.Run(cmd.Context(), spider); err != nil {
				return fmt.Errorf("run %s: %w", spider.Name, err)
			}
			return nil
		},
	}
}
