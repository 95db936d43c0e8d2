package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check every page once",
		Long: `Runs a single cycle: every URL in the list is fetched and compared with its
stored record, changes are reported and the state is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := a.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			if summary.NotifyErr != "" {
				return fmt.Errorf("notification failed: %s", summary.NotifyErr)
			}
			return nil
		},
	}
}
