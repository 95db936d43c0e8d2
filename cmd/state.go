package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and maintain stored watch records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Rewrite stored records in the current format without fetching anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store := a.Store()
			st, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load state: %w", err)
			}
			if err := store.Save(cmd.Context(), st); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
			a.Logger().Info("state migrated", zap.Int("records", len(st)))
			return nil
		},
	})
	return cmd
}
