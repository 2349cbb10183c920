package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScanCmd() *cobra.Command {
	var deliver bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Runs a single monitoring cycle and prints its alerts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := appInstance.Close(); cerr != nil {
					zap.L().Warn("close failed", zap.Error(cerr))
				}
			}()

			alerts, err := appInstance.Scan(cmd.Context(), deliver)
			out := cmd.OutOrStdout()
			for _, a := range alerts {
				fmt.Fprintln(out, a)
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%d price errors found\n", len(alerts))
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deliver, "deliver", false, "also send the alerts to the configured sinks")
	return cmd
}
