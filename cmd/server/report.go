package main

import (
	"github.com/spf13/cobra"

	"aircrashes/internal/engine"
	"aircrashes/internal/report"
)

var (
	flagColor bool
	flagWidth int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a dashboard report for the selected years and countries",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, crit, err := filteredView(cmd.Context())
		if err != nil {
			return err
		}
		d, err := engine.BuildDashboard(v, crit, cfg.DashboardOptions())
		if err != nil {
			return err
		}
		return report.Render(cmd.OutOrStdout(), d, report.Options{Width: flagWidth, ForceColor: flagColor})
	},
}

func init() {
	reportCmd.Flags().BoolVar(&flagColor, "color", false, "force colored output")
	reportCmd.Flags().IntVar(&flagWidth, "width", 0, "report width (default: terminal width)")
}
