package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aircrashes/internal/export"
)

var (
	flagFormat string
	flagOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the filtered records as CSV, XLSX or Arrow",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(flagFormat)
		if err != nil {
			return err
		}
		v, _, err := filteredView(cmd.Context())
		if err != nil {
			return err
		}

		if flagOut == "" || flagOut == "-" {
			return export.Write(cmd.OutOrStdout(), format, v)
		}
		f, err := os.Create(flagOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", flagOut, err)
		}
		if err := export.Write(f, format, v); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d records to %s\n", v.Len(), flagOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagFormat, "format", "csv", "output format: csv, xlsx or arrow")
	exportCmd.Flags().StringVarP(&flagOut, "out", "o", "", "output file (default: stdout)")
}
