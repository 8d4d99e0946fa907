package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aircrashes/internal/config"
	"aircrashes/internal/engine"
)

var (
	// Global flags, applied over the loaded configuration
	cfgFile       string
	debug         bool
	flagData      string
	flagEncoding  string
	flagYearMin   int
	flagYearMax   int
	flagCountries []string

	// Loaded configuration
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "aircrashes",
	Short:         "Historical air crash statistics",
	Long:          `aircrashes loads a CSV of historical air crashes, normalises it once, and serves filtered aggregates over HTTP or as a terminal report.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ~/.aircrashes/config.yaml)")
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	f.StringVar(&flagData, "data", "", "path to the crash CSV (overrides config)")
	f.StringVar(&flagEncoding, "encoding", "", "source encoding: utf-8 or latin-1 (overrides config)")
	f.IntVar(&flagYearMin, "year-min", 0, "first year to include (default: dataset start)")
	f.IntVar(&flagYearMax, "year-max", 0, "last year to include (default: dataset end)")
	f.StringSliceVar(&flagCountries, "country", nil, "restrict to these countries (repeatable, \"all\" for none); serve uses it as the default filter")

	rootCmd.AddCommand(serveCmd, reportCmd, exportCmd, configCmd)
}

func loadConfig(cmd *cobra.Command) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Apply CLI overrides if provided
	f := cmd.Root().PersistentFlags()
	if f.Changed("data") {
		c.DataPath = flagData
	}
	if f.Changed("encoding") {
		c.Encoding = flagEncoding
	}
	if debug {
		c.LogLevel = "debug"
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = c
	setDefaultLogger(c)
	return nil
}

// criteria resolves the year range and countries for ds: flags first, then
// config defaults, then the dataset bounds.
func criteria(ds *engine.Dataset) engine.FilterCriteria {
	lo, hi, _ := ds.YearBounds()
	if cfg.DefaultYearMin != 0 {
		lo = cfg.DefaultYearMin
	}
	if cfg.DefaultYearMax != 0 {
		hi = cfg.DefaultYearMax
	}
	f := rootCmd.PersistentFlags()
	if f.Changed("year-min") {
		lo = flagYearMin
	}
	if f.Changed("year-max") {
		hi = flagYearMax
	}
	return engine.FilterCriteria{YearMin: lo, YearMax: hi, Countries: flagCountries}
}

// filteredView loads the configured source and applies the CLI filter.
func filteredView(ctx context.Context) (engine.View, engine.FilterCriteria, error) {
	src, err := cfg.Source()
	if err != nil {
		return engine.View{}, engine.FilterCriteria{}, err
	}
	ds, err := engine.NewCache().Dataset(ctx, src)
	if err != nil {
		return engine.View{}, engine.FilterCriteria{}, err
	}
	crit := criteria(ds)
	v, err := engine.Filter(ds.All(), crit)
	if err != nil {
		return engine.View{}, crit, err
	}
	return v, crit, nil
}
