package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const sampleCSV = `Year,Country/Region,Aircraft,Operator,Location,Fatalities (air),Aboard
1999,USA,DC-9,Airline A,"Boston, MA",10,12
2005,USA,B737,Airline B,Denver,20,25
2005,France,A320,Airline C,Nice,0,3
`

// resetFlags clears flag values left over from a previous Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func setup(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	path := filepath.Join(t.TempDir(), "air_crashes.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExportCommand(t *testing.T) {
	data := setup(t)
	out := filepath.Join(t.TempDir(), "usa.csv")

	if _, err := run(t, "export", "--data", data, "--country", "USA", "--format", "csv", "--out", out); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("Expected header + 2 USA rows, got %d", len(rows))
	}
	if rows[1][4] != "Boston, MA" {
		t.Errorf("unexpected first row: %v", rows[1])
	}
}

func TestReportCommand(t *testing.T) {
	data := setup(t)

	out, err := run(t, "report", "--data", data, "--year-min", "2000", "--year-max", "2023", "--country", "all", "--width", "80")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "10.00") || !strings.Contains(out, "B737") {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestReportBadRange(t *testing.T) {
	data := setup(t)

	if _, err := run(t, "report", "--data", data, "--year-min", "2010", "--year-max", "2000"); err == nil {
		t.Fatal("expected an error for an inverted year range")
	}
}

func TestMissingDataFile(t *testing.T) {
	setup(t)

	_, err := run(t, "report", "--data", filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil || !strings.Contains(err.Error(), "missing.csv") {
		t.Fatalf("expected load error naming the file, got %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	setup(t)
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	out, err := run(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("unexpected output: %s", out)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "trend_window: 5") {
		t.Errorf("unexpected config content:\n%s", b)
	}

	if _, err := run(t, "config", "init", "--config", path); err == nil {
		t.Error("expected refusal to overwrite without --force")
	}
}

func TestServeFilterDefaults(t *testing.T) {
	data := setup(t)

	if _, err := run(t, "report", "--data", data, "--country", "France", "--year-min", "2001"); err != nil {
		t.Fatalf("report: %v", err)
	}
	opts := handlerOptions()
	if len(opts.DefaultCountries) != 1 || opts.DefaultCountries[0] != "France" {
		t.Errorf("Expected France as default country, got %v", opts.DefaultCountries)
	}
	if opts.DefaultYearMin != 2001 || opts.DefaultYearMax != 0 {
		t.Errorf("unexpected year defaults: %d-%d", opts.DefaultYearMin, opts.DefaultYearMax)
	}
}
