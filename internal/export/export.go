package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	"aircrashes/internal/engine"
	"aircrashes/internal/models"
)

// Format is a download format for a filtered view.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatArrow Format = "arrow"
)

// SheetName is the worksheet that holds the records in an XLSX export.
const SheetName = "Crashes"

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatArrow:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q (use csv, xlsx or arrow)", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatArrow:
		return "application/vnd.apache.arrow.stream"
	}
	return "text/csv; charset=utf-8"
}

// FileName is the suggested download name.
func (f Format) FileName() string {
	return "air_crashes." + string(f)
}

// Write encodes the records of v to w.
func Write(w io.Writer, f Format, v engine.View) error {
	records := v.Records()
	switch f {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatXLSX:
		return WriteXLSX(w, records)
	case FormatArrow:
		return WriteArrow(w, records)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// --- CSV ---

// columns splits records into one slice per output column, in
// engine.ColumnNames order. Missing coordinates are empty strings.
type columns struct {
	years, fatalities, aboard                 []int
	countries, aircraft, operators, locations []string
	lats, lons                                []string
}

func split(records []models.Record) columns {
	n := len(records)
	c := columns{
		years: make([]int, n), fatalities: make([]int, n), aboard: make([]int, n),
		countries: make([]string, n), aircraft: make([]string, n),
		operators: make([]string, n), locations: make([]string, n),
		lats: make([]string, n), lons: make([]string, n),
	}
	for i, r := range records {
		c.years[i] = r.Year
		c.countries[i] = r.Country
		c.aircraft[i] = r.Aircraft
		c.operators[i] = r.Operator
		c.locations[i] = r.Location
		c.fatalities[i] = r.Fatalities
		c.aboard[i] = r.Aboard
		if r.HasCoords() {
			c.lats[i] = formatFloat(*r.Latitude)
			c.lons[i] = formatFloat(*r.Longitude)
		}
	}
	return c
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteCSV writes records with the canonical source header.
func WriteCSV(w io.Writer, records []models.Record) error {
	names := engine.ColumnNames()
	c := split(records)
	df := dataframe.New(
		series.New(c.years, series.Int, names[0]),
		series.New(c.countries, series.String, names[1]),
		series.New(c.aircraft, series.String, names[2]),
		series.New(c.operators, series.String, names[3]),
		series.New(c.locations, series.String, names[4]),
		series.New(c.fatalities, series.Int, names[5]),
		series.New(c.aboard, series.Int, names[6]),
		series.New(c.lats, series.String, names[7]),
		series.New(c.lons, series.String, names[8]),
	)
	if df.Err != nil {
		return fmt.Errorf("build dataframe: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// --- XLSX ---

// WriteXLSX writes a workbook with a single "Crashes" sheet.
func WriteXLSX(w io.Writer, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, 0, len(engine.ColumnNames()))
	for _, name := range engine.ColumnNames() {
		header = append(header, name)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range records {
		row := []interface{}{r.Year, r.Country, r.Aircraft, r.Operator, r.Location, r.Fatalities, r.Aboard, nil, nil}
		if r.HasCoords() {
			row[7], row[8] = *r.Latitude, *r.Longitude
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// --- ARROW ---

// Schema is the Arrow schema of an export. Coordinates are nullable.
func Schema() *arrow.Schema {
	names := engine.ColumnNames()
	return arrow.NewSchema([]arrow.Field{
		{Name: names[0], Type: arrow.PrimitiveTypes.Int32},
		{Name: names[1], Type: arrow.BinaryTypes.String},
		{Name: names[2], Type: arrow.BinaryTypes.String},
		{Name: names[3], Type: arrow.BinaryTypes.String},
		{Name: names[4], Type: arrow.BinaryTypes.String},
		{Name: names[5], Type: arrow.PrimitiveTypes.Int32},
		{Name: names[6], Type: arrow.PrimitiveTypes.Int32},
		{Name: names[7], Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: names[8], Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
}

// WriteArrow writes records as a single-batch Arrow IPC stream.
func WriteArrow(w io.Writer, records []models.Record) error {
	mem := memory.NewGoAllocator()
	schema := Schema()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	years := b.Field(0).(*array.Int32Builder)
	countries := b.Field(1).(*array.StringBuilder)
	aircraft := b.Field(2).(*array.StringBuilder)
	operators := b.Field(3).(*array.StringBuilder)
	locations := b.Field(4).(*array.StringBuilder)
	fatalities := b.Field(5).(*array.Int32Builder)
	aboard := b.Field(6).(*array.Int32Builder)
	lats := b.Field(7).(*array.Float64Builder)
	lons := b.Field(8).(*array.Float64Builder)

	for _, r := range records {
		years.Append(int32(r.Year))
		countries.Append(r.Country)
		aircraft.Append(r.Aircraft)
		operators.Append(r.Operator)
		locations.Append(r.Location)
		fatalities.Append(int32(r.Fatalities))
		aboard.Append(int32(r.Aboard))
		if r.HasCoords() {
			lats.Append(*r.Latitude)
			lons.Append(*r.Longitude)
		} else {
			lats.AppendNull()
			lons.AppendNull()
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("write arrow batch: %w", err)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("close arrow stream: %w", err)
	}
	return nil
}
