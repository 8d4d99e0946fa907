package engine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"aircrashes/internal/models"
)

// Encoding is the character encoding of a source file.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "latin-1"
)

func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, s)
}

// Source identifies a CSV file and how to decode it.
type Source struct {
	Path     string
	Encoding Encoding
}

// --- 1. COLUMN RESOLUTION ---

type column int

const (
	colYear column = iota
	colCountry
	colAircraft
	colOperator
	colLocation
	colFatalities
	colAboard
	colLatitude
	colLongitude
	numColumns
)

// Canonical header names, also used when the view is written back out.
var columnNames = [numColumns]string{
	colYear:       "Year",
	colCountry:    "Country/Region",
	colAircraft:   "Aircraft",
	colOperator:   "Operator",
	colLocation:   "Location",
	colFatalities: "Fatalities (air)",
	colAboard:     "Aboard",
	colLatitude:   "Latitude",
	colLongitude:  "Longitude",
}

// ColumnNames returns the canonical header in output order.
func ColumnNames() []string {
	out := make([]string, numColumns)
	copy(out, columnNames[:])
	return out
}

var headerAliases = map[string]column{
	"year":             colYear,
	"country/region":   colCountry,
	"country":          colCountry,
	"aircraft":         colAircraft,
	"operator":         colOperator,
	"location":         colLocation,
	"fatalities (air)": colFatalities,
	"fatalities":       colFatalities,
	"aboard":           colAboard,
	"latitude":         colLatitude,
	"lat":              colLatitude,
	"longitude":        colLongitude,
	"lon":              colLongitude,
	"lng":              colLongitude,
}

var requiredColumns = []column{colYear, colCountry, colFatalities, colAboard}

const utf8BOM = "\uFEFF"

// resolveColumns maps each known column to its index in header, -1 if absent.
func resolveColumns(header []string) ([numColumns]int, error) {
	var idx [numColumns]int
	for i := range idx {
		idx[i] = -1
	}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM)))
		if col, ok := headerAliases[name]; ok && idx[col] == -1 {
			idx[col] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if idx[col] == -1 {
			missing = append(missing, columnNames[col])
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

// --- 2. CELL PARSERS ---

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseYear accepts "1999" and "1999.0"; fractions are truncated. Years
// outside [yearFloor, yearCeiling] are rejected.
func parseYear(s string) (int, bool) {
	f, ok := parseNumber(s)
	if !ok || f < yearFloor || f >= yearCeiling+1 {
		return 0, false
	}
	return int(f), true
}

// parseCount turns a cell into a non-negative int32-sized int. Empty cells
// are 0; coerced is set when a non-empty cell had to be replaced.
func parseCount(s string) (n int, coerced bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	f, ok := parseNumber(s)
	if !ok || f < 0 || f > math.MaxInt32 {
		return 0, true
	}
	return int(f), false
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

// --- 3. MAIN LOADER ---

// Load reads and normalises the source file. Rows without a parseable Year
// are dropped; unparseable counts become 0.
func Load(src Source) (*Dataset, error) {
	start := time.Now()

	content, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, &LoadError{Path: src.Path, Op: "read", Err: err}
	}

	var in io.Reader = bytes.NewReader(content)
	if src.Encoding == EncodingLatin1 {
		in = transform.NewReader(in, charmap.ISO8859_1.NewDecoder())
	}

	ds, err := parse(in, src.Path)
	if err != nil {
		return nil, err
	}
	ds.source = src.Path
	ds.fingerprint = xxh3.Hash(content)
	ds.stats.Elapsed = time.Since(start)

	slog.Info("dataset loaded",
		"path", src.Path,
		"encoding", string(src.Encoding),
		"rows", ds.stats.Rows,
		"kept", ds.stats.Kept,
		"dropped_year", ds.stats.DroppedYear,
		"coerced_numeric", ds.stats.CoercedNumeric,
		"elapsed", ds.stats.Elapsed,
	)
	return ds, nil
}

func parse(in io.Reader, path string) (*Dataset, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Path: path, Op: "header", Err: ErrEmptySource}
		}
		return nil, &LoadError{Path: path, Op: "header", Err: err}
	}
	idx, err := resolveColumns(header)
	if err != nil {
		return nil, &LoadError{Path: path, Op: "header", Err: err}
	}

	b := newBuilder(1024)
	var stats LoadStats
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, &LoadError{Path: path, Op: "row", Row: stats.Rows + 1, Err: err}
		}
		stats.Rows++

		year, ok := parseYear(cell(rec, idx[colYear]))
		if !ok {
			stats.DroppedYear++
			continue
		}

		fatalities, coerced := parseCount(cell(rec, idx[colFatalities]))
		if coerced {
			stats.CoercedNumeric++
		}
		aboard, coerced := parseCount(cell(rec, idx[colAboard]))
		if coerced {
			stats.CoercedNumeric++
		}

		crash := models.Record{
			Year:       year,
			Country:    cell(rec, idx[colCountry]),
			Aircraft:   cell(rec, idx[colAircraft]),
			Operator:   cell(rec, idx[colOperator]),
			Location:   cell(rec, idx[colLocation]),
			Fatalities: fatalities,
			Aboard:     aboard,
		}
		lat, latOK := parseNumber(cell(rec, idx[colLatitude]))
		lon, lonOK := parseNumber(cell(rec, idx[colLongitude]))
		if latOK && lonOK {
			crash.Latitude, crash.Longitude = &lat, &lon
		}

		b.add(crash)
		stats.Kept++
	}

	ds := b.finish()
	ds.stats = stats
	return ds, nil
}
