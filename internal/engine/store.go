package engine

import (
	"math"
	"sort"
	"time"

	"aircrashes/internal/models"
)

// Unknown replaces missing Country and Aircraft values.
const Unknown = "Unknown"

// Accepted Year range. Per-year accumulation allocates one slot per year
// between the dataset bounds, so the span must stay small.
const (
	yearFloor   = 1800
	yearCeiling = 2200
)

func validYear(y int64) bool { return y >= yearFloor && y <= yearCeiling }

// LoadStats counts what normalisation did to the source rows.
type LoadStats struct {
	Rows           int // data rows read
	Kept           int
	DroppedYear    int // rows without a parseable Year in the accepted range
	CoercedNumeric int // Fatalities/Aboard cells that were unparseable, negative or too large
	Elapsed        time.Duration
}

// Dataset holds normalised crash records in struct-of-arrays form.
// It is never modified after construction; filtering produces Views.
type Dataset struct {
	// Data columns (flat arrays)
	years      []int32
	fatalities []int32
	aboard     []int32
	lats       []float64
	lons       []float64
	hasCoords  []bool

	// Dictionary encoded IDs (0..N)
	countryIDs  []int32
	aircraftIDs []int32
	operatorIDs []int32
	locationIDs []int32

	// Dictionaries (ID -> string)
	countries dict
	aircraft  dict
	operators dict
	locations dict

	minYear, maxYear int

	source      string
	fingerprint uint64
	stats       LoadStats
}

type dict struct {
	ids    map[string]int32
	values []string
}

func (d *dict) id(s string) int32 {
	if id, ok := d.ids[s]; ok {
		return id
	}
	if d.ids == nil {
		d.ids = make(map[string]int32)
	}
	id := int32(len(d.values))
	d.values = append(d.values, s)
	d.ids[s] = id
	return id
}

// NewDataset builds a Dataset from already parsed records, applying the
// record-level normalisation (Unknown fill, non-negative counts,
// coordinate validation). Records with a Year outside the accepted range
// are dropped.
func NewDataset(records []models.Record) *Dataset {
	b := newBuilder(len(records))
	stats := LoadStats{Rows: len(records)}
	for _, r := range records {
		if !validYear(int64(r.Year)) {
			stats.DroppedYear++
			continue
		}
		b.add(r)
	}
	ds := b.finish()
	stats.Kept = ds.Len()
	ds.stats = stats
	return ds
}

type builder struct {
	ds    *Dataset
	first bool
}

func newBuilder(capacity int) *builder {
	return &builder{
		first: true,
		ds: &Dataset{
			years:       make([]int32, 0, capacity),
			fatalities:  make([]int32, 0, capacity),
			aboard:      make([]int32, 0, capacity),
			lats:        make([]float64, 0, capacity),
			lons:        make([]float64, 0, capacity),
			hasCoords:   make([]bool, 0, capacity),
			countryIDs:  make([]int32, 0, capacity),
			aircraftIDs: make([]int32, 0, capacity),
			operatorIDs: make([]int32, 0, capacity),
			locationIDs: make([]int32, 0, capacity),
		},
	}
}

func (b *builder) add(r models.Record) {
	r = normalizeRecord(r)
	ds := b.ds

	ds.years = append(ds.years, int32(r.Year))
	ds.fatalities = append(ds.fatalities, int32(r.Fatalities))
	ds.aboard = append(ds.aboard, int32(r.Aboard))
	if r.HasCoords() {
		ds.lats = append(ds.lats, *r.Latitude)
		ds.lons = append(ds.lons, *r.Longitude)
		ds.hasCoords = append(ds.hasCoords, true)
	} else {
		ds.lats = append(ds.lats, 0)
		ds.lons = append(ds.lons, 0)
		ds.hasCoords = append(ds.hasCoords, false)
	}

	ds.countryIDs = append(ds.countryIDs, ds.countries.id(r.Country))
	ds.aircraftIDs = append(ds.aircraftIDs, ds.aircraft.id(r.Aircraft))
	ds.operatorIDs = append(ds.operatorIDs, ds.operators.id(r.Operator))
	ds.locationIDs = append(ds.locationIDs, ds.locations.id(r.Location))

	if b.first || r.Year < ds.minYear {
		ds.minYear = r.Year
	}
	if b.first || r.Year > ds.maxYear {
		ds.maxYear = r.Year
	}
	b.first = false
}

func (b *builder) finish() *Dataset {
	return b.ds
}

func normalizeRecord(r models.Record) models.Record {
	if r.Country == "" {
		r.Country = Unknown
	}
	if r.Aircraft == "" {
		r.Aircraft = Unknown
	}
	if r.Fatalities < 0 || r.Fatalities > math.MaxInt32 {
		r.Fatalities = 0
	}
	if r.Aboard < 0 || r.Aboard > math.MaxInt32 {
		r.Aboard = 0
	}
	if !r.HasCoords() || !validCoords(*r.Latitude, *r.Longitude) {
		r.Latitude, r.Longitude = nil, nil
	}
	return r
}

func validCoords(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Len returns the number of records.
func (ds *Dataset) Len() int { return len(ds.years) }

// Record materialises row i.
func (ds *Dataset) Record(i int) models.Record {
	r := models.Record{
		Year:       int(ds.years[i]),
		Country:    ds.countries.values[ds.countryIDs[i]],
		Aircraft:   ds.aircraft.values[ds.aircraftIDs[i]],
		Operator:   ds.operators.values[ds.operatorIDs[i]],
		Location:   ds.locations.values[ds.locationIDs[i]],
		Fatalities: int(ds.fatalities[i]),
		Aboard:     int(ds.aboard[i]),
	}
	if ds.hasCoords[i] {
		lat, lon := ds.lats[i], ds.lons[i]
		r.Latitude, r.Longitude = &lat, &lon
	}
	return r
}

// YearBounds returns the smallest and largest Year; ok is false for an empty Dataset.
func (ds *Dataset) YearBounds() (lo, hi int, ok bool) {
	if ds.Len() == 0 {
		return 0, 0, false
	}
	return ds.minYear, ds.maxYear, true
}

// Countries returns the distinct country values, sorted.
func (ds *Dataset) Countries() []string {
	out := make([]string, len(ds.countries.values))
	copy(out, ds.countries.values)
	sort.Strings(out)
	return out
}

func (ds *Dataset) Source() string      { return ds.source }
func (ds *Dataset) Fingerprint() uint64 { return ds.fingerprint }
func (ds *Dataset) Stats() LoadStats    { return ds.stats }

// All returns a View over every record.
func (ds *Dataset) All() View {
	rows := make([]int32, ds.Len())
	for i := range rows {
		rows[i] = int32(i)
	}
	return View{ds: ds, rows: rows}
}
