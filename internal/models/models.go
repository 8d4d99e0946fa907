package models

// Record is one crash event after normalisation.
type Record struct {
	Year       int      `json:"year"`
	Country    string   `json:"country"`
	Aircraft   string   `json:"aircraft"`
	Operator   string   `json:"operator"`
	Location   string   `json:"location"`
	Fatalities int      `json:"fatalities"`
	Aboard     int      `json:"aboard"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// HasCoords reports whether both coordinates are present.
func (r Record) HasCoords() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Dashboard bundles every view the presentation layer draws for one filter selection.
type Dashboard struct {
	Filter            Filter          `json:"filter"`
	Summary           SummaryMetrics  `json:"summary"`
	CrashesPerYear    []YearValue     `json:"crashes_per_year"`
	FatalitiesPerYear []YearValue     `json:"fatalities_per_year"`
	AboardPerYear     []YearValue     `json:"aboard_per_year"`
	CrashTrend        []TrendPoint    `json:"crash_trend"`
	Relationship      []YearRelation  `json:"relationship"`
	TopCountries      []CategoryCount `json:"top_countries"`
	TopAircraft       []CategoryCount `json:"top_aircraft"`
	TopOperators      []CategoryCount `json:"top_operators"`
	Deadliest         []Record        `json:"deadliest"`
}

// Filter echoes the criteria a view was computed with.
type Filter struct {
	YearMin   int      `json:"year_min"`
	YearMax   int      `json:"year_max"`
	Countries []string `json:"countries"`
}

type SummaryMetrics struct {
	Count                   int     `json:"count"`
	TotalFatalities         int     `json:"total_fatalities"`
	TotalAboard             int     `json:"total_aboard"`
	MeanFatalitiesPerRecord float64 `json:"mean_fatalities_per_record"`
}

type YearValue struct {
	Year  int `json:"year"`
	Value int `json:"value"`
}

// TrendPoint is one position of a trailing moving average. Value is nil
// until the window has filled.
type TrendPoint struct {
	Year     int      `json:"year"`
	Observed int      `json:"observed"`
	Value    *float64 `json:"value"`
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type YearRelation struct {
	Year       int `json:"year"`
	Crashes    int `json:"crashes"`
	Fatalities int `json:"fatalities"`
}

type ScatterPoint struct {
	Year       int `json:"year"`
	Aboard     int `json:"aboard"`
	Fatalities int `json:"fatalities"`
}

type GeoPoint struct {
	Year       int     `json:"year"`
	Country    string  `json:"country"`
	Location   string  `json:"location"`
	Fatalities int     `json:"fatalities"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// Meta describes the loaded dataset so a client can build its filter widgets.
type Meta struct {
	Source      string   `json:"source"`
	Fingerprint string   `json:"fingerprint"`
	YearMin     int      `json:"year_min"`
	YearMax     int      `json:"year_max"`
	Countries   []string `json:"countries"`
	Rows        int      `json:"rows"`
	Kept        int      `json:"kept"`
	DroppedYear int      `json:"dropped_year"`
	Coerced     int      `json:"coerced_numeric"`
}
