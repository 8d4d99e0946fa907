package engine

import (
	"sort"

	"aircrashes/internal/models"
)

// yearAcc accumulates per-year totals in an array indexed by year-minYear
// instead of a map.
type yearAcc struct {
	base       int
	crashes    []int
	fatalities []int
	aboard     []int
}

func accumulateYears(v View) *yearAcc {
	if v.Len() == 0 {
		return &yearAcc{}
	}
	ds := v.ds
	span := ds.maxYear - ds.minYear + 1
	acc := &yearAcc{
		base:       ds.minYear,
		crashes:    make([]int, span),
		fatalities: make([]int, span),
		aboard:     make([]int, span),
	}
	for _, row := range v.rows {
		idx := int(ds.years[row]) - acc.base
		acc.crashes[idx]++
		acc.fatalities[idx] += int(ds.fatalities[row])
		acc.aboard[idx] += int(ds.aboard[row])
	}
	return acc
}

// series emits (year, values[i]) for every year that has at least one crash.
func (a *yearAcc) series(values []int) []models.YearValue {
	out := make([]models.YearValue, 0)
	for i, n := range a.crashes {
		if n == 0 {
			continue
		}
		out = append(out, models.YearValue{Year: a.base + i, Value: values[i]})
	}
	return out
}

// CountsByYear returns the number of records per Year, ascending. Years
// without records are absent.
func CountsByYear(v View) []models.YearValue {
	acc := accumulateYears(v)
	return acc.series(acc.crashes)
}

// SumByYear returns the per-Year sum of a numeric field. Only Fatalities and
// Aboard can be summed.
func SumByYear(v View, f Field) ([]models.YearValue, error) {
	acc := accumulateYears(v)
	switch f {
	case FieldFatalities:
		return acc.series(acc.fatalities), nil
	case FieldAboard:
		return acc.series(acc.aboard), nil
	}
	return nil, errUnsummable(f)
}

// YearlyRelationship pairs crashes and fatalities for each Year.
func YearlyRelationship(v View) []models.YearRelation {
	acc := accumulateYears(v)
	out := make([]models.YearRelation, 0)
	for i, n := range acc.crashes {
		if n == 0 {
			continue
		}
		out = append(out, models.YearRelation{
			Year:       acc.base + i,
			Crashes:    n,
			Fatalities: acc.fatalities[i],
		})
	}
	return out
}

// FillYears returns series with the missing years between its first and
// last entry inserted as zeros. series must be ascending by Year.
func FillYears(series []models.YearValue) []models.YearValue {
	if len(series) == 0 {
		return []models.YearValue{}
	}
	first, last := series[0].Year, series[len(series)-1].Year
	out := make([]models.YearValue, 0, last-first+1)
	next := 0
	for year := first; year <= last; year++ {
		value := 0
		if next < len(series) && series[next].Year == year {
			value = series[next].Value
			next++
		}
		out = append(out, models.YearValue{Year: year, Value: value})
	}
	return out
}

// RollingAverage is a trailing moving average: position i holds the mean of
// the window values ending at i. Positions before the window fills carry no
// value. It smooths the series; it does not predict anything.
func RollingAverage(series []models.YearValue, window int) ([]models.TrendPoint, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	out := make([]models.TrendPoint, len(series))
	sum := 0
	for i, p := range series {
		sum += p.Value
		if i >= window {
			sum -= series[i-window].Value
		}
		out[i] = models.TrendPoint{Year: p.Year, Observed: p.Value}
		if i >= window-1 {
			avg := float64(sum) / float64(window)
			out[i].Value = &avg
		}
	}
	return out, nil
}

// TopNByCategory counts records per category value, largest first. Equal
// counts keep the order in which the values first appear in v.
func TopNByCategory(v View, c Category, n int) ([]models.CategoryCount, error) {
	if v.ds == nil {
		if _, err := ParseCategory(string(c)); err != nil {
			return nil, err
		}
		return []models.CategoryCount{}, nil
	}
	ids, d, err := v.ds.categoryColumn(c)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []models.CategoryCount{}, nil
	}

	counts := make([]int, len(d.values))
	order := make([]int32, 0)
	for _, row := range v.rows {
		id := ids[row]
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}

	out := make([]models.CategoryCount, len(order))
	for i, id := range order {
		out[i] = models.CategoryCount{Category: d.values[id], Count: counts[id]}
	}
	return out, nil
}

// TopKRecords returns the k records with the largest (or smallest) value of
// f. Ties keep the original row order.
func TopKRecords(v View, f Field, k int, descending bool) ([]models.Record, error) {
	if v.ds == nil {
		if _, err := ParseField(string(f)); err != nil {
			return nil, err
		}
		return []models.Record{}, nil
	}
	col, err := v.ds.column(f)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return []models.Record{}, nil
	}

	rows := make([]int32, len(v.rows))
	copy(rows, v.rows)
	sort.SliceStable(rows, func(i, j int) bool {
		if descending {
			return col[rows[i]] > col[rows[j]]
		}
		return col[rows[i]] < col[rows[j]]
	})
	if len(rows) > k {
		rows = rows[:k]
	}
	return View{ds: v.ds, rows: rows}.Records(), nil
}

// Summary returns the headline metrics of v. The mean is 0 for an empty view.
func Summary(v View) models.SummaryMetrics {
	var m models.SummaryMetrics
	m.Count = v.Len()
	for _, row := range v.rows {
		m.TotalFatalities += int(v.ds.fatalities[row])
		m.TotalAboard += int(v.ds.aboard[row])
	}
	if m.Count > 0 {
		m.MeanFatalitiesPerRecord = float64(m.TotalFatalities) / float64(m.Count)
	}
	return m
}

// AboardVsFatalities returns one point per record.
func AboardVsFatalities(v View) []models.ScatterPoint {
	out := make([]models.ScatterPoint, len(v.rows))
	for i, row := range v.rows {
		out[i] = models.ScatterPoint{
			Year:       int(v.ds.years[row]),
			Aboard:     int(v.ds.aboard[row]),
			Fatalities: int(v.ds.fatalities[row]),
		}
	}
	return out
}

// GeoPoints returns the records of v that carry coordinates.
func GeoPoints(v View) []models.GeoPoint {
	out := make([]models.GeoPoint, 0)
	for _, row := range v.rows {
		ds := v.ds
		if !ds.hasCoords[row] {
			continue
		}
		out = append(out, models.GeoPoint{
			Year:       int(ds.years[row]),
			Country:    ds.countries.values[ds.countryIDs[row]],
			Location:   ds.locations.values[ds.locationIDs[row]],
			Fatalities: int(ds.fatalities[row]),
			Latitude:   ds.lats[row],
			Longitude:  ds.lons[row],
		})
	}
	return out
}

// DashboardOptions sizes the ranked parts of a Dashboard.
type DashboardOptions struct {
	TopN        int
	TopK        int
	TrendWindow int
}

func DefaultDashboardOptions() DashboardOptions {
	return DashboardOptions{TopN: 10, TopK: 10, TrendWindow: 5}
}

// BuildDashboard computes every dashboard view of v.
func BuildDashboard(v View, c FilterCriteria, opt DashboardOptions) (*models.Dashboard, error) {
	acc := accumulateYears(v)
	crashes := acc.series(acc.crashes)

	trend, err := RollingAverage(FillYears(crashes), opt.TrendWindow)
	if err != nil {
		return nil, err
	}

	data := &models.Dashboard{
		Filter:            c.Model(),
		Summary:           Summary(v),
		CrashesPerYear:    crashes,
		FatalitiesPerYear: acc.series(acc.fatalities),
		AboardPerYear:     acc.series(acc.aboard),
		CrashTrend:        trend,
		Relationship:      YearlyRelationship(v),
	}

	if data.TopCountries, err = TopNByCategory(v, CategoryCountry, opt.TopN); err != nil {
		return nil, err
	}
	if data.TopAircraft, err = TopNByCategory(v, CategoryAircraft, opt.TopN); err != nil {
		return nil, err
	}
	if data.TopOperators, err = TopNByCategory(v, CategoryOperator, opt.TopN); err != nil {
		return nil, err
	}
	if data.Deadliest, err = TopKRecords(v, FieldFatalities, opt.TopK, true); err != nil {
		return nil, err
	}
	return data, nil
}
