package engine

import (
	"fmt"
	"strings"

	"aircrashes/internal/models"
)

// View is an ordered selection of rows from a Dataset. The zero View is empty.
type View struct {
	ds   *Dataset
	rows []int32
}

func (v View) Len() int          { return len(v.rows) }
func (v View) Dataset() *Dataset { return v.ds }

// Record materialises the i-th record of the view.
func (v View) Record(i int) models.Record {
	return v.ds.Record(int(v.rows[i]))
}

// Records materialises the whole view in order.
func (v View) Records() []models.Record {
	out := make([]models.Record, len(v.rows))
	for i, row := range v.rows {
		out[i] = v.ds.Record(int(row))
	}
	return out
}

// Slice returns the records in [offset, offset+limit) clipped to the view.
func (v View) Slice(offset, limit int) []models.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(v.rows) || limit <= 0 {
		return []models.Record{}
	}
	if limit > len(v.rows)-offset {
		limit = len(v.rows) - offset
	}
	end := offset + limit
	out := make([]models.Record, 0, end-offset)
	for _, row := range v.rows[offset:end] {
		out = append(out, v.ds.Record(int(row)))
	}
	return out
}

// FilterCriteria is the user's year range and optional country restriction.
// An empty Countries list, or one containing "all", means no restriction.
type FilterCriteria struct {
	YearMin   int
	YearMax   int
	Countries []string
}

func (c FilterCriteria) Validate() error {
	if c.YearMin > c.YearMax {
		return fmt.Errorf("%w: year_min %d > year_max %d", ErrInvalidCriteria, c.YearMin, c.YearMax)
	}
	return nil
}

// Unrestricted reports whether the criteria place no limit on Country.
func (c FilterCriteria) Unrestricted() bool {
	if len(c.Countries) == 0 {
		return true
	}
	for _, name := range c.Countries {
		if strings.EqualFold(strings.TrimSpace(name), "all") {
			return true
		}
	}
	return false
}

// Model converts the criteria for display.
func (c FilterCriteria) Model() models.Filter {
	countries := []string{}
	if !c.Unrestricted() {
		countries = append(countries, c.Countries...)
	}
	return models.Filter{YearMin: c.YearMin, YearMax: c.YearMax, Countries: countries}
}

// Filter keeps the rows of v whose Year lies in [YearMin, YearMax] and whose
// Country is allowed. Relative order is preserved and v is left untouched.
func Filter(v View, c FilterCriteria) (View, error) {
	if err := c.Validate(); err != nil {
		return View{}, err
	}
	if v.ds == nil {
		return View{}, nil
	}
	ds := v.ds

	var allowed []bool
	if !c.Unrestricted() {
		allowed = make([]bool, len(ds.countries.values))
		for _, name := range c.Countries {
			if id, ok := ds.countries.ids[strings.TrimSpace(name)]; ok {
				allowed[id] = true
			}
		}
	}

	rows := make([]int32, 0, len(v.rows))
	for _, row := range v.rows {
		year := int(ds.years[row])
		if year < c.YearMin || year > c.YearMax {
			continue
		}
		if allowed != nil && !allowed[ds.countryIDs[row]] {
			continue
		}
		rows = append(rows, row)
	}
	return View{ds: ds, rows: rows}, nil
}
