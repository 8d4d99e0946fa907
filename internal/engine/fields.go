package engine

import (
	"fmt"
	"strings"
)

// Field names a numeric column.
type Field string

const (
	FieldFatalities Field = "fatalities"
	FieldAboard     Field = "aboard"
	FieldYear       Field = "year"
)

func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldFatalities, FieldAboard, FieldYear:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

func (ds *Dataset) column(f Field) ([]int32, error) {
	switch f {
	case FieldFatalities:
		return ds.fatalities, nil
	case FieldAboard:
		return ds.aboard, nil
	case FieldYear:
		return ds.years, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
}

// Category names a dictionary-encoded text column.
type Category string

const (
	CategoryCountry  Category = "country"
	CategoryAircraft Category = "aircraft"
	CategoryOperator Category = "operator"
	CategoryLocation Category = "location"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryCountry, CategoryAircraft, CategoryOperator, CategoryLocation:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (ds *Dataset) categoryColumn(c Category) ([]int32, *dict, error) {
	switch c {
	case CategoryCountry:
		return ds.countryIDs, &ds.countries, nil
	case CategoryAircraft:
		return ds.aircraftIDs, &ds.aircraft, nil
	case CategoryOperator:
		return ds.operatorIDs, &ds.operators, nil
	case CategoryLocation:
		return ds.locationIDs, &ds.locations, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
}

func errUnsummable(f Field) error {
	return fmt.Errorf("%w: %q cannot be summed by year", ErrUnknownField, f)
}
