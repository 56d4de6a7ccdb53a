package pollen

import (
	"errors"
	"fmt"
	"time"
)

// Pollen errors.
var (
	// ErrMalformedResponse is returned when the upstream body is structurally
	// unusable (not JSON, or the forecast container is missing).
	ErrMalformedResponse = errors.New("malformed pollen response")

	// ErrIndexOutOfRange is returned when the upstream reports a UPI value
	// outside the 0-5 scale. This is an upstream contract violation and
	// rejects the whole snapshot rather than clamping.
	ErrIndexOutOfRange = errors.New("pollen index out of range")

	// ErrInvalidCoordinates is returned for coordinates outside valid bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Type represents a category of pollen.
type Type string

const (
	TypeGrass Type = "GRASS"
	TypeTree  Type = "TREE"
	TypeWeed  Type = "WEED"
)

// AllTypes returns all supported pollen types. The set is fixed; the upstream
// API reports at most these three.
func AllTypes() []Type {
	return []Type{TypeGrass, TypeTree, TypeWeed}
}

// Category represents the Universal Pollen Index category.
type Category string

const (
	CategoryNone     Category = "NONE"
	CategoryVeryLow  Category = "VERY_LOW"
	CategoryLow      Category = "LOW"
	CategoryModerate Category = "MODERATE"
	CategoryHigh     Category = "HIGH"
	CategoryVeryHigh Category = "VERY_HIGH"
)

var indexCategories = [...]Category{
	CategoryNone,
	CategoryVeryLow,
	CategoryLow,
	CategoryModerate,
	CategoryHigh,
	CategoryVeryHigh,
}

// MaxIndex is the upper bound of the Universal Pollen Index scale.
const MaxIndex = 5

// CategoryFromIndex converts a UPI value (0-5) to its category.
func CategoryFromIndex(index int) (Category, error) {
	if index < 0 || index > MaxIndex {
		return CategoryNone, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return indexCategories[index], nil
}

// Reading represents the current conditions for a single pollen type.
//
// Index is nil when the type is not tracked for the region or out of season;
// that is distinct from an index of zero, which is a tracked "no pollen"
// reading.
type Reading struct {
	Type Type

	// Index is the UPI value (0-5), nil when absent.
	Index *int

	// Category is derived from Index via the fixed UPI table.
	// CategoryNone when the reading is absent.
	Category Category

	// InSeason reports whether the type is currently in season.
	InSeason bool

	// HealthRecommendations are upstream advisories, in upstream order.
	HealthRecommendations []string

	// IndexDescription is free text explaining the current index value.
	IndexDescription string
}

// Absent reports whether the upstream tracks no current value for this type.
func (r Reading) Absent() bool {
	return r.Index == nil
}

// ForecastDay represents one day inside the forecast window.
type ForecastDay struct {
	// Date is the calendar day, at midnight UTC.
	Date time.Time

	// Index is the predicted UPI value (0-5).
	Index int

	// Category is derived from Index via the fixed UPI table.
	Category Category
}

// Snapshot is the immutable result of one successful refresh. It always
// carries an entry for every pollen type; types the upstream does not cover
// are present as absent readings. A refresh produces a new Snapshot, never
// mutates a prior one.
type Snapshot struct {
	// FetchedAt is when the data was retrieved.
	FetchedAt time.Time

	// RegionCode is the upstream region identifier (e.g. "NL").
	RegionCode string

	// Readings holds current conditions per pollen type.
	Readings map[Type]Reading

	// Forecast holds up to 5 upcoming days per pollen type, ascending by
	// date with no duplicates.
	Forecast map[Type][]ForecastDay
}

// Reading returns the current reading for a pollen type.
func (s *Snapshot) Reading(t Type) Reading {
	if r, ok := s.Readings[t]; ok {
		return r
	}
	return Reading{Type: t, Category: CategoryNone}
}

// ForecastFor returns the forecast days for a pollen type, earliest first.
func (s *Snapshot) ForecastFor(t Type) []ForecastDay {
	return s.Forecast[t]
}

// ValidateCoordinates checks that a coordinate pair is within bounds.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
