package pollen

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MaxForecastDays is the length of the forecast window. Days beyond it are
// ignored.
const MaxForecastDays = 5

// ParseForecast decodes a raw forecast:lookup body into a Snapshot.
//
// Current conditions come from the first daily entry; the remaining entries
// form the per-type forecast window. A missing or malformed block for a
// single type degrades to an absent reading, and a day without usable data
// shortens the forecast. Only a structurally unusable body (not JSON, missing
// the dailyInfo container) or a UPI value outside 0-5 fails the parse.
//
// The result depends only on the input and fetchedAt; parsing the same body
// twice yields equal snapshots.
func ParseForecast(raw []byte, fetchedAt time.Time) (*Snapshot, error) {
	var resp lookupResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.DailyInfo == nil {
		return nil, fmt.Errorf("%w: missing dailyInfo", ErrMalformedResponse)
	}
	days := *resp.DailyInfo

	snapshot := &Snapshot{
		FetchedAt:  fetchedAt,
		RegionCode: resp.RegionCode,
		Readings:   make(map[Type]Reading, len(AllTypes())),
		Forecast:   make(map[Type][]ForecastDay, len(AllTypes())),
	}

	for _, t := range AllTypes() {
		reading, err := parseCurrent(days, t)
		if err != nil {
			return nil, err
		}
		snapshot.Readings[t] = reading

		forecast, err := parseForecastDays(days, t)
		if err != nil {
			return nil, err
		}
		snapshot.Forecast[t] = forecast
	}

	return snapshot, nil
}

// parseCurrent extracts the current reading for a type from the first daily
// entry. A missing block or missing index is an absent reading, not an error.
func parseCurrent(days []wireDay, t Type) (Reading, error) {
	reading := Reading{Type: t, Category: CategoryNone}
	if len(days) == 0 {
		return reading, nil
	}

	block := findTypeBlock(days[0].PollenTypeInfo, t)
	if block == nil {
		return reading, nil
	}

	reading.InSeason = block.InSeason
	reading.HealthRecommendations = block.HealthRecommendations

	if block.IndexInfo == nil {
		return reading, nil
	}

	category, err := CategoryFromIndex(block.IndexInfo.Value)
	if err != nil {
		return Reading{}, fmt.Errorf("current %s reading: %w", t, err)
	}

	value := block.IndexInfo.Value
	reading.Index = &value
	reading.Category = category
	reading.IndexDescription = block.IndexInfo.IndexDescription
	return reading, nil
}

// parseForecastDays extracts upcoming days for a type from the entries after
// the first. Days are deduplicated by date (first occurrence wins), sorted
// ascending, and truncated to the forecast window.
func parseForecastDays(days []wireDay, t Type) ([]ForecastDay, error) {
	if len(days) < 2 {
		return nil, nil
	}

	var forecast []ForecastDay
	seen := make(map[time.Time]bool)

	for _, day := range days[1:] {
		date, ok := day.Date.calendarDate()
		if !ok {
			continue
		}
		if seen[date] {
			continue
		}

		block := findTypeBlock(day.PollenTypeInfo, t)
		if block == nil || block.IndexInfo == nil {
			continue
		}

		category, err := CategoryFromIndex(block.IndexInfo.Value)
		if err != nil {
			return nil, fmt.Errorf("%s forecast for %s: %w", t, date.Format("2006-01-02"), err)
		}

		seen[date] = true
		forecast = append(forecast, ForecastDay{
			Date:     date,
			Index:    block.IndexInfo.Value,
			Category: category,
		})
	}

	sort.Slice(forecast, func(i, j int) bool {
		return forecast[i].Date.Before(forecast[j].Date)
	})

	if len(forecast) > MaxForecastDays {
		forecast = forecast[:MaxForecastDays]
	}
	return forecast, nil
}

func findTypeBlock(blocks []wireTypeInfo, t Type) *wireTypeInfo {
	for i := range blocks {
		if Type(blocks[i].Code) == t {
			return &blocks[i]
		}
	}
	return nil
}

// Wire structures for the forecast:lookup response body.

type lookupResponse struct {
	RegionCode string `json:"regionCode"`

	// Pointer so a body without the container is distinguishable from an
	// empty (no coverage) one.
	DailyInfo *[]wireDay `json:"dailyInfo"`
}

type wireDay struct {
	Date           wireDate       `json:"date"`
	PollenTypeInfo []wireTypeInfo `json:"pollenTypeInfo"`
}

type wireDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// calendarDate converts the wire date to midnight UTC. Returns false for
// incomplete dates.
func (d wireDate) calendarDate() (time.Time, bool) {
	if d.Year == 0 || d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 {
		return time.Time{}, false
	}
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC), true
}

type wireTypeInfo struct {
	Code                  string         `json:"code"`
	DisplayName           string         `json:"displayName"`
	InSeason              bool           `json:"inSeason"`
	IndexInfo             *wireIndexInfo `json:"indexInfo"`
	HealthRecommendations []string       `json:"healthRecommendations"`
}

type wireIndexInfo struct {
	Code             string `json:"code"`
	Value            int    `json:"value"`
	Category         string `json:"category"`
	IndexDescription string `json:"indexDescription"`
}
