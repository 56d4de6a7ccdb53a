// Package sensor projects the coordinator's snapshot into the six read-only
// entity values exposed to consumers: an index and a level sensor per pollen
// type.
package sensor

import (
	"strings"

	"github.com/pollenwatch/pollenwatch/internal/coordinator"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
)

// Kind distinguishes the two sensors per pollen type.
type Kind string

const (
	// KindIndex is the numeric UPI sensor.
	KindIndex Kind = "index"

	// KindLevel is the categorical sensor.
	KindLevel Kind = "level"
)

// Sensor is one read-only entity backed by the shared coordinator. Sensors
// never fetch; they project whatever snapshot the coordinator currently
// holds.
type Sensor struct {
	id          string
	name        string
	kind        Kind
	pollenType  pollen.Type
	coordinator *coordinator.Coordinator
}

// ID returns the stable sensor identifier, e.g. "grass_index".
func (s *Sensor) ID() string { return s.id }

// Name returns the human-readable sensor name.
func (s *Sensor) Name() string { return s.name }

// ForecastEntry is one serialized forecast day.
type ForecastEntry struct {
	Date     string          `json:"date"`
	Index    int             `json:"index"`
	Category pollen.Category `json:"category"`
}

// Attributes are the extra state attributes of an index sensor.
type Attributes struct {
	InSeason              bool            `json:"inSeason"`
	HealthRecommendations []string        `json:"healthRecommendations,omitempty"`
	IndexDescription      string          `json:"indexDescription,omitempty"`
	Forecast              []ForecastEntry `json:"forecast,omitempty"`
}

// State is the externally visible state of a sensor.
//
// Value is null while the sensor is unavailable (no snapshot ever obtained)
// and also for an available sensor whose type is absent from the current
// snapshot; Available tells the two apart.
type State struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	PollenType pollen.Type `json:"pollenType"`
	Kind       Kind        `json:"kind"`
	Available  bool        `json:"available"`
	Value      interface{} `json:"value"`
	Unit       string      `json:"unit,omitempty"`
	Attributes *Attributes `json:"attributes,omitempty"`
}

// State returns the sensor's current state, read from the held snapshot.
func (s *Sensor) State() State {
	state := State{
		ID:         s.id,
		Name:       s.name,
		PollenType: s.pollenType,
		Kind:       s.kind,
	}
	if s.kind == KindIndex {
		state.Unit = "UPI"
	}

	snapshot, ok := s.coordinator.Current()
	if !ok {
		return state
	}
	state.Available = true

	reading := snapshot.Reading(s.pollenType)
	switch s.kind {
	case KindIndex:
		if reading.Index != nil {
			state.Value = *reading.Index
		}
		state.Attributes = buildAttributes(reading, snapshot.ForecastFor(s.pollenType))
	case KindLevel:
		if reading.Index != nil {
			state.Value = reading.Category
		}
	}
	return state
}

func buildAttributes(reading pollen.Reading, forecast []pollen.ForecastDay) *Attributes {
	attrs := &Attributes{
		InSeason:              reading.InSeason,
		HealthRecommendations: reading.HealthRecommendations,
		IndexDescription:      reading.IndexDescription,
	}
	for _, day := range forecast {
		attrs.Forecast = append(attrs.Forecast, ForecastEntry{
			Date:     day.Date.Format("2006-01-02"),
			Index:    day.Index,
			Category: day.Category,
		})
	}
	return attrs
}

// Registry holds the fixed sensor set for one coordinator.
type Registry struct {
	sensors []*Sensor
	byID    map[string]*Sensor
}

// NewRegistry builds the six sensors for a coordinator: an index and a level
// sensor per pollen type.
func NewRegistry(c *coordinator.Coordinator) *Registry {
	registry := &Registry{byID: make(map[string]*Sensor)}

	for _, pollenType := range pollen.AllTypes() {
		lower := strings.ToLower(string(pollenType))
		title := strings.ToUpper(lower[:1]) + lower[1:]

		registry.add(&Sensor{
			id:          lower + "_index",
			name:        title + " Pollen Index",
			kind:        KindIndex,
			pollenType:  pollenType,
			coordinator: c,
		})
		registry.add(&Sensor{
			id:          lower + "_level",
			name:        title + " Pollen Level",
			kind:        KindLevel,
			pollenType:  pollenType,
			coordinator: c,
		})
	}
	return registry
}

func (r *Registry) add(s *Sensor) {
	r.sensors = append(r.sensors, s)
	r.byID[s.id] = s
}

// All returns every sensor in stable order.
func (r *Registry) All() []*Sensor {
	return r.sensors
}

// ByID returns a sensor by identifier.
func (r *Registry) ByID(id string) (*Sensor, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// States returns the current state of every sensor.
func (r *Registry) States() []State {
	states := make([]State, 0, len(r.sensors))
	for _, s := range r.sensors {
		states = append(states, s.State())
	}
	return states
}
