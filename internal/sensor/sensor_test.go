package sensor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenwatch/pollenwatch/internal/coordinator"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
	"github.com/pollenwatch/pollenwatch/internal/sensor"
)

// stubFetcher returns a fixed snapshot or error.
type stubFetcher struct {
	mu       sync.Mutex
	snapshot *pollen.Snapshot
	err      error
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Forecast(context.Context, float64, float64, int) (*pollen.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *stubFetcher) set(snapshot *pollen.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot, f.err = snapshot, err
}

func intPtr(v int) *int { return &v }

func testSnapshot() *pollen.Snapshot {
	return &pollen.Snapshot{
		FetchedAt:  time.Date(2026, 4, 12, 9, 0, 0, 0, time.UTC),
		RegionCode: "NL",
		Readings: map[pollen.Type]pollen.Reading{
			pollen.TypeGrass: {
				Type:                  pollen.TypeGrass,
				Index:                 intPtr(4),
				Category:              pollen.CategoryHigh,
				InSeason:              true,
				HealthRecommendations: []string{"Limit outdoor activity"},
				IndexDescription:      "High pollen count",
			},
			pollen.TypeTree: {
				Type:     pollen.TypeTree,
				Index:    intPtr(1),
				Category: pollen.CategoryVeryLow,
				InSeason: true,
			},
			pollen.TypeWeed: {
				Type:     pollen.TypeWeed,
				Category: pollen.CategoryNone,
			},
		},
		Forecast: map[pollen.Type][]pollen.ForecastDay{
			pollen.TypeGrass: {
				{Date: time.Date(2026, 4, 13, 0, 0, 0, 0, time.UTC), Index: 3, Category: pollen.CategoryModerate},
				{Date: time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC), Index: 2, Category: pollen.CategoryLow},
			},
		},
	}
}

func newRegistry(t *testing.T, fetcher *stubFetcher) (*sensor.Registry, *coordinator.Coordinator) {
	t.Helper()
	c, err := coordinator.New(coordinator.Config{
		Client:    fetcher,
		Latitude:  52.370,
		Longitude: 4.895,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return sensor.NewRegistry(c), c
}

func TestRegistry_SixSensors(t *testing.T) {
	registry, _ := newRegistry(t, &stubFetcher{snapshot: testSnapshot()})

	sensors := registry.All()
	require.Len(t, sensors, 6)

	ids := make([]string, 0, len(sensors))
	for _, s := range sensors {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{
		"grass_index", "grass_level",
		"tree_index", "tree_level",
		"weed_index", "weed_level",
	}, ids)

	grass, ok := registry.ByID("grass_index")
	require.True(t, ok)
	assert.Equal(t, "Grass Pollen Index", grass.Name())

	_, ok = registry.ByID("birch_index")
	assert.False(t, ok)
}

func TestSensor_UnavailableBeforeFirstSnapshot(t *testing.T) {
	registry, _ := newRegistry(t, &stubFetcher{snapshot: testSnapshot()})

	for _, state := range registry.States() {
		assert.False(t, state.Available)
		assert.Nil(t, state.Value)
	}
}

func TestSensor_States(t *testing.T) {
	fetcher := &stubFetcher{snapshot: testSnapshot()}
	registry, c := newRegistry(t, fetcher)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	grassIndex, _ := registry.ByID("grass_index")
	state := grassIndex.State()
	assert.True(t, state.Available)
	assert.Equal(t, 4, state.Value)
	assert.Equal(t, "UPI", state.Unit)
	require.NotNil(t, state.Attributes)
	assert.True(t, state.Attributes.InSeason)
	assert.Equal(t, []string{"Limit outdoor activity"}, state.Attributes.HealthRecommendations)
	assert.Equal(t, "High pollen count", state.Attributes.IndexDescription)
	require.Len(t, state.Attributes.Forecast, 2)
	assert.Equal(t, "2026-04-13", state.Attributes.Forecast[0].Date)
	assert.Equal(t, pollen.CategoryModerate, state.Attributes.Forecast[0].Category)

	grassLevel, _ := registry.ByID("grass_level")
	state = grassLevel.State()
	assert.Equal(t, pollen.CategoryHigh, state.Value)
	assert.Empty(t, state.Unit)
	assert.Nil(t, state.Attributes, "level sensors carry no attributes")

	// Weed is absent in the snapshot: available but with null values.
	weedIndex, _ := registry.ByID("weed_index")
	state = weedIndex.State()
	assert.True(t, state.Available)
	assert.Nil(t, state.Value)

	weedLevel, _ := registry.ByID("weed_level")
	assert.Nil(t, weedLevel.State().Value)
}

func TestSensor_StaysAvailableThroughTransientFailure(t *testing.T) {
	fetcher := &stubFetcher{snapshot: testSnapshot()}
	registry, c := newRegistry(t, fetcher)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	fetcher.set(nil, errors.New("upstream down"))
	_, err = c.Refresh(context.Background())
	require.Error(t, err)

	grassIndex, _ := registry.ByID("grass_index")
	state := grassIndex.State()
	assert.True(t, state.Available, "last good values keep serving during transient failures")
	assert.Equal(t, 4, state.Value)
}
