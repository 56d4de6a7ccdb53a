package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenwatch/pollenwatch/internal/api"
	"github.com/pollenwatch/pollenwatch/internal/coordinator"
	"github.com/pollenwatch/pollenwatch/internal/pollen"
	"github.com/pollenwatch/pollenwatch/internal/pollen/googlepollen"
	"github.com/pollenwatch/pollenwatch/internal/provider/resilience"
	"github.com/pollenwatch/pollenwatch/internal/sensor"
)

// stubProvider returns canned snapshots and health.
type stubProvider struct {
	mu       sync.Mutex
	snapshot *pollen.Snapshot
	err      error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Health() resilience.Health {
	return resilience.Health{Name: "stub"}
}

func (p *stubProvider) Forecast(context.Context, float64, float64, int) (*pollen.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.snapshot, nil
}

func (p *stubProvider) set(snapshot *pollen.Snapshot, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot, p.err = snapshot, err
}

func intPtr(v int) *int { return &v }

func testSnapshot() *pollen.Snapshot {
	return &pollen.Snapshot{
		RegionCode: "NL",
		Readings: map[pollen.Type]pollen.Reading{
			pollen.TypeGrass: {
				Type:     pollen.TypeGrass,
				Index:    intPtr(4),
				Category: pollen.CategoryHigh,
				InSeason: true,
			},
		},
	}
}

func newTestRouter(t *testing.T, provider *stubProvider) (http.Handler, *coordinator.Coordinator) {
	t.Helper()

	c, err := coordinator.New(coordinator.Config{
		Client:    provider,
		Latitude:  52.370,
		Longitude: 4.895,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{
		Version:     "test",
		Logger:      zerolog.Nop(),
		Coordinator: c,
		Registry:    sensor.NewRegistry(c),
		Provider:    provider,
	})
	return router, c
}

func doRequest(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t, &stubProvider{snapshot: testSnapshot()})

	rec := doRequest(router, http.MethodGet, "/v1/ops/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestRouter_ListSensors(t *testing.T) {
	router, _ := newTestRouter(t, &stubProvider{snapshot: testSnapshot()})

	rec := doRequest(router, http.MethodGet, "/v1/sensors")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sensors []sensor.State `json:"sensors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sensors, 6)
	for _, state := range body.Sensors {
		assert.False(t, state.Available, "no refresh has run yet")
	}
}

func TestRouter_GetSensor(t *testing.T) {
	provider := &stubProvider{snapshot: testSnapshot()}
	router, c := newTestRouter(t, provider)

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	rec := doRequest(router, http.MethodGet, "/v1/sensors/grass_index")
	require.Equal(t, http.StatusOK, rec.Code)

	var state sensor.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "grass_index", state.ID)
	assert.True(t, state.Available)
	assert.Equal(t, float64(4), state.Value)
	assert.Equal(t, "UPI", state.Unit)
}

func TestRouter_GetSensor_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, &stubProvider{snapshot: testSnapshot()})

	rec := doRequest(router, http.MethodGet, "/v1/sensors/birch_index")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "https://pollenwatch.dev/problems/not-found", problem["type"])
	assert.Equal(t, "/v1/sensors/birch_index", problem["instance"])
}

func TestRouter_TriggerRefresh(t *testing.T) {
	provider := &stubProvider{snapshot: testSnapshot()}
	router, c := newTestRouter(t, provider)

	rec := doRequest(router, http.MethodPost, "/v1/refresh")
	require.Equal(t, http.StatusOK, rec.Code)

	var status coordinator.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, coordinator.StateReady, status.State)
	assert.True(t, c.Available())
}

func TestRouter_TriggerRefresh_UpstreamDown(t *testing.T) {
	provider := &stubProvider{}
	provider.set(nil, errors.New("upstream down"))
	router, _ := newTestRouter(t, provider)

	rec := doRequest(router, http.MethodPost, "/v1/refresh")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestRouter_TriggerRefresh_AuthLatched(t *testing.T) {
	provider := &stubProvider{}
	provider.set(nil, googlepollen.ErrInvalidAPIKey)
	router, _ := newTestRouter(t, provider)

	// The first refresh fails and latches; later triggers conflict without
	// reaching the upstream.
	rec := doRequest(router, http.MethodPost, "/v1/refresh")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(router, http.MethodPost, "/v1/refresh")
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "https://pollenwatch.dev/problems/conflict", problem["type"])
}
