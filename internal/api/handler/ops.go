package handler

import (
	"net/http"
	"time"

	"github.com/pollenwatch/pollenwatch/internal/api/response"
	"github.com/pollenwatch/pollenwatch/internal/coordinator"
	"github.com/pollenwatch/pollenwatch/internal/provider/resilience"
)

// Provider reports the health of an upstream client.
type Provider interface {
	Name() string
	Health() resilience.Health
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version     string
	coordinator *coordinator.Coordinator
	provider    Provider
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version string, c *coordinator.Coordinator, provider Provider) *OpsHandler {
	return &OpsHandler{
		version:     version,
		coordinator: c,
		provider:    provider,
	}
}

// healthResponse is the body of GET /v1/ops/health.
type healthResponse struct {
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
	Version string    `json:"version"`
}

// providerStatus is the provider section of GET /v1/ops/status.
type providerStatus struct {
	Provider      string     `json:"provider"`
	Healthy       bool       `json:"healthy"`
	CircuitState  string     `json:"circuitState"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

// statusResponse is the body of GET /v1/ops/status.
type statusResponse struct {
	Status      string             `json:"status"`
	Time        time.Time          `json:"time"`
	Coordinator coordinator.Status `json:"coordinator"`
	Provider    providerStatus     `json:"provider"`
}

// HealthCheck handles GET /v1/ops/health - liveness check.
// Liveness is independent of data availability; a process that is up but
// still waiting on its first snapshot is healthy.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, healthResponse{
		Status:  "ok",
		Time:    time.Now().UTC(),
		Version: h.version,
	})
}

// SystemStatus handles GET /v1/ops/status - coordinator and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	health := h.provider.Health()

	status := "ok"
	if h.coordinator.State() == coordinator.StateFailedNoData || !health.Healthy() {
		status = "degraded"
	}

	response.JSON(w, r, http.StatusOK, statusResponse{
		Status:      status,
		Time:        time.Now().UTC(),
		Coordinator: h.coordinator.Status(),
		Provider: providerStatus{
			Provider:      h.provider.Name(),
			Healthy:       health.Healthy(),
			CircuitState:  health.CircuitState.String(),
			LastSuccessAt: health.LastSuccessAt,
			LastFailureAt: health.LastFailureAt,
			LastError:     health.LastError,
		},
	})
}
