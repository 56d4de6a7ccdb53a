// Package handler provides HTTP handlers for the pollenwatch API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pollenwatch/pollenwatch/internal/api/response"
	"github.com/pollenwatch/pollenwatch/internal/sensor"
)

// SensorHandler serves the sensor catalogue and per-sensor state.
type SensorHandler struct {
	registry *sensor.Registry
}

// NewSensorHandler creates a new SensorHandler.
func NewSensorHandler(registry *sensor.Registry) *SensorHandler {
	return &SensorHandler{registry: registry}
}

// sensorListResponse wraps the sensor states for GET /v1/sensors.
type sensorListResponse struct {
	Sensors []sensor.State `json:"sensors"`
}

// List handles GET /v1/sensors - the state of every sensor.
func (h *SensorHandler) List(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, sensorListResponse{Sensors: h.registry.States()})
}

// Get handles GET /v1/sensors/{sensorID} - a single sensor's state.
func (h *SensorHandler) Get(w http.ResponseWriter, r *http.Request) {
	sensorID := chi.URLParam(r, "sensorID")

	s, ok := h.registry.ByID(sensorID)
	if !ok {
		response.NotFound(w, r, "unknown sensor: "+sensorID)
		return
	}
	response.JSON(w, r, http.StatusOK, s.State())
}
