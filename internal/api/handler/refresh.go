package handler

import (
	"errors"
	"net/http"

	"github.com/pollenwatch/pollenwatch/internal/api/response"
	"github.com/pollenwatch/pollenwatch/internal/coordinator"
)

// RefreshHandler triggers an immediate refresh outside the schedule.
type RefreshHandler struct {
	coordinator *coordinator.Coordinator
}

// NewRefreshHandler creates a new RefreshHandler.
func NewRefreshHandler(c *coordinator.Coordinator) *RefreshHandler {
	return &RefreshHandler{coordinator: c}
}

// Trigger handles POST /v1/refresh. Concurrent triggers coalesce into one
// upstream fetch; every caller gets the outcome of that fetch.
func (h *RefreshHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	_, err := h.coordinator.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, coordinator.ErrAuthLatched) {
			response.Conflict(w, r, "refresh disabled: the API key was rejected, restart with a valid key")
			return
		}
		response.ServiceUnavailable(w, r, "refresh failed: "+err.Error())
		return
	}

	response.JSON(w, r, http.StatusOK, h.coordinator.Status())
}
