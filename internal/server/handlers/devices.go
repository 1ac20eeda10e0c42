package handlers

import (
	"net/http"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/logger"
)

// ListDevices returns the GPUs detected on the host.
//
// GET /api/devices/list
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	gpus, err := h.deviceManager.ListDetectedGPUs()
	if err != nil {
		logger.Warn("GPU detection failed: %v", err)
		h.WriteError(w, http.StatusInternalServerError, "device detection failed")
		return
	}

	h.WriteJSON(w, http.StatusOK, api.DeviceListResponse{Devices: gpus})
}

// SupportedDevices returns the device types the daemon knows how to run
// on.
//
// GET /api/devices/supported
func (h *Handler) SupportedDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	types := h.deviceManager.GetSupportedTypes()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	h.WriteJSON(w, http.StatusOK, api.SupportedDevicesResponse{DeviceTypes: names})
}
