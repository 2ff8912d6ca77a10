package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-teslemetry/internal/device"
)

// handleListDevices returns all devices, optionally filtered by driver.
//
// Query parameters:
//   - driver: energy-site or vehicle
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		devices []device.Device
		err     error
	)
	if driverStr := r.URL.Query().Get("driver"); driverStr != "" {
		driver := device.Driver(driverStr)
		if verr := device.ValidateDriver(driver); verr != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, verr.Error())
			return
		}
		devices, err = s.registry.ListByDriver(ctx, driver)
	} else {
		devices, err = s.registry.ListDevices(ctx)
	}
	if err != nil {
		s.logger.Error("failed to list devices", "error", err, "request_id", requestID(ctx))
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RenameDeviceRequest is the body of a device update.
type RenameDeviceRequest struct {
	Name string `json:"name"`
}

// handleRenameDevice changes a device's display name.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req RenameDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.bridge.RenameDevice(ctx, id, req.Name); err != nil {
		writeDomainError(w, err)
		return
	}

	d, err := s.registry.GetDevice(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDevice stops the device's polling and removes it.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := s.bridge.RemoveDevice(ctx, id); err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			s.logger.Error("failed to remove device", "device_id", id, "error", err, "request_id", requestID(ctx))
		}
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetCapabilityRequest is the body of a capability change.
type SetCapabilityRequest struct {
	Value any `json:"value"`
}

// handleSetCapability forwards a user capability change to Teslemetry.
// The stored value changes only if the API accepts it.
func (s *Server) handleSetCapability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	capability := device.Capability(chi.URLParam(r, "capability"))

	var req SetCapabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.bridge.SetCapability(ctx, id, capability, req.Value); err != nil {
		s.logger.Warn("capability change failed",
			"device_id", id,
			"capability", capability,
			"error", err,
			"request_id", requestID(ctx))
		writeDomainError(w, err)
		return
	}

	value, err := s.registry.GetCapabilityValue(ctx, id, capability)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":  id,
		"capability": capability,
		"value":      value,
	})
}
