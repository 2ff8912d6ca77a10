package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// handleListPairingVehicles returns the vehicles that can be paired.
// When the inventory cannot be loaded the response is 502 with a message
// suitable for showing to the user.
func (s *Server) handleListPairingVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.bridge.ListPairingDevices(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles, "count": len(vehicles)})
}

// PairVehicleRequest is the body of a pairing request.
type PairVehicleRequest struct {
	VIN string `json:"vin"`
}

// handlePairVehicle creates a device for a vehicle offered by the pairing
// list. Responds 201 when created and 200 when already paired.
func (s *Server) handlePairVehicle(w http.ResponseWriter, r *http.Request) {
	var req PairVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	vin := strings.TrimSpace(req.VIN)
	if vin == "" {
		writeBadRequest(w, "vin is required")
		return
	}

	d, created, err := s.bridge.PairVehicle(r.Context(), vin)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logger.Info("vehicle paired via API", "vin", vin, "device_id", d.ID)
	}
	writeJSON(w, status, d)
}
