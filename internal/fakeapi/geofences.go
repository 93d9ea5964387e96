package fakeapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *Server) listGeofences(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data := append([]models.Geofence{}, s.geofences...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

type geofenceBody struct {
	Name      string          `json:"name"`
	VehicleID models.Ref      `json:"vehicleId"`
	Center    models.Location `json:"center"`
	Radius    float64         `json:"radius"`
}

func (s *Server) createGeofence(w http.ResponseWriter, r *http.Request) {
	var body geofenceBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	switch {
	case strings.TrimSpace(body.Name) == "":
		writeError(w, http.StatusBadRequest, "name is required")
		return
	case !primitive.IsValidObjectID(body.VehicleID.ID):
		writeError(w, http.StatusBadRequest, "vehicleId is required")
		return
	case body.Radius <= 0:
		writeError(w, http.StatusBadRequest, "radius must be positive")
		return
	}

	s.mu.Lock()
	if indexOf(s.vehicles, body.VehicleID.ID) < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Vehicle not found")
		return
	}
	now := s.stamp()
	g := models.Geofence{
		ID:        newID(),
		Name:      body.Name,
		Vehicle:   body.VehicleID,
		Center:    body.Center,
		Radius:    body.Radius,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.geofences = append(s.geofences, g)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": g})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data := append([]models.Alert{}, s.alerts...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

// checkLocation raises one alert per geofence of the vehicle that the reported
// position lies outside of.
func (s *Server) checkLocation(w http.ResponseWriter, r *http.Request) {
	var check models.LocationCheck
	if err := decodeBody(r, &check); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !primitive.IsValidObjectID(check.VehicleID) {
		writeError(w, http.StatusBadRequest, "vehicleId is required")
		return
	}
	pos := models.Location{Lat: check.Lat, Lng: check.Lng}

	s.mu.Lock()
	raised := []models.Alert{}
	for _, g := range s.geofences {
		if g.Vehicle.ID != check.VehicleID || !Outside(g, pos) {
			continue
		}
		raised = append(raised, models.Alert{
			ID:           newID(),
			Geofence:     models.RefTo(g.ID),
			Vehicle:      models.RefTo(check.VehicleID),
			AlertMessage: fmt.Sprintf("Vehicle left geofence %s (%.0f m from center)", g.Name, HaversineKm(g.Center, pos)*1000),
			AlertDate:    s.stamp(),
		})
	}
	for i := len(raised) - 1; i >= 0; i-- {
		s.alerts = append([]models.Alert{raised[i]}, s.alerts...)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "alerts": raised})
}
