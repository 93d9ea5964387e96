package fakeapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *Server) listMaintenance(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data := append([]models.MaintenanceSchedule{}, s.maintenance...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (s *Server) createMaintenance(w http.ResponseWriter, r *http.Request) {
	var m models.MaintenanceSchedule
	if err := decodeBody(r, &m); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	switch {
	case !primitive.IsValidObjectID(m.Vehicle.ID):
		writeError(w, http.StatusBadRequest, "vehicleId is required")
		return
	case strings.TrimSpace(m.Type) == "":
		writeError(w, http.StatusBadRequest, "type is required")
		return
	case m.DueDate.IsZero():
		writeError(w, http.StatusBadRequest, "dueDate is required")
		return
	}

	s.mu.Lock()
	if indexOf(s.vehicles, m.Vehicle.ID) < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Vehicle not found")
		return
	}
	m.ID = newID()
	m.Vehicle = models.RefTo(m.Vehicle.ID)
	m.Completed = false
	now := s.stamp()
	m.CreatedAt, m.UpdatedAt = now, now
	s.maintenance = append(s.maintenance, m)
	s.mu.Unlock()

	s.hub.Broadcast(EventMaintenanceUpdated, m)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": m})
}

// completeMaintenance only matches pending schedules, so completing a schedule
// twice answers 404.
func (s *Server) completeMaintenance(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetUserFromContext(r.Context())
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	i := indexOf(s.maintenance, id)
	if i < 0 || s.maintenance[i].Completed {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Maintenance schedule not found or already completed")
		return
	}
	m := s.maintenance[i]
	m.Completed = true
	m.UpdatedAt = s.stamp()
	s.maintenance[i] = m
	logged := s.recordLocked(claims.UserID, models.ActivityLogEntry{
		Type:           models.ActivityOther,
		Message:        fmt.Sprintf("Maintenance %s completed", m.Type),
		RelatedVehicle: m.Vehicle,
	})
	s.mu.Unlock()

	s.hub.Broadcast(EventMaintenanceUpdated, m)
	s.hub.Broadcast(EventNewActivity, logged)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": m})
}
