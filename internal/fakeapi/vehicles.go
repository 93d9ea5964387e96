package fakeapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AddVehicle stores a vehicle directly. It is meant for seeding.
func (s *Server) AddVehicle(v models.Vehicle) models.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == "" {
		v.ID = newID()
	}
	if v.Status == "" {
		v.Status = models.VehicleActive
	}
	now := s.stamp()
	v.CreatedAt, v.UpdatedAt = now, now
	s.vehicles = append(s.vehicles, v)
	return v
}

func (s *Server) plateTaken(plate, except string) bool {
	for _, v := range s.vehicles {
		if v.ID != except && strings.EqualFold(v.LicensePlate, plate) {
			return true
		}
	}
	return false
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	docs := make([]vehicleDoc, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		docs = append(docs, s.vehicleDoc(v))
	}
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": docs})
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !primitive.IsValidObjectID(id) {
		writeError(w, http.StatusBadRequest, "Invalid vehicle ID")
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.vehicles, id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicle": s.vehicleDoc(s.vehicles[i])})
}

type vehicleBody struct {
	Make           *string               `json:"make"`
	Model          *string               `json:"model"`
	Year           *int                  `json:"year"`
	LicensePlate   *string               `json:"licensePlate"`
	Mileage        *float64              `json:"mileage"`
	Status         *models.VehicleStatus `json:"status"`
	AssignedDriver *models.Ref           `json:"assignedDriver"`
	Location       *string               `json:"location"`
}

func (b vehicleBody) validate(create bool) string {
	if create {
		if b.Make == nil || strings.TrimSpace(*b.Make) == "" {
			return "make is required"
		}
		if b.Model == nil || strings.TrimSpace(*b.Model) == "" {
			return "model is required"
		}
		if b.LicensePlate == nil || strings.TrimSpace(*b.LicensePlate) == "" {
			return "licensePlate is required"
		}
	}
	if b.Status != nil && *b.Status != "" && !models.IsValidVehicleStatus(*b.Status) {
		return "Invalid vehicle status"
	}
	if b.Mileage != nil && *b.Mileage < 0 {
		return "mileage must not be negative"
	}
	return ""
}

func (b vehicleBody) apply(v *models.Vehicle) {
	setString(&v.Make, b.Make)
	setString(&v.Model, b.Model)
	setString(&v.LicensePlate, b.LicensePlate)
	setString(&v.Location, b.Location)
	if b.Year != nil {
		v.Year = *b.Year
	}
	if b.Mileage != nil {
		v.Mileage = *b.Mileage
	}
	if b.Status != nil && *b.Status != "" {
		v.Status = *b.Status
	}
	if b.AssignedDriver != nil {
		v.AssignedDriver = models.RefTo(b.AssignedDriver.ID)
	}
}

func (s *Server) createVehicle(w http.ResponseWriter, r *http.Request) {
	var body vehicleBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg := body.validate(true); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	if s.plateTaken(*body.LicensePlate, "") {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Vehicle with this license plate already exists")
		return
	}
	v := models.Vehicle{ID: newID(), Status: models.VehicleActive}
	body.apply(&v)
	now := s.stamp()
	v.CreatedAt, v.UpdatedAt = now, now
	s.vehicles = append(s.vehicles, v)
	doc := s.vehicleDoc(v)
	s.mu.Unlock()

	s.hub.Broadcast(EventVehicleUpdated, doc)
	writeJSON(w, http.StatusCreated, map[string]any{"vehicle": doc})
}

func (s *Server) updateVehicle(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetUserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	var body vehicleBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg := body.validate(false); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	i := indexOf(s.vehicles, id)
	if i < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	if body.LicensePlate != nil && s.plateTaken(*body.LicensePlate, id) {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Vehicle with this license plate already exists")
		return
	}
	if body.AssignedDriver != nil && !body.AssignedDriver.IsZero() {
		acc := s.accountByID(body.AssignedDriver.ID)
		if acc == nil || acc.user.Role != models.RoleDriver {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "Assigned driver must be an existing driver")
			return
		}
	}

	v := s.vehicles[i]
	before := v.AssignedDriver.ID
	body.apply(&v)
	v.UpdatedAt = s.stamp()
	s.vehicles[i] = v

	entry := models.ActivityLogEntry{
		Type:           models.ActivityVehicleEdited,
		Message:        fmt.Sprintf("Vehicle %s was edited", v.LicensePlate),
		RelatedVehicle: models.RefTo(v.ID),
	}
	if v.AssignedDriver.ID != before && !v.AssignedDriver.IsZero() {
		entry.Type = models.ActivityDriverAssigned
		entry.RelatedDriver = v.AssignedDriver
		entry.Message = fmt.Sprintf("Driver %s assigned to vehicle %s", s.userRef(v.AssignedDriver).Username, v.LicensePlate)
	}
	logged := s.recordLocked(claims.UserID, entry)
	doc := s.vehicleDoc(v)
	s.mu.Unlock()

	s.hub.Broadcast(EventVehicleUpdated, doc)
	s.hub.Broadcast(EventNewActivity, logged)
	writeJSON(w, http.StatusOK, map[string]any{"vehicle": doc})
}

func (s *Server) deleteVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.vehicles, id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Vehicle not found")
		return
	}
	v := s.vehicles[i]
	s.vehicles = append(s.vehicles[:i], s.vehicles[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Vehicle deleted", "vehicle": v})
}
