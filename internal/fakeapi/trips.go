package fakeapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validateDraft(d models.TripDraft) string {
	switch {
	case !primitive.IsValidObjectID(d.VehicleID):
		return "vehicleId is required"
	case strings.TrimSpace(d.StartLocation) == "":
		return "startLocation is required"
	case strings.TrimSpace(d.EndLocation) == "":
		return "endLocation is required"
	case d.StartTime.IsZero():
		return "startTime is required"
	case strings.TrimSpace(d.TripType) == "":
		return "tripType is required"
	case d.EndTime != nil && d.EndTime.Before(d.StartTime):
		return "endTime must be after startTime"
	}
	switch d.Status {
	case "", models.TripPending, models.TripRequested:
		return ""
	default:
		return "new trips must be pending"
	}
}

// vehicleBusy reports whether the vehicle is committed to an open trip. Callers
// hold s.mu.
func (s *Server) vehicleBusy(vehicleID, except string) bool {
	for _, t := range s.trips {
		if t.ID != except && t.Vehicle.ID == vehicleID && t.Status.Open() {
			return true
		}
	}
	return false
}

func (s *Server) createTrip(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetUserFromContext(r.Context())
	var d models.TripDraft
	if err := decodeBody(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg := validateDraft(d); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	if indexOf(s.vehicles, d.VehicleID) < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Vehicle not found")
		return
	}
	if s.vehicleBusy(d.VehicleID, "") {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Vehicle already has an active trip")
		return
	}
	t := models.Trip{
		ID:            newID(),
		Vehicle:       models.RefTo(d.VehicleID),
		RequestedBy:   models.RefTo(claims.UserID),
		StartLocation: d.StartLocation,
		EndLocation:   d.EndLocation,
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		Purpose:       d.Purpose,
		TripType:      d.TripType,
		Status:        models.TripPending,
	}
	if d.Status == models.TripRequested {
		t.Status = models.TripRequested
	}
	if d.Distance != nil {
		t.Distance = *d.Distance
	}
	if d.FuelUsed != nil {
		t.FuelUsed = *d.FuelUsed
	}
	now := s.stamp()
	t.CreatedAt, t.UpdatedAt = now, now
	s.trips = append([]models.Trip{t}, s.trips...)
	doc := s.tripDoc(t)
	s.mu.Unlock()

	s.hub.Broadcast(EventTripUpdated, doc)
	key := "trip"
	if claims.Role == models.RoleUser {
		key = "userTrips"
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, key: doc})
}

func (s *Server) listScopedTrips(w http.ResponseWriter, r *http.Request) {
	s.listTrips(mux.Vars(r)["scope"])(w, r)
}

// listTrips answers the trips visible in scope. An empty scope derives it from
// the caller's role.
func (s *Server) listTrips(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := GetUserFromContext(r.Context())
		if scope == "" {
			switch claims.Role {
			case models.RoleAdmin, models.RoleManager:
				scope = "all"
			case models.RoleDriver:
				scope = "driver"
			default:
				scope = "user"
			}
		}

		var keep func(models.Trip) bool
		switch scope {
		case "all":
			if !claims.Role.Can(models.CapManageTrips) {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			keep = func(models.Trip) bool { return true }
		case "driver":
			if !claims.Role.Can(models.CapViewTrips) {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			keep = func(t models.Trip) bool { return t.Driver.ID == claims.UserID }
		case "user":
			keep = func(t models.Trip) bool { return t.RequestedBy.ID == claims.UserID }
		default:
			writeError(w, http.StatusNotFound, "Unknown trip scope")
			return
		}

		s.mu.RLock()
		docs := []tripDoc{}
		for _, t := range s.trips {
			if keep(t) {
				docs = append(docs, s.tripDoc(t))
			}
		}
		s.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]any{"trips": docs})
	}
}

type tripUpdateBody struct {
	DriverID *models.Ref         `json:"driverId"`
	Action   models.TripAction   `json:"action"`
	Updates  *models.TripUpdates `json:"updates"`
}

type tripChange struct {
	status  int
	message string
	entry   *models.ActivityLogEntry
}

func (s *Server) updateTrip(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetUserFromContext(r.Context())
	id := mux.Vars(r)["id"]
	var body tripUpdateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s.mu.Lock()
	i := indexOf(s.trips, id)
	if i < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Trip not found")
		return
	}
	t := s.trips[i]

	var change tripChange
	switch {
	case body.DriverID != nil:
		change = s.assignLocked(claims, &t, body.DriverID.ID)
	case body.Action != "":
		change = s.actLocked(claims, &t, body.Action)
	case body.Updates != nil:
		change = editTrip(claims, &t, *body.Updates)
	default:
		change = tripChange{status: http.StatusBadRequest, message: "driverId, action or updates is required"}
	}
	if change.status != 0 {
		s.mu.Unlock()
		writeError(w, change.status, change.message)
		return
	}

	t.UpdatedAt = s.stamp()
	s.trips[i] = t
	var logged *models.ActivityLogEntry
	if change.entry != nil {
		change.entry.RelatedTrip = models.RefTo(t.ID)
		change.entry.RelatedVehicle = t.Vehicle
		e := s.recordLocked(claims.UserID, *change.entry)
		logged = &e
	}
	doc := s.tripDoc(t)
	s.mu.Unlock()

	s.hub.Broadcast(EventTripUpdated, doc)
	if logged != nil {
		s.hub.Broadcast(EventNewActivity, *logged)
	}
	writeJSON(w, http.StatusOK, map[string]any{"trip": doc})
}

func (s *Server) assignLocked(claims *Claims, t *models.Trip, driverID string) tripChange {
	if !claims.Role.Can(models.CapManageTrips) {
		return tripChange{status: http.StatusForbidden, message: "Insufficient permissions"}
	}
	acc := s.accountByID(driverID)
	if acc == nil || acc.user.Role != models.RoleDriver {
		return tripChange{status: http.StatusBadRequest, message: "Driver not found"}
	}
	switch t.Status {
	case models.TripRequested, models.TripPending, models.TripAssigned:
	default:
		return tripChange{status: http.StatusConflict, message: fmt.Sprintf("Cannot assign a driver to a trip that is %s", t.Status)}
	}
	t.Driver = models.RefTo(driverID)
	t.Status = models.TripAssigned
	return tripChange{entry: &models.ActivityLogEntry{
		Type:          models.ActivityDriverAssigned,
		Message:       fmt.Sprintf("Driver %s assigned to trip %s → %s", acc.user.Username, t.StartLocation, t.EndLocation),
		RelatedDriver: t.Driver,
	}}
}

func (s *Server) actLocked(claims *Claims, t *models.Trip, action models.TripAction) tripChange {
	if !models.IsValidTripAction(action) {
		return tripChange{status: http.StatusBadRequest, message: "Invalid action"}
	}
	if !claims.Role.Can(models.CapActOnTrip) {
		return tripChange{status: http.StatusForbidden, message: "Insufficient permissions"}
	}
	if claims.Role == models.RoleDriver && t.Driver.ID != claims.UserID {
		return tripChange{status: http.StatusForbidden, message: "Trip is not assigned to you"}
	}

	invalid := tripChange{status: http.StatusConflict, message: fmt.Sprintf("Cannot %s a trip that is %s", action, t.Status)}
	entry := &models.ActivityLogEntry{RelatedDriver: t.Driver}
	switch action {
	case models.TripActionStart:
		if t.Status != models.TripAssigned {
			return invalid
		}
		t.Status = models.TripOngoing
		entry.Type = models.ActivityTripStarted
		entry.Message = fmt.Sprintf("Trip %s → %s started", t.StartLocation, t.EndLocation)
	case models.TripActionComplete:
		if t.Status != models.TripOngoing {
			return invalid
		}
		t.Status = models.TripCompleted
		if t.EndTime == nil {
			end := s.now().UTC()
			t.EndTime = &end
		}
		entry.Type = models.ActivityTripCompleted
		entry.Message = fmt.Sprintf("Trip %s → %s completed", t.StartLocation, t.EndLocation)
	case models.TripActionReject:
		if t.Status != models.TripAssigned && t.Status != models.TripPending {
			return invalid
		}
		t.Status = models.TripPending
		t.Driver = models.Ref{}
		entry.Type = models.ActivityTripRejected
		entry.Message = fmt.Sprintf("Trip %s → %s rejected", t.StartLocation, t.EndLocation)
	case models.TripActionCancel:
		if !t.Status.Open() {
			return invalid
		}
		t.Status = models.TripCanceled
		entry.Type = models.ActivityOther
		entry.Message = fmt.Sprintf("Trip %s → %s canceled", t.StartLocation, t.EndLocation)
	}
	return tripChange{entry: entry}
}

func editTrip(claims *Claims, t *models.Trip, u models.TripUpdates) tripChange {
	owner := t.RequestedBy.ID == claims.UserID && (t.Status == models.TripPending || t.Status == models.TripRequested)
	if !claims.Role.Can(models.CapManageTrips) && !owner {
		return tripChange{status: http.StatusForbidden, message: "Insufficient permissions"}
	}
	next := *t
	setString(&next.StartLocation, u.StartLocation)
	setString(&next.EndLocation, u.EndLocation)
	setString(&next.Purpose, u.Purpose)
	setString(&next.TripType, u.TripType)
	if u.StartTime != nil {
		next.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		end := *u.EndTime
		next.EndTime = &end
	}
	if u.Distance != nil {
		next.Distance = *u.Distance
	}
	if u.FuelUsed != nil {
		next.FuelUsed = *u.FuelUsed
	}
	if u.Status != nil {
		switch *u.Status {
		case models.TripRequested, models.TripPending, models.TripAssigned,
			models.TripOngoing, models.TripCompleted, models.TripCanceled:
		default:
			return tripChange{status: http.StatusBadRequest, message: "Invalid trip status"}
		}
		next.Status = *u.Status
	}
	if next.EndTime != nil && next.EndTime.Before(next.StartTime) {
		return tripChange{status: http.StatusBadRequest, message: "endTime must be after startTime"}
	}
	*t = next
	return tripChange{}
}

func (s *Server) deleteTrip(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.trips, id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Trip not found")
		return
	}
	s.trips = append(s.trips[:i], s.trips[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}
