package view

import (
	"github.com/ukydev/fleet-console/internal/models"
)

// AvailableVehicles returns the vehicles not referenced by any open trip.
func AvailableVehicles(vehicles []models.Vehicle, trips []models.Trip) []models.Vehicle {
	busy := make(map[string]bool)
	for _, t := range trips {
		if t.Status.Open() && !t.Vehicle.IsZero() {
			busy[t.Vehicle.ID] = true
		}
	}
	var out []models.Vehicle
	for _, v := range vehicles {
		if !busy[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

// Summary is the dashboard.
type Summary struct {
	Drivers            int
	Managers           int
	Vehicles           int
	OpenTrips          int
	PendingMaintenance int
	Recent             []models.ActivityLogEntry
}

// Summarize builds the dashboard from cached collections. recent is capped at
// limit entries.
func Summarize(users []models.User, vehicles []models.Vehicle, trips []models.Trip,
	maintenance []models.MaintenanceSchedule, activity []models.ActivityLogEntry, limit int) Summary {
	s := Summary{Vehicles: len(vehicles)}
	for _, u := range users {
		switch u.Role {
		case models.RoleDriver:
			s.Drivers++
		case models.RoleManager:
			s.Managers++
		}
	}
	for _, t := range trips {
		if t.Status.Open() {
			s.OpenTrips++
		}
	}
	for _, m := range maintenance {
		if !m.Completed {
			s.PendingMaintenance++
		}
	}
	if limit > 0 && len(activity) > limit {
		activity = activity[:limit]
	}
	s.Recent = activity
	return s
}
