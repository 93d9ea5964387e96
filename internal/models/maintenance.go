package models

import (
	"time"
)

// MaintenanceSchedule represents a planned service for a vehicle. A schedule is
// created pending and completed exactly once.
type MaintenanceSchedule struct {
	ID         string    `json:"_id,omitempty" bson:"_id,omitempty"`
	Vehicle    Ref       `json:"vehicleId" bson:"vehicleId"`
	Type       string    `json:"type" bson:"type"` // "oil_change", "tire_rotation", "brake_service", "inspection", ...
	DueDate    time.Time `json:"dueDate" bson:"dueDate"`
	MileageDue float64   `json:"mileageDue,omitempty" bson:"mileageDue,omitempty"` // in kilometers
	Notes      string    `json:"notes,omitempty" bson:"notes,omitempty"`
	Completed  bool      `json:"completed" bson:"completed"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Key returns the schedule id.
func (m MaintenanceSchedule) Key() string { return m.ID }

// Version returns the server-assigned modification time.
func (m MaintenanceSchedule) Version() time.Time { return m.UpdatedAt }

// MaintenanceDraft is the body of a maintenance schedule creation.
type MaintenanceDraft struct {
	VehicleID  string    `json:"vehicleId"`
	Type       string    `json:"type"`
	DueDate    time.Time `json:"dueDate"`
	MileageDue float64   `json:"mileageDue,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}
