package models

import (
	"time"
)

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "active"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleRetired     VehicleStatus = "retired"
)

// Vehicle represents a fleet vehicle. LicensePlate is unique across the fleet,
// which only the API enforces.
type Vehicle struct {
	ID             string        `bson:"_id,omitempty" json:"_id,omitempty"`
	Make           string        `bson:"make" json:"make"`
	Model          string        `bson:"model" json:"model"`
	Year           int           `bson:"year" json:"year"`
	LicensePlate   string        `bson:"licensePlate" json:"licensePlate"`
	Mileage        float64       `bson:"mileage" json:"mileage"` // in kilometers
	Status         VehicleStatus `bson:"status" json:"status"`
	AssignedDriver Ref           `bson:"assignedDriver" json:"assignedDriver"`
	Location       string        `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Key returns the vehicle id.
func (v Vehicle) Key() string { return v.ID }

// Version returns the server-assigned modification time.
func (v Vehicle) Version() time.Time { return v.UpdatedAt }

// IsValidVehicleStatus checks if a status is one the API accepts.
func IsValidVehicleStatus(s VehicleStatus) bool {
	switch s {
	case VehicleActive, VehicleMaintenance, VehicleRetired:
		return true
	default:
		return false
	}
}

// VehicleDraft is the body of a vehicle creation.
type VehicleDraft struct {
	Make         string        `json:"make"`
	Model        string        `json:"model"`
	Year         int           `json:"year,omitempty"`
	LicensePlate string        `json:"licensePlate"`
	Mileage      float64       `json:"mileage"`
	Status       VehicleStatus `json:"status,omitempty"`
	Location     string        `json:"location,omitempty"`
}

// VehiclePatch holds the editable fields of a vehicle. Nil fields are left
// unchanged; an empty AssignedDriver unassigns the driver.
type VehiclePatch struct {
	Make           *string        `json:"make,omitempty"`
	Model          *string        `json:"model,omitempty"`
	Year           *int           `json:"year,omitempty"`
	LicensePlate   *string        `json:"licensePlate,omitempty"`
	Mileage        *float64       `json:"mileage,omitempty"`
	Status         *VehicleStatus `json:"status,omitempty"`
	AssignedDriver *string        `json:"assignedDriver,omitempty"`
	Location       *string        `json:"location,omitempty"`
}
