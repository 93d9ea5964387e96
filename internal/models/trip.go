package models

import (
	"time"
)

// TripStatus is a step of the trip lifecycle.
type TripStatus string

const (
	TripRequested TripStatus = "requested"
	TripPending   TripStatus = "pending"
	TripAssigned  TripStatus = "assigned"
	TripOngoing   TripStatus = "ongoing"
	TripCompleted TripStatus = "completed"
	TripCanceled  TripStatus = "canceled"
)

// Open reports whether a trip in this status still commits its vehicle.
func (s TripStatus) Open() bool {
	switch s {
	case TripRequested, TripPending, TripAssigned, TripOngoing:
		return true
	default:
		return false
	}
}

// TripAction is an explicit lifecycle transition requested through a trip update.
type TripAction string

const (
	TripActionStart    TripAction = "start"
	TripActionComplete TripAction = "complete"
	TripActionReject   TripAction = "reject"
	TripActionCancel   TripAction = "cancel"
)

// IsValidTripAction checks if an action is one the API accepts.
func IsValidTripAction(a TripAction) bool {
	switch a {
	case TripActionStart, TripActionComplete, TripActionReject, TripActionCancel:
		return true
	default:
		return false
	}
}

// Trip represents a vehicle trip from start to end location.
type Trip struct {
	ID            string     `json:"_id,omitempty" bson:"_id,omitempty"`
	Vehicle       Ref        `json:"vehicleId" bson:"vehicleId"`
	Driver        Ref        `json:"driverId" bson:"driverId"`
	RequestedBy   Ref        `json:"userId" bson:"userId"`
	StartLocation string     `json:"startLocation" bson:"startLocation"`
	EndLocation   string     `json:"endLocation" bson:"endLocation"`
	StartTime     time.Time  `json:"startTime" bson:"startTime"`
	EndTime       *time.Time `json:"endTime" bson:"endTime"`
	Distance      float64    `json:"distance" bson:"distance"` // in kilometers
	FuelUsed      float64    `json:"fuelUsed" bson:"fuelUsed"` // in liters
	Purpose       string     `json:"purpose" bson:"purpose"`
	TripType      string     `json:"tripType" bson:"tripType"`
	Status        TripStatus `json:"status" bson:"status"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Key returns the trip id.
func (t Trip) Key() string { return t.ID }

// Version returns the server-assigned modification time.
func (t Trip) Version() time.Time { return t.UpdatedAt }

// TripDraft is the body of a trip request.
type TripDraft struct {
	VehicleID     string     `json:"vehicleId"`
	StartLocation string     `json:"startLocation"`
	EndLocation   string     `json:"endLocation"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime"`
	Distance      *float64   `json:"distance,omitempty"`
	FuelUsed      *float64   `json:"fuelUsed,omitempty"`
	Purpose       string     `json:"purpose,omitempty"`
	TripType      string     `json:"tripType"`
	Status        TripStatus `json:"status"`
}

// TripUpdates holds the editable fields of a trip. Nil fields are left unchanged.
type TripUpdates struct {
	StartLocation *string     `json:"startLocation,omitempty"`
	EndLocation   *string     `json:"endLocation,omitempty"`
	StartTime     *time.Time  `json:"startTime,omitempty"`
	EndTime       *time.Time  `json:"endTime,omitempty"`
	Distance      *float64    `json:"distance,omitempty"`
	FuelUsed      *float64    `json:"fuelUsed,omitempty"`
	Purpose       *string     `json:"purpose,omitempty"`
	TripType      *string     `json:"tripType,omitempty"`
	Status        *TripStatus `json:"status,omitempty"`
}
