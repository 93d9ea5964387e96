package models

import (
	"time"
)

// Geofence is a circular boundary around Center, Radius meters wide, watched for
// one vehicle.
type Geofence struct {
	ID        string    `json:"_id,omitempty" bson:"_id,omitempty"`
	Name      string    `json:"name" bson:"name"`
	Vehicle   Ref       `json:"vehicleId" bson:"vehicleId"`
	Center    Location  `json:"center" bson:"center"`
	Radius    float64   `json:"radius" bson:"radius"` // in meters
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Key returns the geofence id.
func (g Geofence) Key() string { return g.ID }

// Version returns the server-assigned modification time.
func (g Geofence) Version() time.Time { return g.UpdatedAt }

// Alert is produced by the API when a boundary check finds a vehicle outside its
// geofence.
type Alert struct {
	ID           string    `json:"_id" bson:"_id"`
	Geofence     Ref       `json:"geofenceId" bson:"geofenceId"`
	Vehicle      Ref       `json:"vehicleId" bson:"vehicleId"`
	AlertMessage string    `json:"alertMessage" bson:"alertMessage"`
	AlertDate    time.Time `json:"alertDate" bson:"alertDate"`
}

// Key returns the alert id.
func (a Alert) Key() string { return a.ID }

// Version returns the time the alert was raised.
func (a Alert) Version() time.Time { return a.AlertDate }

// LocationCheck is the body of a boundary check.
type LocationCheck struct {
	VehicleID string  `json:"vehicleId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// GeofenceDraft is the body of a geofence creation.
type GeofenceDraft struct {
	Name      string   `json:"name"`
	VehicleID string   `json:"vehicleId"`
	Center    Location `json:"center"`
	Radius    float64  `json:"radius"`
}
