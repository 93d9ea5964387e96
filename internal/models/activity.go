package models

import (
	"time"
)

// ActivityType classifies an activity log entry.
type ActivityType string

const (
	ActivityDriverAssigned ActivityType = "driver_assigned"
	ActivityVehicleEdited  ActivityType = "vehicle_edited"
	ActivityTripStarted    ActivityType = "trip_started"
	ActivityTripCompleted  ActivityType = "trip_completed"
	ActivityTripRejected   ActivityType = "trip_rejected"
	ActivityOther          ActivityType = "other"
)

// ActivityLogEntry is an append-only record produced by the API.
type ActivityLogEntry struct {
	ID             string       `json:"_id" bson:"_id"`
	User           Ref          `json:"userId" bson:"userId"`
	Type           ActivityType `json:"type" bson:"type"`
	Message        string       `json:"message" bson:"message"`
	RelatedVehicle Ref          `json:"relatedVehicle" bson:"relatedVehicle"`
	RelatedDriver  Ref          `json:"relatedDriver" bson:"relatedDriver"`
	RelatedTrip    Ref          `json:"relatedTrip" bson:"relatedTrip"`
	CreatedAt      time.Time    `json:"createdAt" bson:"createdAt"`
}

// Key returns the entry id.
func (a ActivityLogEntry) Key() string { return a.ID }

// Version returns the creation time; entries are never modified.
func (a ActivityLogEntry) Version() time.Time { return a.CreatedAt }
