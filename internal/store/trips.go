package store

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Viewer supplies the signed-in identity whose role scopes the trip list.
type Viewer interface {
	Current() (models.User, bool)
}

// Trips caches trips newest first.
type Trips struct {
	*Store[models.Trip]
	gw     *api.Gateway
	viewer Viewer
}

// NewTrips creates the trip store.
func NewTrips(gw *api.Gateway, viewer Viewer, log logrus.FieldLogger) *Trips {
	return &Trips{Store: New[models.Trip]("trips", Prepend, log), gw: gw, viewer: viewer}
}

// listPath returns the trip list endpoint for role. The API scopes the result;
// the store never filters it again.
func listPath(role models.Role) string {
	switch role {
	case models.RoleAdmin, models.RoleManager:
		return "/trips/view/all"
	case models.RoleDriver:
		return "/trips/view/driver"
	default:
		return "/trips/view/user"
	}
}

// List fetches the trips visible to the signed-in identity.
func (t *Trips) List(ctx context.Context) ([]models.Trip, error) {
	var out []models.Trip
	err := t.track("list", func() error {
		me, ok := t.viewer.Current()
		if !ok {
			return &api.Error{Kind: api.KindUnauthorized, Message: "not signed in"}
		}
		return t.gw.Do(ctx, http.MethodGet, listPath(me.Role), nil, "trips", &out)
	}, func() {
		t.replaceAllLocked(out)
	})
	if err != nil {
		return nil, err
	}
	return t.Items(), nil
}

// ValidateTrip checks a trip request before it is sent.
func ValidateTrip(d models.TripDraft) error {
	if err := requireFields(
		field{"startLocation", d.StartLocation},
		field{"endLocation", d.EndLocation},
		field{"vehicleId", d.VehicleID},
		field{"tripType", d.TripType},
	); err != nil {
		return err
	}
	if !primitive.IsValidObjectID(d.VehicleID) {
		return api.Validation("invalid vehicle id %q", d.VehicleID)
	}
	if d.StartTime.IsZero() {
		return api.Validation("startTime is required")
	}
	if d.EndTime != nil && d.EndTime.Before(d.StartTime) {
		return api.Validation("endTime must be after startTime")
	}
	if d.Distance != nil && *d.Distance < 0 {
		return api.Validation("distance must not be negative")
	}
	if d.FuelUsed != nil && *d.FuelUsed < 0 {
		return api.Validation("fuelUsed must not be negative")
	}
	switch d.Status {
	case "", models.TripPending, models.TripRequested:
		return nil
	default:
		return api.Validation("new trips must be pending")
	}
}

// decodeCreated reads the created trip from either the staff envelope {trip}
// or the requester envelope {userTrips}.
func decodeCreated(raw json.RawMessage, out *models.Trip) error {
	if api.Has(raw, "trip") {
		return api.Decode(raw, "trip", out)
	}
	if api.Has(raw, "userTrips") {
		if err := api.Decode(raw, "userTrips", out); err == nil {
			return nil
		}
		var list []models.Trip
		if err := api.Decode(raw, "userTrips", &list); err != nil {
			return err
		}
		if len(list) > 0 {
			*out = list[0]
		}
		return nil
	}
	return api.Decode(raw, "", out)
}

// Create requests a trip. New trips go to the top of the list.
func (t *Trips) Create(ctx context.Context, d models.TripDraft) (models.Trip, error) {
	if d.Status == "" {
		d.Status = models.TripPending
	}
	var out models.Trip
	err := t.track("create", func() error {
		if err := ValidateTrip(d); err != nil {
			return err
		}
		raw, err := t.gw.Request(ctx, http.MethodPost, "/trips/create", d)
		if err != nil {
			return err
		}
		if raw == nil {
			return present(&out, nil)
		}
		return present(&out, decodeCreated(raw, &out))
	}, func() {
		t.upsertLocked(out, Prepend)
	})
	return out, err
}

func (t *Trips) update(ctx context.Context, action, id string, body any, check func() error) (models.Trip, error) {
	var out models.Trip
	err := t.track(action, func() error {
		if err := checkID("trip", id); err != nil {
			return err
		}
		if check != nil {
			if err := check(); err != nil {
				return err
			}
		}
		return present(&out, t.gw.Do(ctx, http.MethodPut, "/trips/update/"+id, body, "trip", &out))
	}, func() {
		t.upsertLocked(out, Append)
	})
	return out, err
}

// Assign attaches a driver to a trip.
func (t *Trips) Assign(ctx context.Context, id, driverID string) (models.Trip, error) {
	return t.update(ctx, "assign", id, map[string]string{"driverId": driverID}, func() error {
		if !primitive.IsValidObjectID(driverID) {
			return api.Validation("invalid driver id %q", driverID)
		}
		return nil
	})
}

// Act applies a lifecycle action to a trip.
func (t *Trips) Act(ctx context.Context, id string, action models.TripAction) (models.Trip, error) {
	return t.update(ctx, "act", id, map[string]models.TripAction{"action": action}, func() error {
		if !models.IsValidTripAction(action) {
			return api.Validation("invalid trip action %q", action)
		}
		return nil
	})
}

// Edit changes trip fields.
func (t *Trips) Edit(ctx context.Context, id string, u models.TripUpdates) (models.Trip, error) {
	return t.update(ctx, "edit", id, map[string]models.TripUpdates{"updates": u}, func() error {
		if u.StartLocation != nil && *u.StartLocation == "" {
			return api.Validation("startLocation is required")
		}
		if u.EndLocation != nil && *u.EndLocation == "" {
			return api.Validation("endLocation is required")
		}
		start := u.StartTime
		if start == nil {
			if cached, ok := t.Get(id); ok {
				start = &cached.StartTime
			}
		}
		if start != nil && u.EndTime != nil && u.EndTime.Before(*start) {
			return api.Validation("endTime must be after startTime")
		}
		return nil
	})
}

// Cancel cancels a trip.
func (t *Trips) Cancel(ctx context.Context, id string) (models.Trip, error) {
	status := models.TripCanceled
	return t.Edit(ctx, id, models.TripUpdates{Status: &status})
}

// Remove deletes a trip.
func (t *Trips) Remove(ctx context.Context, id string) (string, error) {
	err := t.track("remove", func() error {
		if err := checkID("trip", id); err != nil {
			return err
		}
		_, err := t.gw.Request(ctx, http.MethodDelete, "/trips/delete/"+id, nil)
		return err
	}, func() {
		t.removeLocked(id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
