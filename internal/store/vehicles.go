package store

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vehicles caches the fleet.
type Vehicles struct {
	*Store[models.Vehicle]
	gw *api.Gateway
}

// NewVehicles creates the vehicle store.
func NewVehicles(gw *api.Gateway, log logrus.FieldLogger) *Vehicles {
	return &Vehicles{Store: New[models.Vehicle]("vehicles", Append, log), gw: gw}
}

// List fetches the fleet.
func (v *Vehicles) List(ctx context.Context) ([]models.Vehicle, error) {
	var out []models.Vehicle
	err := v.track("list", func() error {
		return v.gw.Do(ctx, http.MethodGet, "/vehicles", nil, "vehicles", &out)
	}, func() {
		v.replaceAllLocked(out)
	})
	if err != nil {
		return nil, err
	}
	return v.Items(), nil
}

// Fetch loads one vehicle, caches it and selects it for detail.
func (v *Vehicles) Fetch(ctx context.Context, id string) (models.Vehicle, error) {
	var out models.Vehicle
	err := v.track("get", func() error {
		if err := checkID("vehicle", id); err != nil {
			return err
		}
		return present(&out, v.gw.Do(ctx, http.MethodGet, "/vehicles/"+id, nil, "vehicle", &out))
	}, func() {
		v.upsertLocked(out, Append)
		v.selected = out.ID
	})
	return out, err
}

func validateVehicle(d models.VehicleDraft) error {
	if err := requireFields(
		field{"make", d.Make},
		field{"model", d.Model},
		field{"licensePlate", d.LicensePlate},
	); err != nil {
		return err
	}
	if d.Year != 0 && (d.Year < 1900 || d.Year > time.Now().Year()+1) {
		return api.Validation("year must be between 1900 and %d", time.Now().Year()+1)
	}
	if d.Mileage < 0 {
		return api.Validation("mileage must not be negative")
	}
	if d.Status != "" && !models.IsValidVehicleStatus(d.Status) {
		return api.Validation("invalid vehicle status %q", d.Status)
	}
	return nil
}

// Create adds a vehicle. Plate uniqueness is left to the API, which answers a
// conflict.
func (v *Vehicles) Create(ctx context.Context, d models.VehicleDraft) (models.Vehicle, error) {
	var out models.Vehicle
	err := v.track("create", func() error {
		if err := validateVehicle(d); err != nil {
			return err
		}
		return present(&out, v.gw.Do(ctx, http.MethodPost, "/vehicles", d, "vehicle", &out))
	}, func() {
		v.upsertLocked(out, Append)
	})
	return out, err
}

// Update edits a vehicle in place.
func (v *Vehicles) Update(ctx context.Context, id string, patch models.VehiclePatch) (models.Vehicle, error) {
	var out models.Vehicle
	err := v.track("update", func() error {
		if err := checkID("vehicle", id); err != nil {
			return err
		}
		if patch.Status != nil && !models.IsValidVehicleStatus(*patch.Status) {
			return api.Validation("invalid vehicle status %q", *patch.Status)
		}
		if patch.Mileage != nil && *patch.Mileage < 0 {
			return api.Validation("mileage must not be negative")
		}
		if patch.AssignedDriver != nil && *patch.AssignedDriver != "" && !primitive.IsValidObjectID(*patch.AssignedDriver) {
			return api.Validation("invalid driver id %q", *patch.AssignedDriver)
		}
		return present(&out, v.gw.Do(ctx, http.MethodPut, "/vehicles/"+id, patch, "vehicle", &out))
	}, func() {
		v.upsertLocked(out, Append)
	})
	return out, err
}

// AssignDriver sets the vehicle's driver. An empty driverID unassigns it.
func (v *Vehicles) AssignDriver(ctx context.Context, id, driverID string) (models.Vehicle, error) {
	return v.Update(ctx, id, models.VehiclePatch{AssignedDriver: &driverID})
}

// Remove deletes a vehicle.
func (v *Vehicles) Remove(ctx context.Context, id string) (string, error) {
	err := v.track("remove", func() error {
		if err := checkID("vehicle", id); err != nil {
			return err
		}
		_, err := v.gw.Request(ctx, http.MethodDelete, "/vehicles/"+id, nil)
		return err
	}, func() {
		v.removeLocked(id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
