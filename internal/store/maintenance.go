package store

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

// Maintenance caches maintenance schedules.
type Maintenance struct {
	*Store[models.MaintenanceSchedule]
	gw       *api.Gateway
	inflight singleflight.Group
}

// NewMaintenance creates the maintenance store.
func NewMaintenance(gw *api.Gateway, log logrus.FieldLogger) *Maintenance {
	return &Maintenance{Store: New[models.MaintenanceSchedule]("maintenance", Append, log), gw: gw}
}

// List fetches every schedule.
func (m *Maintenance) List(ctx context.Context) ([]models.MaintenanceSchedule, error) {
	var out []models.MaintenanceSchedule
	err := m.track("list", func() error {
		return m.gw.Do(ctx, http.MethodGet, "/maintenance", nil, "data", &out)
	}, func() {
		m.replaceAllLocked(out)
	})
	if err != nil {
		return nil, err
	}
	return m.Items(), nil
}

// Create schedules maintenance for a vehicle.
func (m *Maintenance) Create(ctx context.Context, d models.MaintenanceDraft) (models.MaintenanceSchedule, error) {
	var out models.MaintenanceSchedule
	err := m.track("create", func() error {
		if err := requireFields(field{"vehicleId", d.VehicleID}, field{"type", d.Type}); err != nil {
			return err
		}
		if !primitive.IsValidObjectID(d.VehicleID) {
			return api.Validation("invalid vehicle id %q", d.VehicleID)
		}
		if d.DueDate.IsZero() {
			return api.Validation("dueDate is required")
		}
		if d.MileageDue < 0 {
			return api.Validation("mileageDue must not be negative")
		}
		return present(&out, m.gw.Do(ctx, http.MethodPost, "/maintenance", d, "data", &out))
	}, func() {
		m.upsertLocked(out, Append)
	})
	return out, err
}

// Complete marks a schedule done. Completing a schedule already cached as done
// is a no-op, and concurrent completions of one id share a single request.
func (m *Maintenance) Complete(ctx context.Context, id string) (models.MaintenanceSchedule, error) {
	if cached, ok := m.Get(id); ok && cached.Completed {
		return cached, nil
	}
	v, err, _ := m.inflight.Do(id, func() (any, error) {
		var out models.MaintenanceSchedule
		err := m.track("complete", func() error {
			if err := checkID("maintenance schedule", id); err != nil {
				return err
			}
			return present(&out, m.gw.Do(ctx, http.MethodPut, "/maintenance/complete/"+id, nil, "data", &out))
		}, func() {
			m.upsertLocked(out, Append)
		})
		return out, err
	})
	if err != nil {
		return models.MaintenanceSchedule{}, err
	}
	return v.(models.MaintenanceSchedule), nil
}

// Pending returns the cached schedules not completed yet.
func (m *Maintenance) Pending() []models.MaintenanceSchedule {
	var out []models.MaintenanceSchedule
	for _, s := range m.Items() {
		if !s.Completed {
			out = append(out, s)
		}
	}
	return out
}
