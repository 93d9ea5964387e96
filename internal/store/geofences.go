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

// Geofences caches geofences and the alerts raised against them.
type Geofences struct {
	*Store[models.Geofence]
	Alerts *Store[models.Alert]
	gw     *api.Gateway
}

// NewGeofences creates the geofence store.
func NewGeofences(gw *api.Gateway, log logrus.FieldLogger) *Geofences {
	return &Geofences{
		Store:  New[models.Geofence]("geofences", Append, log),
		Alerts: New[models.Alert]("alerts", Prepend, log),
		gw:     gw,
	}
}

// List fetches every geofence.
func (g *Geofences) List(ctx context.Context) ([]models.Geofence, error) {
	var out []models.Geofence
	err := g.track("list", func() error {
		return g.gw.Do(ctx, http.MethodGet, "/geofences", nil, "data", &out)
	}, func() {
		g.replaceAllLocked(out)
	})
	if err != nil {
		return nil, err
	}
	return g.Items(), nil
}

func validateGeofence(d models.GeofenceDraft) error {
	if err := requireFields(field{"name", d.Name}, field{"vehicleId", d.VehicleID}); err != nil {
		return err
	}
	if !primitive.IsValidObjectID(d.VehicleID) {
		return api.Validation("invalid vehicle id %q", d.VehicleID)
	}
	if d.Radius <= 0 {
		return api.Validation("radius must be positive")
	}
	if d.Center.Lat < -90 || d.Center.Lat > 90 || d.Center.Lng < -180 || d.Center.Lng > 180 {
		return api.Validation("center is out of range")
	}
	return nil
}

// Create adds a geofence.
func (g *Geofences) Create(ctx context.Context, d models.GeofenceDraft) (models.Geofence, error) {
	var out models.Geofence
	err := g.track("create", func() error {
		if err := validateGeofence(d); err != nil {
			return err
		}
		return present(&out, g.gw.Do(ctx, http.MethodPost, "/geofences", d, "data", &out))
	}, func() {
		g.upsertLocked(out, Append)
	})
	return out, err
}

// ListAlerts fetches the alert history, newest first.
func (g *Geofences) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert
	err := g.Alerts.track("list", func() error {
		return g.gw.Do(ctx, http.MethodGet, "/geofences/alerts", nil, "data", &out)
	}, func() {
		g.Alerts.replaceAllLocked(out)
	})
	if err != nil {
		return nil, err
	}
	return g.Alerts.Items(), nil
}

// Check reports a vehicle position. Alerts raised by the check are returned and
// put at the top of the alert list.
func (g *Geofences) Check(ctx context.Context, c models.LocationCheck) ([]models.Alert, error) {
	var out []models.Alert
	err := g.Alerts.track("check", func() error {
		if !primitive.IsValidObjectID(c.VehicleID) {
			return api.Validation("invalid vehicle id %q", c.VehicleID)
		}
		return g.gw.Do(ctx, http.MethodPost, "/geofences/check", c, "alerts", &out)
	}, func() {
		for i := len(out) - 1; i >= 0; i-- {
			g.Alerts.upsertLocked(out[i], Prepend)
		}
	})
	return out, err
}

// ClearAlerts empties the local alert list.
func (g *Geofences) ClearAlerts() {
	g.Alerts.Reset()
}

// PollAlerts refreshes the alert list every interval until ctx ends. Failed
// refreshes are recorded in the alert store and polling continues.
func (g *Geofences) PollAlerts(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		g.ListAlerts(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
