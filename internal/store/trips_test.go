package store

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
)

func draftFor(vehicleID string) models.TripDraft {
	return models.TripDraft{
		VehicleID:     vehicleID,
		StartLocation: "Depot A",
		EndLocation:   "Harbour",
		StartTime:     time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		TripType:      "delivery",
	}
}

func TestTrips_ListPath(t *testing.T) {
	tests := []struct {
		role models.Role
		want string
	}{
		{models.RoleAdmin, "/trips/view/all"},
		{models.RoleManager, "/trips/view/all"},
		{models.RoleDriver, "/trips/view/driver"},
		{models.RoleUser, "/trips/view/user"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, listPath(tt.role))
		})
	}
}

func TestTrips_RequestAssignAndDriverView(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	userGW, userSession := env.signIn(t, "user")
	requester := NewTrips(userGW, userSession, env.log)
	manager := NewTrips(env.gw, env.session, env.log)

	requested, err := requester.Create(ctx, draftFor(env.fx.Vehicles[0].ID))
	require.NoError(t, err)
	assert.Equal(t, models.TripPending, requested.Status)
	assert.Equal(t, env.fx.User.ID, requested.RequestedBy.ID)
	assert.Equal(t, 1, requester.Len())

	_, err = manager.List(ctx)
	require.NoError(t, err)
	assigned, err := manager.Assign(ctx, requested.ID, env.fx.Driver.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripAssigned, assigned.Status)
	assert.Equal(t, env.fx.Driver.ID, assigned.Driver.ID)
	assert.Equal(t, "Dana Driver", assigned.Driver.Name)

	items := manager.Items()
	require.Len(t, items, 1)
	assert.Equal(t, models.TripAssigned, items[0].Status)
	assert.Equal(t, env.fx.Driver.ID, items[0].Driver.ID)

	driverGW, driverSession := env.signIn(t, "driver")
	driver := NewTrips(driverGW, driverSession, env.log)
	list, err := driver.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, requested.ID, list[0].ID)

	started, err := driver.Act(ctx, requested.ID, models.TripActionStart)
	require.NoError(t, err)
	assert.Equal(t, models.TripOngoing, started.Status)

	completed, err := driver.Act(ctx, requested.ID, models.TripActionComplete)
	require.NoError(t, err)
	assert.Equal(t, models.TripCompleted, completed.Status)
	require.NotNil(t, completed.EndTime)
	assert.Equal(t, 1, driver.Len())
}

func TestTrips_CreatePrepends(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	trips := NewTrips(env.gw, env.session, env.log)

	first, err := trips.Create(ctx, draftFor(env.fx.Vehicles[0].ID))
	require.NoError(t, err)
	second, err := trips.Create(ctx, draftFor(env.fx.Vehicles[1].ID))
	require.NoError(t, err)

	assert.Equal(t, []string{second.ID, first.ID}, ids(trips.Items()))
}

func TestTrips_VehicleWithOpenTrip(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	trips := NewTrips(env.gw, env.session, env.log)

	_, err := trips.Create(ctx, draftFor(env.fx.Vehicles[0].ID))
	require.NoError(t, err)
	_, err = trips.Create(ctx, draftFor(env.fx.Vehicles[0].ID))
	assert.ErrorIs(t, err, api.ErrConflict)
	assert.Equal(t, 1, trips.Len())
}

func TestTrips_Validation(t *testing.T) {
	env := newTestEnv(t, "manager")
	trips := NewTrips(env.gw, env.session, env.log)
	vehicleID := env.fx.Vehicles[0].ID
	before := time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC)
	negative := -4.0

	tests := []struct {
		name   string
		mutate func(*models.TripDraft)
	}{
		{"missing start location", func(d *models.TripDraft) { d.StartLocation = "" }},
		{"missing trip type", func(d *models.TripDraft) { d.TripType = " " }},
		{"malformed vehicle", func(d *models.TripDraft) { d.VehicleID = "truck-1" }},
		{"missing start time", func(d *models.TripDraft) { d.StartTime = time.Time{} }},
		{"end before start", func(d *models.TripDraft) { d.EndTime = &before }},
		{"negative distance", func(d *models.TripDraft) { d.Distance = &negative }},
		{"created ongoing", func(d *models.TripDraft) { d.Status = models.TripOngoing }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draftFor(vehicleID)
			tt.mutate(&d)
			_, err := trips.Create(context.Background(), d)
			assert.ErrorIs(t, err, api.ErrValidation)
		})
	}
	assert.Zero(t, env.srv.Calls(http.MethodPost, "/api/trips/create"))
	assert.Zero(t, trips.Len())
}

func TestTrips_EditChecksCachedStart(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	trips := NewTrips(env.gw, env.session, env.log)

	trip, err := trips.Create(ctx, draftFor(env.fx.Vehicles[0].ID))
	require.NoError(t, err)

	early := trip.StartTime.Add(-time.Hour)
	_, err = trips.Edit(ctx, trip.ID, models.TripUpdates{EndTime: &early})
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Zero(t, env.srv.Calls(http.MethodPut, "/api/trips/update/{id}"))

	purpose := "Restock"
	edited, err := trips.Edit(ctx, trip.ID, models.TripUpdates{Purpose: &purpose})
	require.NoError(t, err)
	assert.Equal(t, "Restock", edited.Purpose)
}

func TestTrips_CancelAndRemove(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	trips := NewTrips(env.gw, env.session, env.log)

	trip, err := trips.Create(ctx, draftFor(env.fx.Vehicles[0].ID))
	require.NoError(t, err)

	canceled, err := trips.Cancel(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TripCanceled, canceled.Status)

	_, err = trips.Act(ctx, trip.ID, models.TripActionStart)
	assert.ErrorIs(t, err, api.ErrConflict)
	cached, _ := trips.Get(trip.ID)
	assert.Equal(t, models.TripCanceled, cached.Status)

	_, err = trips.Act(ctx, trip.ID, "teleport")
	assert.ErrorIs(t, err, api.ErrValidation)

	_, err = trips.Remove(ctx, trip.ID)
	require.NoError(t, err)
	assert.Zero(t, trips.Len())
}

func TestTrips_ListSignedOut(t *testing.T) {
	env := newTestEnv(t, "")
	trips := NewTrips(env.gw, env.session, env.log)

	_, err := trips.List(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, StatusFailed, trips.Status())
	_, sent := env.authSent(http.MethodGet, "/trips/view/all")
	assert.False(t, sent)
}

func TestTrips_AfterLogoutRequestsCarryNoCredential(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	trips := NewTrips(env.gw, env.session, env.log)

	trip, err := trips.Create(ctx, draftFor(env.fx.Vehicles[0].ID))
	require.NoError(t, err)
	header, _ := env.authSent(http.MethodPost, "/trips/create")
	assert.Contains(t, header, "Bearer ")

	env.session.Logout()

	_, err = trips.Assign(ctx, trip.ID, env.fx.Driver.ID)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	header, sent := env.authSent(http.MethodPut, "/trips/update/"+trip.ID)
	require.True(t, sent)
	assert.Empty(t, header)

	cached, _ := trips.Get(trip.ID)
	assert.Equal(t, models.TripPending, cached.Status)
}

func TestDecodeCreated(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"staff envelope", `{"trip":{"_id":"a1"}}`, "a1"},
		{"requester envelope", `{"userTrips":{"_id":"b2"}}`, "b2"},
		{"requester list", `{"userTrips":[{"_id":"c3"},{"_id":"c4"}]}`, "c3"},
		{"bare trip", `{"_id":"d4"}`, "d4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out models.Trip
			require.NoError(t, decodeCreated([]byte(tt.body), &out))
			assert.Equal(t, tt.want, out.ID)
		})
	}
}
