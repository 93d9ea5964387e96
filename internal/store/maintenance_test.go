package store

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
)

func scheduleOilChange(t *testing.T, env *testEnv, m *Maintenance) models.MaintenanceSchedule {
	t.Helper()
	s, err := m.Create(context.Background(), models.MaintenanceDraft{
		VehicleID: env.fx.Vehicles[0].ID,
		Type:      "oil_change",
		DueDate:   time.Now().Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.False(t, s.Completed)
	return s
}

func TestMaintenance_CreateAndPending(t *testing.T) {
	env := newTestEnv(t, "manager")
	m := NewMaintenance(env.gw, env.log)

	s := scheduleOilChange(t, env, m)
	assert.Equal(t, env.fx.Vehicles[0].ID, s.Vehicle.ID)

	list, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, m.Pending(), 1)
}

func TestMaintenance_CompleteTwiceIsNoop(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	m := NewMaintenance(env.gw, env.log)
	s := scheduleOilChange(t, env, m)

	done, err := m.Complete(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)

	again, err := m.Complete(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, again.Completed)

	assert.Equal(t, 1, env.srv.Calls(http.MethodPut, "/api/maintenance/complete/{id}"))
	assert.Empty(t, m.Pending())
	assert.Equal(t, 1, m.Len())
}

func TestMaintenance_ConcurrentCompletion(t *testing.T) {
	env := newTestEnv(t, "manager")
	ctx := context.Background()
	m := NewMaintenance(env.gw, env.log)
	s := scheduleOilChange(t, env, m)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Complete(ctx, s.ID)
		}(i)
	}
	wg.Wait()

	// The later caller shares the request, sees the cached result, or is told
	// by the API that the schedule is already completed.
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, api.ErrNotFound)
		}
	}
	items := m.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].Completed)
}

func TestMaintenance_Validation(t *testing.T) {
	env := newTestEnv(t, "manager")
	m := NewMaintenance(env.gw, env.log)
	vehicleID := env.fx.Vehicles[0].ID
	due := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		draft models.MaintenanceDraft
	}{
		{"missing type", models.MaintenanceDraft{VehicleID: vehicleID, DueDate: due}},
		{"missing vehicle", models.MaintenanceDraft{Type: "inspection", DueDate: due}},
		{"malformed vehicle", models.MaintenanceDraft{VehicleID: "v-1", Type: "inspection", DueDate: due}},
		{"missing due date", models.MaintenanceDraft{VehicleID: vehicleID, Type: "inspection"}},
		{"negative mileage", models.MaintenanceDraft{VehicleID: vehicleID, Type: "inspection", DueDate: due, MileageDue: -10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(context.Background(), tt.draft)
			assert.ErrorIs(t, err, api.ErrValidation)
		})
	}
	assert.Zero(t, env.srv.Calls(http.MethodPost, "/api/maintenance"))
}

func TestMaintenance_CompleteUnknown(t *testing.T) {
	env := newTestEnv(t, "manager")
	m := NewMaintenance(env.gw, env.log)

	_, err := m.Complete(context.Background(), env.fx.Vehicles[0].ID)
	assert.ErrorIs(t, err, api.ErrNotFound)
	assert.Equal(t, StatusFailed, m.Status())
	assert.Zero(t, m.Len())
}
