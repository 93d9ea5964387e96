package gate

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-console/internal/models"
)

type fakeIdentity struct {
	mu   sync.Mutex
	user *models.User
}

func (f *fakeIdentity) Current() (models.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return models.User{}, false
	}
	return *f.user, true
}

func (f *fakeIdentity) set(role models.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role == "" {
		f.user = nil
		return
	}
	f.user = &models.User{ID: "u1", Username: "someone", Role: role}
}

func TestEvaluate(t *testing.T) {
	driver := &models.User{Role: models.RoleDriver}
	admin := &models.User{Role: models.RoleAdmin}

	tests := []struct {
		name     string
		allowed  []models.Role
		identity *models.User
		want     State
	}{
		{"empty allow-list admits any role", nil, driver, AuthenticatedAllowed},
		{"role listed", []models.Role{models.RoleAdmin, models.RoleDriver}, driver, AuthenticatedAllowed},
		{"role not listed", []models.Role{models.RoleAdmin}, driver, AuthenticatedDenied},
		{"admin is not implicit", []models.Role{models.RoleDriver}, admin, AuthenticatedDenied},
		{"no identity", []models.Role{models.RoleAdmin}, nil, Unauthenticated},
		{"no identity and empty allow-list", nil, nil, Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.allowed, tt.identity))
		})
	}
}

func TestEvaluate_EmptyAllowListEveryRole(t *testing.T) {
	for _, role := range []models.Role{models.RoleAdmin, models.RoleManager, models.RoleDriver, models.RoleUser} {
		assert.Equal(t, AuthenticatedAllowed, Evaluate(nil, &models.User{Role: role}), role)
	}
}

func TestHasCapability(t *testing.T) {
	assert.True(t, HasCapability(&models.User{Role: models.RoleManager}, models.CapManageVehicles))
	assert.False(t, HasCapability(&models.User{Role: models.RoleDriver}, models.CapManageVehicles))
	assert.True(t, HasCapability(&models.User{Role: models.RoleDriver}, models.CapActOnTrip))
	assert.False(t, HasCapability(nil, models.CapViewDashboard))
}

func TestGate_Navigate(t *testing.T) {
	logger, _ := test.NewNullLogger()
	id := &fakeIdentity{}
	g := New(id, nil, logger)

	tests := []struct {
		name     string
		role     models.Role
		path     string
		state    State
		redirect string
	}{
		{"signed out goes to login", "", "/view-vehicles", Unauthenticated, LoginPath},
		{"login is public", "", "/login", Unauthenticated, ""},
		{"register is public", "", "/register", Unauthenticated, ""},
		{"dashboard for users", models.RoleUser, "/", AuthenticatedAllowed, ""},
		{"driver sees vehicles", models.RoleDriver, "/view-vehicles", AuthenticatedAllowed, ""},
		{"driver cannot add vehicles", models.RoleDriver, "/add-vehicle", AuthenticatedDenied, UnauthorizedPath},
		{"user trip list is user only", models.RoleAdmin, "/view-trips/user", AuthenticatedDenied, UnauthorizedPath},
		{"manager reads activity", models.RoleManager, "/activity-log", AuthenticatedAllowed, ""},
		{"driver cannot read activity", models.RoleDriver, "/activity-log", AuthenticatedDenied, UnauthorizedPath},
		{"user cannot view the profile screen", models.RoleUser, "/profile", AuthenticatedDenied, UnauthorizedPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id.set(tt.role)
			d, err := g.Navigate(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.state, d.State)
			assert.Equal(t, tt.redirect, d.Redirect)
			assert.Equal(t, tt.redirect == "", d.Allowed())
		})
	}
}

func TestGate_NavigateParams(t *testing.T) {
	logger, _ := test.NewNullLogger()
	id := &fakeIdentity{}
	id.set(models.RoleManager)
	g := New(id, nil, logger)

	d, err := g.Navigate("/edit-vehicle/64b7f0c2e4b0a1a2b3c4d5e6")
	require.NoError(t, err)
	assert.Equal(t, "/edit-vehicle/{id}", d.Route.Path)
	assert.Equal(t, "64b7f0c2e4b0a1a2b3c4d5e6", d.Params["id"])

	_, err = g.Navigate("/no-such-screen")
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestGate_ReevaluatesAfterRoleChange(t *testing.T) {
	logger, _ := test.NewNullLogger()
	id := &fakeIdentity{}
	id.set(models.RoleDriver)
	g := New(id, nil, logger)

	d, err := g.Navigate("/view-users")
	require.NoError(t, err)
	assert.Equal(t, AuthenticatedDenied, d.State)

	id.set(models.RoleManager)
	d, err = g.Navigate("/view-users")
	require.NoError(t, err)
	assert.Equal(t, AuthenticatedAllowed, d.State)
	assert.True(t, g.Can(models.CapManageUsers))

	id.set("")
	assert.False(t, g.Can(models.CapViewDashboard))
}

func TestGate_CustomRoutes(t *testing.T) {
	logger, _ := test.NewNullLogger()
	id := &fakeIdentity{}
	id.set(models.RoleDriver)
	g := New(id, []Route{{Path: "/reports"}}, logger)

	d, err := g.Navigate("/reports")
	require.NoError(t, err)
	assert.True(t, d.Allowed())

	_, err = g.Navigate("/login")
	assert.ErrorIs(t, err, ErrUnknownRoute)
}
