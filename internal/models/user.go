package models

import (
	"time"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleDriver  Role = "driver"
	RoleUser    Role = "user"
)

// Capability names an action a role may perform.
type Capability string

const (
	CapViewDashboard     Capability = "view_dashboard"
	CapEditProfile       Capability = "edit_profile"
	CapViewUsers         Capability = "view_users"
	CapManageUsers       Capability = "manage_users"
	CapDeleteUser        Capability = "delete_user"
	CapViewVehicles      Capability = "view_vehicles"
	CapManageVehicles    Capability = "manage_vehicles"
	CapAssignDriver      Capability = "assign_driver"
	CapRequestTrip       Capability = "request_trip"
	CapViewTrips         Capability = "view_trips"
	CapViewOwnTrips      Capability = "view_own_trips"
	CapManageTrips       Capability = "manage_trips"
	CapActOnTrip         Capability = "act_on_trip"
	CapViewGeofences     Capability = "view_geofences"
	CapManageGeofences   Capability = "manage_geofences"
	CapViewMaintenance   Capability = "view_maintenance"
	CapManageMaintenance Capability = "manage_maintenance"
	CapViewActivity      Capability = "view_activity"
)

// Profile holds the personal details attached to a user.
type Profile struct {
	Name             string `bson:"name" json:"name"`
	Phone            string `bson:"phone,omitempty" json:"phone,omitempty"`
	Address          string `bson:"address,omitempty" json:"address,omitempty"`
	LicenseNumber    string `bson:"licenseNumber,omitempty" json:"licenseNumber,omitempty"`
	EmergencyContact string `bson:"emergencyContact,omitempty" json:"emergencyContact,omitempty"`
}

// User represents a user in the system. The authenticated identity of a session
// is a User.
type User struct {
	ID       string `bson:"_id,omitempty" json:"_id,omitempty"`
	Username string `bson:"username" json:"username"`
	Email    string `bson:"email" json:"email"`
	Role     Role   `bson:"role" json:"role"`
	Profile  `bson:",inline"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Key returns the user id.
func (u User) Key() string { return u.ID }

// Version returns the server-assigned modification time.
func (u User) Version() time.Time { return u.UpdatedAt }

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Profile
}

// UserDraft is the body of an administrative user creation.
type UserDraft struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	Profile
}

// AuthResponse is the body returned by login and registration.
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleDriver, RoleUser:
		return true
	default:
		return false
	}
}

var driverCapabilities = map[Capability]bool{
	CapViewDashboard:   true,
	CapEditProfile:     true,
	CapViewVehicles:    true,
	CapViewTrips:       true,
	CapActOnTrip:       true,
	CapViewGeofences:   true,
	CapManageGeofences: true,
	CapViewMaintenance: true,
}

var userCapabilities = map[Capability]bool{
	CapViewDashboard: true,
	CapRequestTrip:   true,
	CapViewOwnTrips:  true,
}

// Can checks if a role has a capability.
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleManager:
		return c != CapDeleteUser && c != CapViewOwnTrips
	case RoleDriver:
		return driverCapabilities[c]
	case RoleUser:
		return userCapabilities[c]
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific capability
func (u *User) HasPermission(c Capability) bool {
	if u == nil {
		return false
	}
	return u.Role.Can(c)
}

// UserPatch holds the editable fields of a user. Nil fields are left unchanged.
type UserPatch struct {
	Username         *string `json:"username,omitempty"`
	Email            *string `json:"email,omitempty"`
	Password         *string `json:"password,omitempty"`
	Role             *Role   `json:"role,omitempty"`
	Name             *string `json:"name,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	Address          *string `json:"address,omitempty"`
	LicenseNumber    *string `json:"licenseNumber,omitempty"`
	EmergencyContact *string `json:"emergencyContact,omitempty"`
}
