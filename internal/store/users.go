package store

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/auth"
	"github.com/ukydev/fleet-console/internal/models"
)

// Identity is the part of the Session Store the user store keeps in step with
// edits of the signed-in account.
type Identity interface {
	Current() (models.User, bool)
	SyncIdentity(models.User) bool
	Logout()
}

// Users caches the accounts visible to managers.
type Users struct {
	*Store[models.User]
	gw       *api.Gateway
	identity Identity
}

// NewUsers creates the user store. identity may be nil.
func NewUsers(gw *api.Gateway, identity Identity, log logrus.FieldLogger) *Users {
	return &Users{Store: New[models.User]("users", Append, log), gw: gw, identity: identity}
}

// List fetches every account.
func (u *Users) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := u.track("list", func() error {
		return u.gw.Do(ctx, http.MethodGet, "/users/getAllUser", nil, "users", &out)
	}, func() {
		u.replaceAllLocked(out)
	})
	if err != nil {
		return nil, err
	}
	return u.Items(), nil
}

func validateUserDraft(d models.UserDraft) error {
	if d.Username != "" {
		if err := auth.ValidateUsername(d.Username); err != nil {
			return err
		}
	}
	if err := auth.ValidateEmail(d.Email); err != nil {
		return err
	}
	if err := auth.ValidatePassword(d.Password); err != nil {
		return err
	}
	if d.Role != "" && !models.IsValidRole(d.Role) {
		return api.Validation("invalid role %q", d.Role)
	}
	return nil
}

// Create adds an account, typically a driver.
func (u *Users) Create(ctx context.Context, d models.UserDraft) (models.User, error) {
	var out models.User
	err := u.track("create", func() error {
		if err := validateUserDraft(d); err != nil {
			return err
		}
		return present(&out, u.gw.Do(ctx, http.MethodPost, "/users/create", d, "user", &out))
	}, func() {
		u.upsertLocked(out, Append)
	})
	return out, err
}

func validateUserPatch(p models.UserPatch) error {
	if p.Username != nil {
		if err := auth.ValidateUsername(*p.Username); err != nil {
			return err
		}
	}
	if p.Email != nil {
		if err := auth.ValidateEmail(*p.Email); err != nil {
			return err
		}
	}
	if p.Password != nil {
		if err := auth.ValidatePassword(*p.Password); err != nil {
			return err
		}
	}
	if p.Role != nil && !models.IsValidRole(*p.Role) {
		return api.Validation("invalid role %q", *p.Role)
	}
	return nil
}

// Update edits an account. Editing the signed-in account also refreshes the
// session's identity.
func (u *Users) Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	var out models.User
	err := u.track("update", func() error {
		if err := checkID("user", id); err != nil {
			return err
		}
		if err := validateUserPatch(patch); err != nil {
			return err
		}
		return present(&out, u.gw.Do(ctx, http.MethodPut, "/users/edit/"+id, patch, "user", &out))
	}, func() {
		u.upsertLocked(out, Append)
	})
	if err != nil {
		return models.User{}, err
	}
	if u.identity != nil {
		u.identity.SyncIdentity(out)
	}
	return out, nil
}

// Remove deletes an account. Deleting the signed-in account ends the session.
func (u *Users) Remove(ctx context.Context, id string) (string, error) {
	err := u.track("remove", func() error {
		if err := checkID("user", id); err != nil {
			return err
		}
		_, err := u.gw.Request(ctx, http.MethodDelete, "/users/delete/"+id, nil)
		return err
	}, func() {
		u.removeLocked(id)
	})
	if err != nil {
		return "", err
	}
	if u.identity != nil {
		if me, ok := u.identity.Current(); ok && me.ID == id {
			u.identity.Logout()
		}
	}
	return id, nil
}

// Drivers returns the cached accounts with the driver role.
func (u *Users) Drivers() []models.User {
	var out []models.User
	for _, user := range u.Items() {
		if user.Role == models.RoleDriver {
			out = append(out, user)
		}
	}
	return out
}
