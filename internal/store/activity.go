package store

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
)

// DefaultActivityLimit is the number of entries shown on the dashboard.
const DefaultActivityLimit = 5

// Activity caches the most recent activity log entries, newest first. Entries
// are produced by the API and never changed here.
type Activity struct {
	*Store[models.ActivityLogEntry]
	gw *api.Gateway
}

// NewActivity creates the activity store.
func NewActivity(gw *api.Gateway, log logrus.FieldLogger) *Activity {
	return &Activity{Store: New[models.ActivityLogEntry]("activity", Prepend, log), gw: gw}
}

// List fetches the latest limit entries. A non-positive limit uses
// DefaultActivityLimit.
func (a *Activity) List(ctx context.Context, limit int) ([]models.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	var out []models.ActivityLogEntry
	err := a.track("list", func() error {
		return a.gw.Do(ctx, http.MethodGet, fmt.Sprintf("/activity?limit=%d", limit), nil, "logs", &out)
	}, func() {
		a.replaceAllLocked(out)
	})
	if err != nil {
		return nil, err
	}
	return a.Items(), nil
}
