// Package console wires the session, gateway, resource stores, live channel
// and access gate into one client and drives them through sign-in and
// sign-out.
package console

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/auth"
	"github.com/ukydev/fleet-console/internal/gate"
	"github.com/ukydev/fleet-console/internal/live"
	"github.com/ukydev/fleet-console/internal/models"
	"github.com/ukydev/fleet-console/internal/persist"
	"github.com/ukydev/fleet-console/internal/store"
	"github.com/ukydev/fleet-console/internal/view"
	"golang.org/x/sync/errgroup"
)

const liveConnectTimeout = 10 * time.Second

// Options configures a Console. Timeout bounds every API call and zero disables
// the bound; it is ignored when HTTPClient is set.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Storage    persist.Storage
	Transport  live.Transport
	Routes     []gate.Route
	Logger     logrus.FieldLogger
}

// Console is the client. Its fields are safe for concurrent use.
type Console struct {
	Gateway     *api.Gateway
	Session     *auth.Session
	Users       *store.Users
	Vehicles    *store.Vehicles
	Trips       *store.Trips
	Geofences   *store.Geofences
	Maintenance *store.Maintenance
	Activity    *store.Activity
	Live        *live.Channel
	Gate        *gate.Gate

	storage persist.Storage
	log     logrus.FieldLogger

	mu    sync.Mutex
	owner string
}

// New builds a console. Nothing touches the network or storage until Start.
func New(opts Options) *Console {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	storage := opts.Storage
	if storage == nil {
		storage = persist.NewMemoryStorage()
	}

	gwOpts := []api.Option{api.WithLogger(log), api.WithTimeout(opts.Timeout)}
	if opts.HTTPClient != nil {
		gwOpts = append(gwOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	gw := api.New(opts.BaseURL, gwOpts...)
	session := auth.NewSession(gw, storage, auth.WithLogger(log))

	c := &Console{
		Gateway:     gw,
		Session:     session,
		Users:       store.NewUsers(gw, session, log),
		Vehicles:    store.NewVehicles(gw, log),
		Trips:       store.NewTrips(gw, session, log),
		Geofences:   store.NewGeofences(gw, log),
		Maintenance: store.NewMaintenance(gw, log),
		Activity:    store.NewActivity(gw, log),
		Gate:        gate.New(session, opts.Routes, log),
		storage:     storage,
		log:         log,
	}
	if opts.Transport != nil {
		c.Live = live.NewChannel(opts.Transport, log)
		c.routeLive()
	}
	session.OnChange(c.onSessionChange)
	return c
}

func (c *Console) routeLive() {
	live.Route(c.Live, live.EventTripUpdated, c.Trips.Apply)
	live.Route(c.Live, live.EventVehicleUpdated, c.Vehicles.Apply)
	live.Route(c.Live, live.EventMaintenanceUpdated, c.Maintenance.Apply)
	live.Route(c.Live, live.EventNewActivity, c.Activity.Apply)
	live.Route(c.Live, live.EventUserUpdated, func(u models.User) {
		c.Users.Apply(u)
		c.Session.SyncIdentity(u)
	})
}

func (c *Console) onSessionChange(ch auth.Change) {
	switch ch.Kind {
	case auth.SignedIn:
		if c.claim(ch.User.ID) {
			c.log.WithField("user_id", ch.User.ID).Info("Different user signed in, clearing cached data")
			if c.Live != nil {
				c.Live.Disconnect()
			}
			c.reset()
		}
		c.connectLive()
	case auth.SignedOut:
		if c.Live != nil {
			c.Live.Disconnect()
		}
		c.claim("")
		c.reset()
	}
}

// claim records id as the owner of the cached data and reports whether the
// previous owner was someone else.
func (c *Console) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.owner
	c.owner = id
	return prev != "" && prev != id
}

func (c *Console) connectLive() {
	if c.Live == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), liveConnectTimeout)
	defer cancel()
	if err := c.Live.Connect(ctx, c.Session.Token()); err != nil {
		c.log.WithError(err).Warn("Live updates unavailable")
	}
}

func (c *Console) reset() {
	c.Users.Reset()
	c.Vehicles.Reset()
	c.Trips.Reset()
	c.Geofences.Reset()
	c.Geofences.Alerts.Reset()
	c.Maintenance.Reset()
	c.Activity.Reset()
}

// Start restores the persisted session. A restored identity connects the live
// channel.
func (c *Console) Start(ctx context.Context) error {
	return c.Session.Hydrate(ctx)
}

// Login signs in and connects the live channel.
func (c *Console) Login(ctx context.Context, username, password string) (models.User, error) {
	return c.Session.Login(ctx, username, password)
}

// Logout signs out, closes the live channel and empties every store.
func (c *Console) Logout() {
	c.Session.Logout()
}

// Refresh reloads every resource the signed-in identity may see. The loads run
// concurrently; the first failure is returned after all of them finish.
func (c *Console) Refresh(ctx context.Context) error {
	user, ok := c.Session.Current()
	if !ok {
		return &api.Error{Kind: api.KindUnauthorized, Message: "not signed in"}
	}
	can := func(need models.Capability) bool { return gate.HasCapability(&user, need) }

	var g errgroup.Group
	load := func(need models.Capability, fn func() error) {
		if can(need) {
			g.Go(fn)
		}
	}
	load(models.CapViewUsers, func() error { _, err := c.Users.List(ctx); return err })
	load(models.CapViewVehicles, func() error { _, err := c.Vehicles.List(ctx); return err })
	load(models.CapViewGeofences, func() error { _, err := c.Geofences.List(ctx); return err })
	load(models.CapViewGeofences, func() error { _, err := c.Geofences.ListAlerts(ctx); return err })
	load(models.CapViewMaintenance, func() error { _, err := c.Maintenance.List(ctx); return err })
	load(models.CapViewActivity, func() error { _, err := c.Activity.List(ctx, store.DefaultActivityLimit); return err })
	if can(models.CapViewTrips) || can(models.CapViewOwnTrips) {
		g.Go(func() error { _, err := c.Trips.List(ctx); return err })
	}

	err := g.Wait()
	if err != nil {
		c.log.WithError(err).WithField("user_id", user.ID).Warn("Refresh incomplete")
	}
	return err
}

// Summary computes the dashboard figures from the cached stores.
func (c *Console) Summary() view.Summary {
	return view.Summarize(
		c.Users.Items(),
		c.Vehicles.Items(),
		c.Trips.Items(),
		c.Maintenance.Items(),
		c.Activity.Items(),
		store.DefaultActivityLimit,
	)
}

// AvailableVehicles lists the cached vehicles with no open trip.
func (c *Console) AvailableVehicles() []models.Vehicle {
	return view.AvailableVehicles(c.Vehicles.Items(), c.Trips.Items())
}

// Close disconnects the live channel and releases the session storage. The
// persisted session is kept.
func (c *Console) Close(ctx context.Context) error {
	if c.Live != nil {
		c.Live.Disconnect()
	}
	return c.storage.Close(ctx)
}
