package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/fakeapi"
	"github.com/ukydev/fleet-console/internal/models"
	"github.com/ukydev/fleet-console/internal/store"
)

type liveEnv struct {
	srv   *fakeapi.Server
	fx    fakeapi.Fixture
	url   string
	token string
	log   logrus.FieldLogger
}

func newLiveEnv(t *testing.T) *liveEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	srv := fakeapi.New(fakeapi.WithLogger(logger))
	fx, err := srv.Seed(0)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	token, err := srv.Issuer().GenerateToken(fx.Manager)
	require.NoError(t, err)
	return &liveEnv{
		srv:   srv,
		fx:    fx,
		url:   "ws" + strings.TrimPrefix(ts.URL, "http") + "/live",
		token: token,
		log:   logger,
	}
}

func (e *liveEnv) waitSubscribers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.srv.Hub().Subscribers() == n },
		3*time.Second, 10*time.Millisecond)
}

func TestWebSocket_DeliversEvents(t *testing.T) {
	env := newLiveEnv(t)
	c := NewChannel(NewWebSocketTransport(env.url, env.log), env.log)
	trips := store.New[models.Trip]("trips", store.Prepend, env.log)
	Route(c, EventTripUpdated, trips.Apply)

	require.NoError(t, c.Connect(context.Background(), env.token))
	defer c.Disconnect()
	env.waitSubscribers(t, 1)

	env.srv.Hub().Broadcast(fakeapi.EventTripUpdated, models.Trip{ID: "t1", Status: models.TripOngoing})
	assert.Eventually(t, func() bool {
		got, ok := trips.Get("t1")
		return ok && got.Status == models.TripOngoing
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsBadCredential(t *testing.T) {
	env := newLiveEnv(t)
	c := NewChannel(NewWebSocketTransport(env.url, env.log), env.log)

	err := c.Connect(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.False(t, c.Connected())
	assert.Zero(t, env.srv.Hub().Subscribers())
}

func TestWebSocket_Reconnects(t *testing.T) {
	env := newLiveEnv(t)
	c := NewChannel(NewWebSocketTransport(env.url, env.log), env.log)
	activity := store.New[models.ActivityLogEntry]("activity", store.Prepend, env.log)
	Route(c, EventNewActivity, activity.Apply)

	require.NoError(t, c.Connect(context.Background(), env.token))
	defer c.Disconnect()
	env.waitSubscribers(t, 1)

	env.srv.Hub().Close()
	env.waitSubscribers(t, 0)
	env.waitSubscribers(t, 1)

	logged := env.srv.Record(env.fx.Manager.ID, models.ActivityLogEntry{Message: "after reconnect"})
	assert.Eventually(t, func() bool {
		_, ok := activity.Get(logged.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_DisconnectStopsDelivery(t *testing.T) {
	env := newLiveEnv(t)
	c := NewChannel(NewWebSocketTransport(env.url, env.log), env.log)
	vehicles := store.New[models.Vehicle]("vehicles", store.Append, env.log)
	Route(c, EventVehicleUpdated, vehicles.Apply)

	require.NoError(t, c.Connect(context.Background(), env.token))
	env.waitSubscribers(t, 1)
	c.Disconnect()
	env.waitSubscribers(t, 0)

	env.srv.Hub().Broadcast(fakeapi.EventVehicleUpdated, models.Vehicle{ID: "v9"})
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, vehicles.Len())
	assert.Zero(t, env.srv.Hub().Subscribers())
}
