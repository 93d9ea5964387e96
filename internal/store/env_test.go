package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/auth"
	"github.com/ukydev/fleet-console/internal/fakeapi"
	"github.com/ukydev/fleet-console/internal/persist"
)

type testEnv struct {
	srv     *fakeapi.Server
	fx      fakeapi.Fixture
	gw      *api.Gateway
	session *auth.Session
	log     logrus.FieldLogger
	baseURL string

	mu       sync.Mutex
	lastAuth map[string]string
}

// newTestEnv starts a seeded fake API and signs in as username. An empty
// username leaves the session signed out.
func newTestEnv(t *testing.T, username string) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	env := &testEnv{
		srv:      fakeapi.New(fakeapi.WithLogger(logger)),
		log:      logger,
		lastAuth: make(map[string]string),
	}
	fx, err := env.srv.Seed(0)
	require.NoError(t, err)
	env.fx = fx

	handler := env.srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.lastAuth[r.Method+" "+r.URL.Path] = r.Header.Get("Authorization")
		env.mu.Unlock()
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	env.baseURL = ts.URL + "/api"
	env.gw, env.session = env.signIn(t, username)
	return env
}

// signIn opens another session against the same server. An empty username
// leaves it signed out.
func (e *testEnv) signIn(t *testing.T, username string) (*api.Gateway, *auth.Session) {
	t.Helper()
	gw := api.New(e.baseURL, api.WithLogger(e.log))
	session := auth.NewSession(gw, persist.NewMemoryStorage(), auth.WithLogger(e.log))
	if username != "" {
		_, err := session.Login(context.Background(), username, fakeapi.DemoPassword)
		require.NoError(t, err)
	}
	return gw, session
}

// authSent returns the Authorization header of the last request to path and
// whether such a request was made.
func (e *testEnv) authSent(method, path string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.lastAuth[method+" /api"+path]
	return v, ok
}
