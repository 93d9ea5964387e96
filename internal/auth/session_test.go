package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
	"github.com/ukydev/fleet-console/internal/persist"
)

var testUser = models.User{
	ID:       "64b7f0c2a1b2c3d4e5f60718",
	Username: "testuser",
	Email:    "test@example.com",
	Role:     models.RoleDriver,
	Profile:  models.Profile{Name: "Test User"},
}

type apiStub struct {
	*httptest.Server
	calls    atomic.Int32
	lastAuth atomic.Value
}

func newAPIStub(t *testing.T, routes map[string]http.HandlerFunc) *apiStub {
	t.Helper()
	stub := &apiStub{}
	stub.lastAuth.Store("")
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		stub.lastAuth.Store(r.Header.Get("Authorization"))
		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(stub.Close)
	return stub
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  testUser.ID,
		"username": testUser.Username,
		"role":     string(testUser.Role),
		"exp":      exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func loginOK(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "password123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, models.AuthResponse{Success: true, Token: token, User: testUser})
	}
}

func TestSession_LoginPersistsAndSurvivesReload(t *testing.T) {
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/login": loginOK("tok-1"),
	})
	storage := persist.NewMemoryStorage()
	s := NewSession(api.New(stub.URL), storage)

	user, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)
	assert.Equal(t, testUser.ID, user.ID)
	assert.Equal(t, "tok-1", s.Token())
	assert.Empty(t, stub.lastAuth.Load())

	callsBefore := stub.calls.Load()
	reloaded := NewSession(api.New(stub.URL), storage)
	require.NoError(t, reloaded.Hydrate(context.Background()))

	current, ok := reloaded.Current()
	require.True(t, ok)
	assert.Equal(t, user, current)
	assert.Equal(t, "tok-1", reloaded.Token())
	assert.Equal(t, callsBefore, stub.calls.Load())
}

func TestSession_LoginFailureLeavesStateUntouched(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    api.Kind
		message string
	}{
		{
			name:    "rejected credentials",
			handler: loginOK("tok"),
			kind:    api.KindUnauthorized,
			message: "Invalid credentials",
		},
		{
			name: "success false in 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Account locked"})
			},
			kind:    api.KindUnauthorized,
			message: "Account locked",
		},
		{
			name: "missing token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": testUser})
			},
			kind:    api.KindUnauthorized,
			message: "Invalid username or password",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			kind: api.KindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newAPIStub(t, map[string]http.HandlerFunc{"POST /users/login": tt.handler})
			storage := persist.NewMemoryStorage()
			s := NewSession(api.New(stub.URL), storage)

			var changes int
			s.OnChange(func(Change) { changes++ })

			_, err := s.Login(context.Background(), "testuser", "wrong-password")
			require.Error(t, err)
			assert.Equal(t, tt.kind, api.KindOf(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, api.Message(err))
			}

			_, ok := s.Current()
			assert.False(t, ok)
			assert.Empty(t, s.Token())
			_, persisted, _ := storage.Get(context.Background(), persist.KeyToken)
			assert.False(t, persisted)
			assert.Zero(t, changes)
		})
	}
}

func TestSession_LoginNetworkFailure(t *testing.T) {
	s := NewSession(api.New("http://127.0.0.1:1", api.WithTimeout(time.Second)), persist.NewMemoryStorage())

	_, err := s.Login(context.Background(), "testuser", "password123")
	assert.ErrorIs(t, err, api.ErrNetwork)
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSession_LoginRejectsEmptyCredentialsLocally(t *testing.T) {
	stub := newAPIStub(t, nil)
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())

	_, err := s.Login(context.Background(), " ", "")
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Zero(t, stub.calls.Load())
}

func TestSession_RegisterIsImplicitLogin(t *testing.T) {
	var got models.RegisterRequest
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/register": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, http.StatusCreated, models.AuthResponse{Success: true, Token: "tok-new", User: testUser})
		},
	})
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())

	var changes []ChangeKind
	s.OnChange(func(c Change) { changes = append(changes, c.Kind) })

	user, err := s.Register(context.Background(), models.RegisterRequest{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
		Profile:  models.Profile{Name: "Test User", Phone: "555"},
	})
	require.NoError(t, err)
	assert.Equal(t, testUser.ID, user.ID)
	assert.Equal(t, "tok-new", s.Token())
	assert.Equal(t, "Test User", got.Name)
	assert.Equal(t, []ChangeKind{SignedIn}, changes)
}

func TestSession_RegisterValidatesBeforeCalling(t *testing.T) {
	stub := newAPIStub(t, nil)
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())

	_, err := s.Register(context.Background(), models.RegisterRequest{
		Username: "ab",
		Email:    "test@example.com",
		Password: "password123",
	})
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Equal(t, "username must be at least 3 characters long", api.Message(err))
	assert.Zero(t, stub.calls.Load())
}

func TestSession_LogoutIsIdempotentAndDropsCredential(t *testing.T) {
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/login": loginOK("tok-1"),
		"GET /vehicles": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"vehicles": []any{}})
		},
	})
	storage := persist.NewMemoryStorage()
	gw := api.New(stub.URL)
	s := NewSession(gw, storage)

	var signedOut int
	s.OnChange(func(c Change) {
		if c.Kind == SignedOut {
			signedOut++
		}
	})

	_, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)

	s.Logout()
	s.Logout()

	assert.Equal(t, 1, signedOut)
	_, ok := s.Current()
	assert.False(t, ok)
	_, persisted, _ := storage.Get(context.Background(), persist.KeyUser)
	assert.False(t, persisted)

	_, err = gw.Request(context.Background(), http.MethodGet, "/vehicles", nil)
	require.NoError(t, err)
	assert.Empty(t, stub.lastAuth.Load())
}

func TestSession_UnauthorizedInvalidatesOnlyCurrentCredential(t *testing.T) {
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/login": loginOK("tok-2"),
		"GET /vehicles": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token expired"})
		},
	})
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())
	_, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)

	s.invalidate("tok-1")
	assert.Equal(t, "tok-2", s.Token())

	_, err = s.gw.Request(context.Background(), http.MethodGet, "/vehicles", nil)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Empty(t, s.Token())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSession_RefreshFailureKeepsCachedIdentity(t *testing.T) {
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/login": loginOK("tok-1"),
		"GET /users/me": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())
	_, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)

	_, err = s.Refresh(context.Background())
	assert.ErrorIs(t, err, api.ErrServer)

	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, testUser.ID, current.ID)
	assert.Equal(t, "tok-1", s.Token())
}

func TestSession_RefreshPicksUpRoleChange(t *testing.T) {
	promoted := testUser
	promoted.Role = models.RoleManager
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/login": loginOK("tok-1"),
		"GET /users/me": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"user": promoted})
		},
	})
	storage := persist.NewMemoryStorage()
	s := NewSession(api.New(stub.URL), storage)
	_, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)

	var updated []models.Role
	s.OnChange(func(c Change) {
		if c.Kind == IdentityUpdated {
			updated = append(updated, c.User.Role)
		}
	})

	user, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, user.Role)
	assert.Equal(t, []models.Role{models.RoleManager}, updated)

	raw, ok, err := storage.Get(context.Background(), persist.KeyUser)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"role":"manager"`)
}

func TestSession_RefreshSignedOut(t *testing.T) {
	stub := newAPIStub(t, nil)
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())

	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Zero(t, stub.calls.Load())
}

func TestSession_UpdateProfile(t *testing.T) {
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/login": loginOK("tok-1"),
		"PUT /users/edit/" + testUser.ID: func(w http.ResponseWriter, r *http.Request) {
			var p models.Profile
			json.NewDecoder(r.Body).Decode(&p)
			u := testUser
			u.Profile = p
			writeJSON(w, http.StatusOK, map[string]any{"user": u})
		},
	})
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())
	_, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)

	user, err := s.UpdateProfile(context.Background(), models.Profile{Name: "Renamed", Address: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", user.Name)

	current, _ := s.Current()
	assert.Equal(t, "1 Main St", current.Address)
}

func TestSession_SyncIdentityIgnoresOtherUsers(t *testing.T) {
	stub := newAPIStub(t, map[string]http.HandlerFunc{"POST /users/login": loginOK("tok-1")})
	s := NewSession(api.New(stub.URL), persist.NewMemoryStorage())
	_, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)

	assert.False(t, s.SyncIdentity(models.User{ID: "someone-else", Username: "x"}))

	renamed := testUser
	renamed.Email = "new@example.com"
	assert.True(t, s.SyncIdentity(renamed))
	current, _ := s.Current()
	assert.Equal(t, "new@example.com", current.Email)
}

func TestSession_Hydrate(t *testing.T) {
	userJSON, err := json.Marshal(testUser)
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		values     map[string]string
		wantSigned bool
	}{
		{name: "empty storage"},
		{
			name:       "valid jwt",
			values:     map[string]string{persist.KeyUser: string(userJSON), persist.KeyToken: signedToken(t, now.Add(time.Hour))},
			wantSigned: true,
		},
		{
			name:       "opaque token",
			values:     map[string]string{persist.KeyUser: string(userJSON), persist.KeyToken: "opaque"},
			wantSigned: true,
		},
		{
			name:   "expired jwt",
			values: map[string]string{persist.KeyUser: string(userJSON), persist.KeyToken: signedToken(t, now.Add(-time.Minute))},
		},
		{
			name:   "token without identity",
			values: map[string]string{persist.KeyToken: "opaque"},
		},
		{
			name:   "corrupt identity",
			values: map[string]string{persist.KeyUser: "{not json", persist.KeyToken: "opaque"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := persist.NewMemoryStorage()
			for k, v := range tt.values {
				require.NoError(t, storage.Set(ctx, k, v))
			}

			s := NewSession(api.New("http://127.0.0.1:1"), storage, WithClock(func() time.Time { return now }))
			var signedIn bool
			s.OnChange(func(c Change) { signedIn = c.Kind == SignedIn })

			require.NoError(t, s.Hydrate(ctx))
			_, ok := s.Current()
			assert.Equal(t, tt.wantSigned, ok)
			assert.Equal(t, tt.wantSigned, signedIn)

			if !tt.wantSigned {
				_, left, _ := storage.Get(ctx, persist.KeyToken)
				assert.False(t, left)
			}
		})
	}
}

type slowDeleteStorage struct {
	persist.Storage
	deleting chan struct{}
	release  chan struct{}
}

func (s *slowDeleteStorage) Delete(ctx context.Context, keys ...string) error {
	close(s.deleting)
	<-s.release
	return s.Storage.Delete(ctx, keys...)
}

func TestSession_LogoutDoesNotBlockReadsDuringStorageDelete(t *testing.T) {
	stub := newAPIStub(t, map[string]http.HandlerFunc{
		"POST /users/login": loginOK("tok-1"),
	})
	storage := &slowDeleteStorage{
		Storage:  persist.NewMemoryStorage(),
		deleting: make(chan struct{}),
		release:  make(chan struct{}),
	}
	s := NewSession(api.New(stub.URL), storage)
	_, err := s.Login(context.Background(), "testuser", "password123")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Logout()
		close(done)
	}()
	<-storage.deleting

	read := make(chan string, 1)
	go func() { read <- s.Token() }()
	select {
	case tok := <-read:
		assert.Empty(t, tok)
	case <-time.After(time.Second):
		t.Fatal("Token blocked on the storage delete")
	}
	_, ok := s.Current()
	assert.False(t, ok)

	close(storage.release)
	<-done
	_, persisted, err := storage.Get(context.Background(), persist.KeyToken)
	require.NoError(t, err)
	assert.False(t, persisted)
}
