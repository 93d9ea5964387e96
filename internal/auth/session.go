// Package auth holds the Session Store: the single source of truth for who is
// signed in to the console and with which credential.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/models"
	"github.com/ukydev/fleet-console/internal/persist"
)

const storageTimeout = 5 * time.Second

// ChangeKind describes a transition of the current identity.
type ChangeKind int

const (
	SignedIn ChangeKind = iota + 1
	SignedOut
	IdentityUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case IdentityUpdated:
		return "identity_updated"
	default:
		return "unknown"
	}
}

// Change is delivered to listeners after the current identity changes. User is
// the zero value for SignedOut.
type Change struct {
	Kind ChangeKind
	User models.User
}

// Session holds the authenticated identity and its bearer credential.
type Session struct {
	gw      *api.Gateway
	storage persist.Storage
	log     logrus.FieldLogger
	now     func() time.Time

	mu    sync.RWMutex
	user  *models.User
	token string

	// smu orders storage writes. It is taken before mu is released so storage
	// sees changes in memory order, and held for the I/O so mu is not.
	smu sync.Mutex

	lmu       sync.Mutex
	listeners []func(Change)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock replaces the clock used for the expiry check at hydrate.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session persisted in storage and binds it to gw as the
// credential source. A 401 answered to the current credential signs the session
// out.
func NewSession(gw *api.Gateway, storage persist.Storage, opts ...Option) *Session {
	s := &Session{
		gw:      gw,
		storage: storage,
		log:     logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	gw.Bind(s, s.invalidate)
	return s
}

// OnChange registers fn to run after every identity transition.
func (s *Session) OnChange(fn func(Change)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notify(c Change) {
	s.lmu.Lock()
	listeners := append([]func(Change){}, s.listeners...)
	s.lmu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Hydrate reads the persisted identity into memory. It runs once at startup;
// afterwards the session never reads storage again. Incomplete, corrupt or
// expired state is cleared rather than reported.
func (s *Session) Hydrate(ctx context.Context) error {
	rawUser, hasUser, err := s.storage.Get(ctx, persist.KeyUser)
	if err != nil {
		return fmt.Errorf("hydrate session: %w", err)
	}
	token, hasToken, err := s.storage.Get(ctx, persist.KeyToken)
	if err != nil {
		return fmt.Errorf("hydrate session: %w", err)
	}
	if !hasUser && !hasToken {
		return nil
	}

	discard := func(reason string) error {
		s.log.WithField("reason", reason).Warn("Discarding persisted session")
		if err := s.storage.Delete(ctx, persist.KeyUser, persist.KeyToken); err != nil {
			return fmt.Errorf("hydrate session: %w", err)
		}
		return nil
	}
	if !hasUser || !hasToken || token == "" {
		return discard("incomplete")
	}
	var user models.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil || user.ID == "" {
		return discard("corrupt identity")
	}
	if info, err := InspectToken(token); err == nil && info.Expired(s.now()) {
		return discard("expired credential")
	}

	s.mu.Lock()
	s.user = &user
	s.token = token
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("Session restored")
	s.notify(Change{Kind: SignedIn, User: user})
	return nil
}

// Current returns the signed-in identity without touching the network.
func (s *Session) Current() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Token returns the current bearer credential, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login exchanges credentials for an identity. On failure the session is left
// exactly as it was.
func (s *Session) Login(ctx context.Context, username, password string) (models.User, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return models.User{}, err
	}
	body := models.LoginRequest{Username: username, Password: password}
	return s.authenticate(ctx, "/users/login", body, "Invalid username or password")
}

// Register creates an account and signs it in with the credential the API
// returns.
func (s *Session) Register(ctx context.Context, req models.RegisterRequest) (models.User, error) {
	if err := ValidateRegistration(req); err != nil {
		return models.User{}, err
	}
	return s.authenticate(ctx, "/users/register", req, "Registration failed")
}

func (s *Session) authenticate(ctx context.Context, path string, body any, failure string) (models.User, error) {
	raw, err := s.gw.Request(api.Anonymous(ctx), http.MethodPost, path, body)
	if err != nil {
		return models.User{}, err
	}
	var resp models.AuthResponse
	if raw == nil {
		return models.User{}, &api.Error{Kind: api.KindServer, Message: "unexpected response from server"}
	}
	if err := api.Decode(raw, "", &resp); err != nil {
		return models.User{}, err
	}
	if (!resp.Success && resp.Message != "") || resp.Token == "" || resp.User.ID == "" {
		msg := resp.Message
		if msg == "" {
			msg = failure
		}
		return models.User{}, &api.Error{Kind: api.KindUnauthorized, Message: msg, Payload: raw}
	}

	s.establish(resp.User, resp.Token)
	s.log.WithFields(logrus.Fields{"user_id": resp.User.ID, "role": resp.User.Role}).Info("Signed in")
	s.notify(Change{Kind: SignedIn, User: resp.User})
	return resp.User, nil
}

func (s *Session) establish(user models.User, token string) {
	s.mu.Lock()
	s.user = &user
	s.token = token
	s.smu.Lock()
	s.mu.Unlock()
	defer s.smu.Unlock()
	s.persist(user, token)
}

// persist writes the identity to storage; callers hold smu. A storage failure
// leaves the in-memory session valid for this process.
func (s *Session) persist(user models.User, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	data, err := json.Marshal(user)
	if err == nil {
		err = s.storage.Set(ctx, persist.KeyUser, string(data))
	}
	if err == nil && token != "" {
		err = s.storage.Set(ctx, persist.KeyToken, token)
	}
	if err != nil {
		s.log.WithError(err).Warn("Failed to persist session")
	}
}

// Logout clears the identity and its credential from memory and storage. It is
// safe to call repeatedly and never fails; storage errors are logged.
func (s *Session) Logout() {
	s.clear(func(string) bool { return true })
}

// invalidate signs out only if token is still the current credential, so a
// late 401 for an old credential cannot end a newer session.
func (s *Session) invalidate(token string) {
	if s.clear(func(current string) bool { return current != "" && current == token }) {
		s.log.Warn("Credential rejected by API, session cleared")
	}
}

func (s *Session) clear(match func(current string) bool) bool {
	s.mu.Lock()
	if !match(s.token) {
		s.mu.Unlock()
		return false
	}
	had := s.user != nil || s.token != ""
	s.user = nil
	s.token = ""
	s.smu.Lock()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	err := s.storage.Delete(ctx, persist.KeyUser, persist.KeyToken)
	cancel()
	s.smu.Unlock()

	if err != nil {
		s.log.WithError(err).Warn("Failed to clear persisted session")
	}
	if had {
		s.log.Info("Signed out")
		s.notify(Change{Kind: SignedOut})
	}
	return had
}

// Refresh re-fetches the current identity to pick up profile or role changes.
// A failed refresh keeps the cached identity; only a 401 ends the session, and
// that happens in the gateway.
func (s *Session) Refresh(ctx context.Context) (models.User, error) {
	token := s.Token()
	if token == "" {
		return models.User{}, &api.Error{Kind: api.KindUnauthorized, Message: "not signed in"}
	}
	var user models.User
	if err := s.gw.Do(ctx, http.MethodGet, "/users/me", nil, "user", &user); err != nil {
		s.log.WithError(err).Warn("Identity refresh failed, keeping cached identity")
		return models.User{}, err
	}
	if user.ID == "" {
		return models.User{}, &api.Error{Kind: api.KindServer, Message: "unexpected response from server"}
	}
	if !s.replace(user, token) {
		return models.User{}, &api.Error{Kind: api.KindUnauthorized, Message: "session ended during refresh"}
	}
	return user, nil
}

// UpdateProfile edits the signed-in user's profile.
func (s *Session) UpdateProfile(ctx context.Context, profile models.Profile) (models.User, error) {
	current, ok := s.Current()
	if !ok {
		return models.User{}, &api.Error{Kind: api.KindUnauthorized, Message: "not signed in"}
	}
	token := s.Token()
	var user models.User
	if err := s.gw.Do(ctx, http.MethodPut, "/users/edit/"+current.ID, profile, "user", &user); err != nil {
		return models.User{}, err
	}
	if user.ID == "" {
		user = current
		user.Profile = profile
	}
	s.replace(user, token)
	return user, nil
}

// SyncIdentity replaces the cached identity when user is the signed-in user.
// It reports whether the session changed.
func (s *Session) SyncIdentity(user models.User) bool {
	return s.replace(user, s.Token())
}

func (s *Session) replace(user models.User, token string) bool {
	s.mu.Lock()
	if s.user == nil || s.token != token || s.user.ID != user.ID {
		s.mu.Unlock()
		return false
	}
	s.user = &user
	s.smu.Lock()
	s.mu.Unlock()
	s.persist(user, "")
	s.smu.Unlock()

	s.notify(Change{Kind: IdentityUpdated, User: user})
	return true
}
