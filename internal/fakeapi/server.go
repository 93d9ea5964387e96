// Package fakeapi is an in-memory implementation of the fleet REST API and its
// live event feed. Tests and the simulator run the console against it.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Live event names pushed by the server.
const (
	EventTripUpdated        = "tripUpdated"
	EventVehicleUpdated     = "vehicleUpdated"
	EventMaintenanceUpdated = "maintenanceUpdated"
	EventUserUpdated        = "userUpdated"
	EventNewActivity        = "new_activity"
)

type account struct {
	user         models.User
	passwordHash string
}

// Server serves the REST API under /api and the live feed under /live.
type Server struct {
	issuer *Issuer
	hub    *Hub
	log    logrus.FieldLogger
	router *mux.Router
	now    func() time.Time
	limit  *rateLimiter

	mu          sync.RWMutex
	last        time.Time
	accounts    []*account
	vehicles    []models.Vehicle
	trips       []models.Trip // newest first
	geofences   []models.Geofence
	alerts      []models.Alert // newest first
	maintenance []models.MaintenanceSchedule
	activity    []models.ActivityLogEntry // newest first

	cmu      sync.Mutex
	calls    map[string]int
	failures map[string][]int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.log = l }
}

// WithIssuer replaces the credential issuer.
func WithIssuer(i *Issuer) Option {
	return func(s *Server) { s.issuer = i }
}

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLoginRateLimit throttles login and registration to maxAttempts per
// client IP within window.
func WithLoginRateLimit(maxAttempts int, window time.Duration) Option {
	return func(s *Server) { s.limit = newRateLimiter(maxAttempts, window, func() time.Time { return s.now() }) }
}

// New creates an empty server.
func New(opts ...Option) *Server {
	s := &Server{
		issuer:   NewIssuer("", 0),
		log:      logrus.StandardLogger(),
		now:      time.Now,
		calls:    make(map[string]int),
		failures: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.issuer, s.log)
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the live event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Issuer returns the credential issuer.
func (s *Server) Issuer() *Issuer {
	return s.issuer
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.track)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/live", s.hub)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/users/login", s.limit.wrap(s.login)).Methods(http.MethodPost)
	api.HandleFunc("/users/register", s.limit.wrap(s.register)).Methods(http.MethodPost)

	p := api.NewRoute().Subrouter()
	p.Use(s.authenticate)

	p.HandleFunc("/users/me", s.me).Methods(http.MethodGet)
	p.HandleFunc("/users/getAllUser", s.requireCap(models.CapViewUsers, s.listUsers)).Methods(http.MethodGet)
	p.HandleFunc("/users/create", s.requireCap(models.CapManageUsers, s.createUser)).Methods(http.MethodPost)
	p.HandleFunc("/users/edit/{id}", s.editUser).Methods(http.MethodPut)
	p.HandleFunc("/users/delete/{id}", s.requireCap(models.CapDeleteUser, s.deleteUser)).Methods(http.MethodDelete)

	p.HandleFunc("/vehicles", s.requireCap(models.CapViewVehicles, s.listVehicles)).Methods(http.MethodGet)
	p.HandleFunc("/vehicles", s.requireCap(models.CapManageVehicles, s.createVehicle)).Methods(http.MethodPost)
	p.HandleFunc("/vehicles/create", s.requireCap(models.CapManageVehicles, s.createVehicle)).Methods(http.MethodPost)
	p.HandleFunc("/vehicles/{id}", s.requireCap(models.CapViewVehicles, s.getVehicle)).Methods(http.MethodGet)
	p.HandleFunc("/vehicles/{id}", s.requireCap(models.CapManageVehicles, s.updateVehicle)).Methods(http.MethodPut)
	p.HandleFunc("/vehicles/{id}", s.requireCap(models.CapManageVehicles, s.deleteVehicle)).Methods(http.MethodDelete)

	p.HandleFunc("/trips/create", s.requireCap(models.CapRequestTrip, s.createTrip)).Methods(http.MethodPost)
	p.HandleFunc("/trips/view", s.listTrips("")).Methods(http.MethodGet)
	p.HandleFunc("/trips/view/{scope}", s.listScopedTrips).Methods(http.MethodGet)
	p.HandleFunc("/trips/update/{id}", s.updateTrip).Methods(http.MethodPut)
	p.HandleFunc("/trips/delete/{id}", s.requireCap(models.CapManageTrips, s.deleteTrip)).Methods(http.MethodDelete)

	p.HandleFunc("/geofences", s.requireCap(models.CapViewGeofences, s.listGeofences)).Methods(http.MethodGet)
	p.HandleFunc("/geofences", s.requireCap(models.CapManageGeofences, s.createGeofence)).Methods(http.MethodPost)
	p.HandleFunc("/geofences/alerts", s.requireCap(models.CapViewGeofences, s.listAlerts)).Methods(http.MethodGet)
	p.HandleFunc("/geofences/check", s.requireCap(models.CapViewGeofences, s.checkLocation)).Methods(http.MethodPost)

	p.HandleFunc("/maintenance", s.requireCap(models.CapViewMaintenance, s.listMaintenance)).Methods(http.MethodGet)
	p.HandleFunc("/maintenance", s.requireCap(models.CapManageMaintenance, s.createMaintenance)).Methods(http.MethodPost)
	p.HandleFunc("/maintenance/complete/{id}", s.requireCap(models.CapManageMaintenance, s.completeMaintenance)).Methods(http.MethodPut)

	p.HandleFunc("/activity", s.listActivity).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Calls returns how many requests matched the route template, e.g.
// Calls("PUT", "/api/maintenance/complete/{id}").
func (s *Server) Calls(method, template string) int {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	return s.calls[method+" "+template]
}

// FailNext makes the next request matching the route template answer status.
func (s *Server) FailNext(method, template string, status int) {
	s.cmu.Lock()
	defer s.cmu.Unlock()
	key := method + " " + template
	s.failures[key] = append(s.failures[key], status)
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		if route == nil {
			next.ServeHTTP(w, r)
			return
		}
		tmpl, _ := route.GetPathTemplate()
		key := r.Method + " " + tmpl

		s.cmu.Lock()
		s.calls[key]++
		status := 0
		if queued := s.failures[key]; len(queued) > 0 {
			status = queued[0]
			s.failures[key] = queued[1:]
		}
		s.cmu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// stamp returns a strictly increasing modification time. Callers hold s.mu.
func (s *Server) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type keyed interface {
	Key() string
}

func indexOf[T keyed](items []T, id string) int {
	for i, item := range items {
		if item.Key() == id {
			return i
		}
	}
	return -1
}
