// Package gate implements the Access Gate: the per-navigation check of the
// session identity against a route's allowed roles.
//
// The gate only shapes what the console offers. The API authorizes every call
// on its own.
package gate

import (
	"errors"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/models"
)

// State is the outcome of evaluating one navigation.
type State int

const (
	Unauthenticated State = iota
	AuthenticatedAllowed
	AuthenticatedDenied
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AuthenticatedAllowed:
		return "allowed"
	case AuthenticatedDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Redirect targets.
const (
	LoginPath        = "/login"
	RegisterPath     = "/register"
	UnauthorizedPath = "/unauthorized"
)

// ErrUnknownRoute is returned for paths no route matches.
var ErrUnknownRoute = errors.New("gate: unknown route")

// Evaluate decides a navigation for identity. An empty allow-list admits every
// signed-in role.
func Evaluate(allowed []models.Role, identity *models.User) State {
	if identity == nil {
		return Unauthenticated
	}
	if len(allowed) == 0 || slices.Contains(allowed, identity.Role) {
		return AuthenticatedAllowed
	}
	return AuthenticatedDenied
}

// HasCapability reports whether identity may perform c. It is the one role
// predicate shared by route guards and views.
func HasCapability(identity *models.User, c models.Capability) bool {
	return identity.HasPermission(c)
}

// Route is a console screen. Paths use {name} placeholders.
type Route struct {
	Path   string
	Roles  []models.Role
	Public bool
}

var (
	staff     = []models.Role{models.RoleAdmin, models.RoleManager}
	fleetSide = []models.Role{models.RoleAdmin, models.RoleManager, models.RoleDriver}
)

// Routes is the console's route table.
var Routes = []Route{
	{Path: LoginPath, Public: true},
	{Path: RegisterPath, Public: true},
	{Path: "/", Roles: []models.Role{models.RoleAdmin, models.RoleDriver, models.RoleManager, models.RoleUser}},
	{Path: "/profile", Roles: []models.Role{models.RoleAdmin, models.RoleDriver, models.RoleManager}},
	{Path: "/add-trip", Roles: []models.Role{models.RoleAdmin, models.RoleManager, models.RoleUser}},
	{Path: "/view-trips", Roles: fleetSide},
	{Path: "/view-trips/user", Roles: []models.Role{models.RoleUser}},
	{Path: "/add-driver", Roles: staff},
	{Path: "/view-users", Roles: staff},
	{Path: "/edit-users/{id}", Roles: staff},
	{Path: "/add-vehicle", Roles: staff},
	{Path: "/view-vehicles", Roles: fleetSide},
	{Path: "/view-vehicles/{id}", Roles: fleetSide},
	{Path: "/edit-vehicle/{id}", Roles: staff},
	{Path: "/assign-driver/{id}", Roles: staff},
	{Path: "/geo-fence", Roles: fleetSide},
	{Path: "/add-geo-fence", Roles: fleetSide},
	{Path: "/maintenance", Roles: fleetSide},
	{Path: "/activity-log", Roles: staff},
	{Path: UnauthorizedPath},
}

// Identity supplies the signed-in user.
type Identity interface {
	Current() (models.User, bool)
}

// Decision is the result of a navigation. Redirect is empty when the route
// may render.
type Decision struct {
	Route    Route
	State    State
	Redirect string
	Params   map[string]string
}

// Allowed reports whether the route may render.
func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// Gate matches paths against a route table and evaluates them for the
// current identity.
type Gate struct {
	identity Identity
	router   *mux.Router
	routes   map[string]Route
	log      logrus.FieldLogger
}

// New creates a gate over routes. A nil routes uses Routes.
func New(identity Identity, routes []Route, log logrus.FieldLogger) *Gate {
	if routes == nil {
		routes = Routes
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	g := &Gate{
		identity: identity,
		router:   mux.NewRouter(),
		routes:   make(map[string]Route, len(routes)),
		log:      log.WithField("component", "gate"),
	}
	for _, r := range routes {
		g.router.Path(r.Path).Name(r.Path)
		g.routes[r.Path] = r
	}
	return g
}

// Navigate evaluates path for the identity current at the time of the call.
// Results are never cached, so a role change shows on the next navigation.
func (g *Gate) Navigate(path string) (Decision, error) {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}
	var match mux.RouteMatch
	if !g.router.Match(req, &match) || match.Route == nil {
		return Decision{}, ErrUnknownRoute
	}
	route := g.routes[match.Route.GetName()]
	d := Decision{Route: route, Params: match.Vars}

	user, ok := g.identity.Current()
	if route.Public {
		d.State = AuthenticatedAllowed
		if !ok {
			d.State = Unauthenticated
		}
		return d, nil
	}

	var identity *models.User
	if ok {
		identity = &user
	}
	d.State = Evaluate(route.Roles, identity)
	switch d.State {
	case Unauthenticated:
		d.Redirect = LoginPath
	case AuthenticatedDenied:
		d.Redirect = UnauthorizedPath
		g.log.WithFields(logrus.Fields{"path": path, "role": user.Role}).Debug("Navigation denied")
	}
	return d, nil
}

// Can reports whether the current identity has capability c.
func (g *Gate) Can(c models.Capability) bool {
	user, ok := g.identity.Current()
	if !ok {
		return false
	}
	return HasCapability(&user, c)
}
