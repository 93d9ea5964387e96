// Package view holds the read-side helpers the console screens share: list
// queries, vehicle availability and the dashboard summary.
package view

import (
	"strings"

	"github.com/ukydev/fleet-console/internal/models"
)

// DefaultPerPage is the page size used when a query sets none.
const DefaultPerPage = 5

// All matches every status.
const All = "all"

// Lens tells a query which fields of T to search and which one is its status.
type Lens[T any] struct {
	Text   func(T) []string
	Status func(T) string
}

// Query is a search, a status filter and a page over a list. Page is 1-based.
type Query[T any] struct {
	Search  string
	Status  string
	Where   func(T) bool
	Page    int
	PerPage int
}

// Page is one page of a query result.
type Page[T any] struct {
	Items []T
	Page  int
	Pages int
	Total int
}

// Filter returns the items matching the search, status and Where of q, in
// their original order.
func (q Query[T]) Filter(items []T, lens Lens[T]) []T {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	var out []T
	for _, item := range items {
		if search != "" && !matches(lens.Text(item), search) {
			continue
		}
		if q.Status != "" && q.Status != All && lens.Status != nil && lens.Status(item) != q.Status {
			continue
		}
		if q.Where != nil && !q.Where(item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Run filters items and cuts out the requested page. Out of range pages are
// clamped to the nearest valid one.
func (q Query[T]) Run(items []T, lens Lens[T]) Page[T] {
	matched := q.Filter(items, lens)
	per := q.PerPage
	if per <= 0 {
		per = DefaultPerPage
	}
	pages := (len(matched) + per - 1) / per
	page := q.Page
	if page > pages {
		page = pages
	}
	if page < 1 {
		page = 1
	}
	start := min((page-1)*per, len(matched))
	end := min(start+per, len(matched))
	return Page[T]{Items: matched[start:end], Page: page, Pages: pages, Total: len(matched)}
}

func matches(fields []string, search string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// VehicleLens searches make, model and plate.
var VehicleLens = Lens[models.Vehicle]{
	Text:   func(v models.Vehicle) []string { return []string{v.Make, v.Model, v.LicensePlate} },
	Status: func(v models.Vehicle) string { return string(v.Status) },
}

// TripLens searches the populated vehicle and driver labels.
var TripLens = Lens[models.Trip]{
	Text: func(t models.Trip) []string {
		return []string{t.Vehicle.Make, t.Vehicle.Model, t.Driver.Username, t.StartLocation, t.EndLocation}
	},
	Status: func(t models.Trip) string { return string(t.Status) },
}

// UserLens searches name and email; the status is the role.
var UserLens = Lens[models.User]{
	Text:   func(u models.User) []string { return []string{u.Name, u.Email} },
	Status: func(u models.User) string { return string(u.Role) },
}

// ActivityLens searches the acting user's name; the status is the entry type.
var ActivityLens = Lens[models.ActivityLogEntry]{
	Text:   func(a models.ActivityLogEntry) []string { return []string{a.User.Name} },
	Status: func(a models.ActivityLogEntry) string { return string(a.Type) },
}

// AssignedTo matches vehicles driven by driverID. All matches every vehicle.
func AssignedTo(driverID string) func(models.Vehicle) bool {
	return func(v models.Vehicle) bool {
		return driverID == "" || driverID == All || v.AssignedDriver.ID == driverID
	}
}
