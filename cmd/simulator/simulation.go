package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/console"
	"github.com/ukydev/fleet-console/internal/fakeapi"
	"github.com/ukydev/fleet-console/internal/models"
)

const (
	fenceRadiusM   = 3000
	roamRadiusM    = 3500
	mileageEvery   = 5
	tripLengthTick = 4
)

type city struct {
	Name string
	models.Location
}

// Depots for the demo fleet
var cities = []city{
	{"London", models.Location{Lat: 51.5074, Lng: -0.1278}},
	{"New York", models.Location{Lat: 40.7128, Lng: -74.0060}},
	{"Madrid", models.Location{Lat: 40.4168, Lng: -3.7038}},
	{"Nicosia", models.Location{Lat: 35.1856, Lng: 33.3823}},
	{"Bogotá", models.Location{Lat: 4.7110, Lng: -74.0721}},
	{"Paris", models.Location{Lat: 48.8566, Lng: 2.3522}},
	{"Istanbul", models.Location{Lat: 41.0082, Lng: 28.9784}},
	{"Cardiff", models.Location{Lat: 51.4816, Lng: -3.1791}},
	{"Berlin", models.Location{Lat: 52.5200, Lng: 13.4050}},
	{"Tokyo", models.Location{Lat: 35.6762, Lng: 139.6503}},
	{"Sydney", models.Location{Lat: -33.8688, Lng: 151.2093}},
	{"Toronto", models.Location{Lat: 43.6532, Lng: -79.3832}},
}

func jitterLocation(base models.Location, meters float64) models.Location {
	latMetersPerDeg := 111320.0
	lngMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLng := (rand.Float64()*2 - 1) * (meters / lngMetersPerDeg)
	return models.Location{Lat: base.Lat + dLat, Lng: base.Lng + dLng}
}

func lerp(a, b models.Location, t float64) models.Location {
	return models.Location{Lat: a.Lat + (b.Lat-a.Lat)*t, Lng: a.Lng + (b.Lng-a.Lng)*t}
}

// --- Routing & movement ---

type VehicleRoute struct {
	Points    []models.Location
	SegIndex  int
	SegOffset float64 // km along current segment
}

type VehicleState struct {
	VehicleID string
	Plate     string
	Depot     city
	Position  models.Location
	SpeedKmh  float64
	Mileage   float64
	Route     *VehicleRoute
	ticks     int
}

// planNewRoute heads for a random point around the depot, sometimes beyond
// the geofence.
func planNewRoute(s *VehicleState) {
	end := jitterLocation(s.Depot.Location, roamRadiusM)
	mid := jitterLocation(lerp(s.Position, end, 0.5), 300)
	s.Route = &VehicleRoute{Points: []models.Location{s.Position, mid, end}}
}

func stepAlongRoute(s *VehicleState, tickSec float64) float64 {
	if s.Route == nil || len(s.Route.Points) < 2 {
		planNewRoute(s)
	}
	total := s.SpeedKmh * (tickSec / 3600.0)
	remKm := total
	for remKm > 0 && s.Route.SegIndex < len(s.Route.Points)-1 {
		a := s.Route.Points[s.Route.SegIndex]
		b := s.Route.Points[s.Route.SegIndex+1]
		segLen := fakeapi.HaversineKm(a, b)
		leftOnSeg := segLen - s.Route.SegOffset
		if remKm >= leftOnSeg {
			s.Position = b
			s.Route.SegIndex++
			s.Route.SegOffset = 0
			remKm -= leftOnSeg
			continue
		}
		t := math.Min(math.Max((s.Route.SegOffset+remKm)/segLen, 0), 1)
		s.Position = lerp(a, b, t)
		s.Route.SegOffset += remKm
		remKm = 0
	}
	if s.Route.SegIndex >= len(s.Route.Points)-1 {
		planNewRoute(s)
	}
	return total - remKm
}

// Simulation drives the fake API the way a manager and a driver would, through
// the same stores the console uses.
type Simulation struct {
	manager  *console.Console
	driver   *console.Console
	driverID string
	states   []*VehicleState
	onTrip   int
	log      log.FieldLogger
}

func signIn(ctx context.Context, baseURL, username string, logger log.FieldLogger) (*console.Console, models.User, error) {
	c := console.New(console.Options{BaseURL: baseURL, Timeout: 10 * time.Second, Logger: logger})
	user, err := c.Login(ctx, username, fakeapi.DemoPassword)
	if err != nil {
		return nil, models.User{}, fmt.Errorf("sign in as %s: %w", username, err)
	}
	return c, user, nil
}

func newSimulation(ctx context.Context, baseURL string, logger log.FieldLogger) (*Simulation, error) {
	manager, _, err := signIn(ctx, baseURL, "manager", logger)
	if err != nil {
		return nil, err
	}
	driver, driverUser, err := signIn(ctx, baseURL, "driver", logger)
	if err != nil {
		return nil, err
	}
	if err := manager.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load fleet: %w", err)
	}

	sim := &Simulation{manager: manager, driver: driver, driverID: driverUser.ID, log: logger}
	for i, v := range manager.Vehicles.Items() {
		if v.Status == models.VehicleMaintenance || v.Status == models.VehicleRetired {
			continue
		}
		depot := cities[i%len(cities)]
		state := &VehicleState{
			VehicleID: v.ID,
			Plate:     v.LicensePlate,
			Depot:     depot,
			Position:  jitterLocation(depot.Location, 500),
			SpeedKmh:  30 + rand.Float64()*30,
			Mileage:   v.Mileage,
		}
		if _, err := manager.Geofences.Create(ctx, models.GeofenceDraft{
			Name:      fmt.Sprintf("%s %s depot", v.LicensePlate, depot.Name),
			VehicleID: v.ID,
			Center:    depot.Location,
			Radius:    fenceRadiusM,
		}); err != nil {
			return nil, fmt.Errorf("create geofence for %s: %w", v.LicensePlate, err)
		}
		sim.states = append(sim.states, state)
	}
	logger.WithField("vehicles", len(sim.states)).Info("Vehicles on the road")
	return sim, nil
}

// Run ticks until ctx ends.
func (s *Simulation) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.Tick(ctx, interval)
		}
	}
}

// Tick moves every vehicle once and advances the driver's trip.
func (s *Simulation) Tick(ctx context.Context, interval time.Duration) {
	for _, st := range s.states {
		s.move(ctx, st, interval)
	}
	s.advanceTrip(ctx)
}

func (s *Simulation) move(ctx context.Context, st *VehicleState, interval time.Duration) {
	// small speed noise
	st.SpeedKmh = math.Min(math.Max(st.SpeedKmh+(rand.Float64()*2-1)*1.5, 15), 90)
	st.Mileage += stepAlongRoute(st, interval.Seconds())
	st.ticks++

	alerts, err := s.manager.Geofences.Check(ctx, models.LocationCheck{
		VehicleID: st.VehicleID,
		Lat:       st.Position.Lat,
		Lng:       st.Position.Lng,
	})
	if err != nil {
		s.log.WithError(err).WithField("vehicle", st.Plate).Warn("Geofence check failed")
	}
	for _, a := range alerts {
		s.log.WithFields(log.Fields{"vehicle": st.Plate, "alert": a.AlertMessage}).Info("Geofence alert")
	}

	if st.ticks%mileageEvery == 0 {
		mileage := math.Round(st.Mileage)
		if _, err := s.manager.Vehicles.Update(ctx, st.VehicleID, models.VehiclePatch{Mileage: &mileage}); err != nil {
			s.log.WithError(err).WithField("vehicle", st.Plate).Warn("Failed to report mileage")
		}
	}
}

// advanceTrip walks the driver through one trip at a time: the manager plans
// and assigns it, the driver starts it and completes it a few ticks later.
func (s *Simulation) advanceTrip(ctx context.Context) {
	trips, err := s.driver.Trips.List(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to load driver trips")
		return
	}
	for _, t := range trips {
		switch t.Status {
		case models.TripOngoing:
			s.onTrip++
			if s.onTrip >= tripLengthTick {
				s.act(ctx, t, models.TripActionComplete)
			}
			return
		case models.TripAssigned:
			s.onTrip = 0
			s.act(ctx, t, models.TripActionStart)
			return
		}
	}
	s.planTrip(ctx)
}

func (s *Simulation) act(ctx context.Context, t models.Trip, action models.TripAction) {
	if _, err := s.driver.Trips.Act(ctx, t.ID, action); err != nil {
		s.log.WithError(err).WithFields(log.Fields{"trip_id": t.ID, "action": action}).Warn("Trip action failed")
		return
	}
	s.log.WithFields(log.Fields{"trip_id": t.ID, "action": action}).Info("Driver updated trip")
}

func (s *Simulation) planTrip(ctx context.Context) {
	if _, err := s.manager.Trips.List(ctx); err != nil {
		s.log.WithError(err).Warn("Failed to load trips")
		return
	}
	var candidates []*VehicleState
	for _, v := range s.manager.AvailableVehicles() {
		for _, st := range s.states {
			if st.VehicleID == v.ID {
				candidates = append(candidates, st)
			}
		}
	}
	if len(candidates) == 0 {
		return
	}
	st := candidates[rand.Intn(len(candidates))]
	dest := cities[rand.Intn(len(cities))]

	trip, err := s.manager.Trips.Create(ctx, models.TripDraft{
		VehicleID:     st.VehicleID,
		StartLocation: st.Depot.Name,
		EndLocation:   dest.Name,
		StartTime:     time.Now().UTC(),
		TripType:      "delivery",
		Purpose:       "simulated run",
	})
	if err != nil {
		s.log.WithError(err).WithField("vehicle", st.Plate).Warn("Failed to plan trip")
		return
	}
	if _, err := s.manager.Trips.Assign(ctx, trip.ID, s.driverID); err != nil {
		s.log.WithError(err).WithField("trip_id", trip.ID).Warn("Failed to assign driver")
		return
	}
	s.log.WithFields(log.Fields{"trip_id": trip.ID, "vehicle": st.Plate, "to": dest.Name}).Info("Trip assigned")
}
