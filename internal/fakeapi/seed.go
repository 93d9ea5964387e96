package fakeapi

import (
	"fmt"

	"github.com/ukydev/fleet-console/internal/models"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

// Fixture lists the seeded accounts and vehicles.
type Fixture struct {
	Admin    models.User
	Manager  models.User
	Driver   models.User
	User     models.User
	Vehicles []models.Vehicle
}

var demoVehicles = []models.Vehicle{
	{Make: "Toyota", Model: "Hilux", Year: 2021, LicensePlate: "FLT-001", Mileage: 42000, Location: "Depot A"},
	{Make: "Ford", Model: "Transit", Year: 2020, LicensePlate: "FLT-002", Mileage: 88000, Location: "Depot A"},
	{Make: "Nissan", Model: "Leaf", Year: 2023, LicensePlate: "FLT-003", Mileage: 9000, Location: "Depot B"},
	{Make: "Volvo", Model: "FH16", Year: 2019, LicensePlate: "FLT-004", Mileage: 310000, Status: models.VehicleMaintenance, Location: "Workshop"},
}

// Seed creates one account per role and a small fleet. extraVehicles adds
// generated vehicles beyond the fixed set.
func (s *Server) Seed(extraVehicles int) (Fixture, error) {
	var f Fixture
	accounts := []struct {
		dst  *models.User
		user models.User
	}{
		{&f.Admin, models.User{Username: "admin", Email: "admin@fleet.test", Role: models.RoleAdmin, Profile: models.Profile{Name: "Ada Admin"}}},
		{&f.Manager, models.User{Username: "manager", Email: "manager@fleet.test", Role: models.RoleManager, Profile: models.Profile{Name: "Max Manager"}}},
		{&f.Driver, models.User{Username: "driver", Email: "driver@fleet.test", Role: models.RoleDriver, Profile: models.Profile{Name: "Dana Driver", LicenseNumber: "DL-1234"}}},
		{&f.User, models.User{Username: "user", Email: "user@fleet.test", Role: models.RoleUser, Profile: models.Profile{Name: "Uma User"}}},
	}
	for _, a := range accounts {
		u, err := s.AddUser(a.user, DemoPassword)
		if err != nil {
			return Fixture{}, fmt.Errorf("seed %s: %w", a.user.Username, err)
		}
		*a.dst = u
	}

	for _, v := range demoVehicles {
		f.Vehicles = append(f.Vehicles, s.AddVehicle(v))
	}
	for i := 0; i < extraVehicles; i++ {
		f.Vehicles = append(f.Vehicles, s.AddVehicle(models.Vehicle{
			Make:         "Generic",
			Model:        "Van",
			Year:         2022,
			LicensePlate: fmt.Sprintf("SIM-%03d", i+1),
		}))
	}
	return f, nil
}
