package fakeapi

import "github.com/ukydev/fleet-console/internal/models"

// refDoc is a populated reference as the API embeds it in responses.
type refDoc struct {
	ID           string `json:"_id"`
	Name         string `json:"name,omitempty"`
	Username     string `json:"username,omitempty"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
}

type vehicleDoc struct {
	models.Vehicle
	AssignedDriver *refDoc `json:"assignedDriver"`
}

type tripDoc struct {
	models.Trip
	Vehicle     *refDoc `json:"vehicleId"`
	Driver      *refDoc `json:"driverId"`
	RequestedBy *refDoc `json:"userId"`
}

// userRef populates a user reference. Callers hold s.mu.
func (s *Server) userRef(r models.Ref) *refDoc {
	if r.IsZero() {
		return nil
	}
	doc := &refDoc{ID: r.ID}
	if acc := s.accountByID(r.ID); acc != nil {
		doc.Username = acc.user.Username
		doc.Name = acc.user.Name
	}
	return doc
}

// vehicleRef populates a vehicle reference. Callers hold s.mu.
func (s *Server) vehicleRef(r models.Ref) *refDoc {
	if r.IsZero() {
		return nil
	}
	doc := &refDoc{ID: r.ID}
	if i := indexOf(s.vehicles, r.ID); i >= 0 {
		v := s.vehicles[i]
		doc.Make, doc.Model, doc.LicensePlate = v.Make, v.Model, v.LicensePlate
	}
	return doc
}

func (s *Server) vehicleDoc(v models.Vehicle) vehicleDoc {
	return vehicleDoc{Vehicle: v, AssignedDriver: s.userRef(v.AssignedDriver)}
}

func (s *Server) tripDoc(t models.Trip) tripDoc {
	return tripDoc{
		Trip:        t,
		Vehicle:     s.vehicleRef(t.Vehicle),
		Driver:      s.userRef(t.Driver),
		RequestedBy: s.userRef(t.RequestedBy),
	}
}
