package store

import (
	"strings"

	"github.com/ukydev/fleet-console/internal/api"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// checkID rejects ids that cannot name any record without a round trip.
func checkID(resource, id string) error {
	if !primitive.IsValidObjectID(id) {
		return api.NotFound("%s %q not found", resource, id)
	}
	return nil
}

// field is a named value checked for presence.
type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return api.Validation("%s is required", f.name)
		}
	}
	return nil
}

// present fails a call whose response carried no entity.
func present[T Entity](e *T, err error) error {
	if err == nil && (*e).Key() == "" {
		return &api.Error{Kind: api.KindServer, Message: "unexpected response from server"}
	}
	return err
}
