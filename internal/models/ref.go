package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref is a weak reference to another entity. The API sends references either as
// a bare id string or as a populated object; both decode into a Ref. Label fields
// are only set for populated references and are used for display and search.
type Ref struct {
	ID           string
	Name         string
	Username     string
	Make         string
	Model        string
	LicensePlate string
}

type populatedRef struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	LicensePlate string `json:"licensePlate"`
}

// RefTo returns an unpopulated reference to id.
func RefTo(id string) Ref {
	return Ref{ID: id}
}

// IsZero reports whether the reference points at nothing.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

// UnmarshalJSON accepts null, an id string, or a populated object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = Ref{}
		return nil
	case data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	case data[0] == '{':
		var p populatedRef
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*r = Ref(p)
		return nil
	default:
		return fmt.Errorf("models: cannot decode reference from %s", data)
	}
}

// MarshalJSON always writes the bare id; the API resolves population itself.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}
