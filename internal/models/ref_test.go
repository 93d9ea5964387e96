package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Ref
	}{
		{"null", `null`, Ref{}},
		{"id string", `"64b7f0c2a1b2c3d4e5f60718"`, Ref{ID: "64b7f0c2a1b2c3d4e5f60718"}},
		{"populated vehicle", `{"_id":"v1","make":"Ford","model":"Transit","licensePlate":"AB-123"}`,
			Ref{ID: "v1", Make: "Ford", Model: "Transit", LicensePlate: "AB-123"}},
		{"populated driver", `{"_id":"d1","username":"dana","name":"Dana"}`,
			Ref{ID: "d1", Username: "dana", Name: "Dana"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Ref
			require.NoError(t, json.Unmarshal([]byte(tt.in), &r))
			assert.Equal(t, tt.want, r)
		})
	}
}

func TestRef_UnmarshalJSON_Invalid(t *testing.T) {
	var r Ref
	assert.Error(t, json.Unmarshal([]byte(`42`), &r))
}

func TestRef_MarshalJSON_WritesBareID(t *testing.T) {
	trip := Trip{Vehicle: Ref{ID: "v1", Make: "Ford"}}
	data, err := json.Marshal(trip)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `"v1"`, string(raw["vehicleId"]))
	assert.JSONEq(t, `null`, string(raw["driverId"]))
}

func TestTripStatus_Open(t *testing.T) {
	for _, s := range []TripStatus{TripRequested, TripPending, TripAssigned, TripOngoing} {
		assert.True(t, s.Open(), s)
	}
	for _, s := range []TripStatus{TripCompleted, TripCanceled} {
		assert.False(t, s.Open(), s)
	}
}
