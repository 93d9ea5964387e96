package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Priority(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"server message wins", &Error{Kind: KindConflict, Message: "License plate already exists"}, "License plate already exists"},
		{"network without message", &Error{Kind: KindNetwork, Err: errors.New("dial tcp")}, transportMessage},
		{"server error without message", &Error{Kind: KindServer, Status: 500}, fallbackMessage},
		{"foreign error", errors.New("boom"), fallbackMessage},
		{"wrapped api error", fmt.Errorf("create trip: %w", Validation("Start time must be before end time")), "Start time must be before end time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestError_IsMatchesOnlyItsKind(t *testing.T) {
	err := NotFound("trip %s not found", "t1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_String(t *testing.T) {
	err := &Error{Kind: KindServer, Status: 503, Message: "maintenance window"}
	assert.Equal(t, "server_error (503): maintenance window", err.Error())
}
