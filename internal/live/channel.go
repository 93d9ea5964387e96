// Package live implements the Live Update Channel: a push connection whose named
// events are applied to the resource stores outside the request lifecycle.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Events pushed by the API.
const (
	EventTripUpdated        = "tripUpdated"
	EventVehicleUpdated     = "vehicleUpdated"
	EventMaintenanceUpdated = "maintenanceUpdated"
	EventUserUpdated        = "userUpdated"
	EventNewActivity        = "new_activity"
)

// ErrNoCredential is returned by Connect without a credential.
var ErrNoCredential = errors.New("live: no credential")

// Message is one pushed event with its entity payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Transport carries messages from the push server. Connect returns once the
// connection is up; deliver is then called from the transport's own goroutine
// until Close returns.
type Transport interface {
	Connect(ctx context.Context, token string, deliver func(Message)) error
	Close() error
}

// Handler applies the payload of one event.
type Handler func(data json.RawMessage) error

// Channel owns at most one transport connection and routes its events to the
// registered handlers.
type Channel struct {
	transport Transport
	log       logrus.FieldLogger

	hmu      sync.RWMutex
	handlers map[string]Handler

	mu    sync.Mutex
	token string
	open  bool

	// gen counts connections. Deliveries from an older connection are dropped;
	// dmu is held while a handler runs so closing waits for it.
	dmu sync.RWMutex
	gen uint64
}

// NewChannel creates a disconnected channel over transport.
func NewChannel(transport Transport, log logrus.FieldLogger) *Channel {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Channel{
		transport: transport,
		log:       log.WithField("component", "live"),
		handlers:  make(map[string]Handler),
	}
}

// On registers the handler of event, replacing any previous one.
func (c *Channel) On(event string, h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[event] = h
}

// Route registers a handler that decodes the payload of event into T and
// passes it to apply.
func Route[T any](c *Channel, event string, apply func(T)) {
	c.On(event, func(data json.RawMessage) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", event, err)
		}
		apply(v)
		return nil
	})
}

// Connect opens the connection for token. Connecting again with the same token
// is a no-op; a different token replaces the connection.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoCredential
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		if c.token == token {
			return nil
		}
		c.closeLocked()
	}
	c.dmu.RLock()
	gen := c.gen
	c.dmu.RUnlock()
	deliver := func(m Message) { c.dispatch(gen, m) }
	if err := c.transport.Connect(ctx, token, deliver); err != nil {
		c.log.WithError(err).Warn("Live connection failed")
		return err
	}
	c.open = true
	c.token = token
	c.log.Info("Live channel connected")
	return nil
}

// Disconnect closes the connection. No handler runs once it returns. It is safe
// to call when not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.closeLocked()
		c.log.Info("Live channel disconnected")
	}
}

func (c *Channel) closeLocked() {
	c.dmu.Lock()
	c.gen++
	c.dmu.Unlock()
	if err := c.transport.Close(); err != nil {
		c.log.WithError(err).Debug("Live transport close")
	}
	c.open = false
	c.token = ""
}

// Connected reports whether a connection is open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Channel) dispatch(gen uint64, m Message) {
	c.dmu.RLock()
	defer c.dmu.RUnlock()
	if gen != c.gen {
		c.log.WithField("event", m.Event).Debug("Dropping event from closed connection")
		return
	}
	c.hmu.RLock()
	h, ok := c.handlers[m.Event]
	c.hmu.RUnlock()
	if !ok {
		c.log.WithField("event", m.Event).Debug("Ignoring unknown live event")
		return
	}
	if err := h(m.Data); err != nil {
		c.log.WithError(err).WithField("event", m.Event).Warn("Failed to apply live event")
	}
}
