package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-console/internal/api"
)

const (
	mqttQoS         = 1
	mqttQuiesce     = 250 // milliseconds
	mqttPublishWait = 5 * time.Second
)

// Topic returns the topic an event is published on.
func Topic(prefix, event string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + event
}

func newClientOptions(broker, role string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("fleet-console-" + role + "-" + uuid.NewString()).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxBackoff).
		SetConnectTimeout(dialWait)
}

// MQTTTransport subscribes to <prefix>/<event> topics on a broker. The event
// name is the last topic segment and the payload is the entity. The credential
// is sent as the MQTT password.
type MQTTTransport struct {
	broker string
	prefix string
	log    logrus.FieldLogger

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTTransport creates a transport for broker, e.g. tcp://localhost:1883.
func NewMQTTTransport(broker, prefix string, log logrus.FieldLogger) *MQTTTransport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTTTransport{
		broker: broker,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    log.WithFields(logrus.Fields{"transport": "mqtt", "broker": broker}),
	}
}

func (t *MQTTTransport) message(deliver func(Message)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		event := strings.TrimPrefix(msg.Topic(), t.prefix+"/")
		if event == "" || strings.Contains(event, "/") {
			t.log.WithField("topic", msg.Topic()).Debug("Ignoring message on unexpected topic")
			return
		}
		deliver(Message{Event: event, Data: append([]byte(nil), msg.Payload()...)})
	}
}

// Connect connects to the broker. The subscription is renewed on every
// reconnect.
func (t *MQTTTransport) Connect(ctx context.Context, token string, deliver func(Message)) error {
	opts := newClientOptions(t.broker, "sub").
		SetUsername("token").
		SetPassword(token).
		SetOnConnectHandler(func(c mqtt.Client) {
			sub := c.Subscribe(t.prefix+"/#", mqttQoS, t.message(deliver))
			if sub.WaitTimeout(dialWait) && sub.Error() != nil {
				t.log.WithError(sub.Error()).Error("MQTT subscribe failed")
				return
			}
			t.log.WithField("topic", t.prefix+"/#").Info("MQTT subscribed")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			t.log.WithError(err).Warn("MQTT connection lost, reconnecting")
		})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		client.Disconnect(0)
		if errors.Is(err, packets.ErrorRefusedNotAuthorised) || errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
			return &api.Error{Kind: api.KindUnauthorized, Message: "live channel rejected the credential", Err: err}
		}
		return &api.Error{Kind: api.KindNetwork, Err: err}
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client != nil {
		client.Disconnect(mqttQuiesce)
	}
	return nil
}

// MQTTPublisher publishes live events to a broker.
type MQTTPublisher struct {
	prefix string
	client mqtt.Client
}

// DialMQTTPublisher connects a publisher to broker.
func DialMQTTPublisher(ctx context.Context, broker, prefix string) (*MQTTPublisher, error) {
	client := mqtt.NewClient(newClientOptions(broker, "pub"))
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, err
	}
	return &MQTTPublisher{prefix: strings.TrimSuffix(prefix, "/"), client: client}, nil
}

// Publish sends the entity payload of event.
func (p *MQTTPublisher) Publish(event string, payload []byte) error {
	tok := p.client.Publish(Topic(p.prefix, event), mqttQoS, false, payload)
	if !tok.WaitTimeout(mqttPublishWait) {
		return errors.New("mqtt: publish timed out")
	}
	return tok.Error()
}

// Close disconnects the publisher.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(mqttQuiesce)
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
