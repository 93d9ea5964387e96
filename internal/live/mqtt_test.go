package live

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-console/internal/models"
	"github.com/ukydev/fleet-console/internal/store"
)

// Requires a broker that accepts anonymous clients, e.g.
// MQTT_TEST_BROKER=tcp://localhost:1883.
func TestMQTT_RoundTrip(t *testing.T) {
	broker := os.Getenv("MQTT_TEST_BROKER")
	if broker == "" {
		t.Skip("MQTT_TEST_BROKER not set")
	}
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	prefix := "fleet-test/" + time.Now().Format("150405.000")

	c := NewChannel(NewMQTTTransport(broker, prefix, logger), logger)
	maintenance := store.New[models.MaintenanceSchedule]("maintenance", store.Append, logger)
	Route(c, EventMaintenanceUpdated, maintenance.Apply)
	require.NoError(t, c.Connect(ctx, "tok"))
	defer c.Disconnect()

	pub, err := DialMQTTPublisher(ctx, broker, prefix)
	require.NoError(t, err)
	defer pub.Close()

	payload, err := json.Marshal(models.MaintenanceSchedule{ID: "m1", Type: "inspection", Completed: true})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		if err := pub.Publish(EventMaintenanceUpdated, payload); err != nil {
			return false
		}
		got, ok := maintenance.Get("m1")
		return ok && got.Completed
	}, 5*time.Second, 200*time.Millisecond)
}
