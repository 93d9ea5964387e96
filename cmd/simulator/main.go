package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/ukydev/fleet-console/internal/config"
	"github.com/ukydev/fleet-console/internal/fakeapi"
	"github.com/ukydev/fleet-console/internal/live"
	"golang.org/x/sync/errgroup"
)

type simConfig struct {
	addr       string
	vehicles   int
	interval   time.Duration
	mqttBroker string
	mqttPrefix string
}

func parseFlags(args []string) (simConfig, error) {
	var c simConfig
	fs := pflag.NewFlagSet("simulator", pflag.ContinueOnError)
	fs.StringVar(&c.addr, "addr", ":"+config.GetEnv("PORT", "8081"), "listen address of the fake API")
	fs.IntVarP(&c.vehicles, "vehicles", "n", config.GetEnvAsInt("FLEET_SIZE", 6), "generated vehicles on top of the demo fleet")
	fs.DurationVar(&c.interval, "interval", config.GetEnvAsDuration("SIM_TICK_SECONDS", 2*time.Second), "simulation tick")
	fs.StringVar(&c.mqttBroker, "mqtt-broker", config.GetEnv("MQTT_BROKER", ""), "mirror live events to this MQTT broker")
	fs.StringVar(&c.mqttPrefix, "mqtt-prefix", config.GetEnv("MQTT_TOPIC_PREFIX", "fleet/events"), "MQTT topic prefix")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.vehicles < 0 {
		return c, errors.New("--vehicles must not be negative")
	}
	if c.interval < 10*time.Millisecond {
		return c, fmt.Errorf("--interval too short: %s", c.interval)
	}
	return c, nil
}

// mirrorToMQTT republishes every live event of hub on the broker.
func mirrorToMQTT(ctx context.Context, hub *fakeapi.Hub, broker, prefix string) (func(), error) {
	pub, err := live.DialMQTTPublisher(ctx, broker, prefix)
	if err != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", err)
	}
	hub.Mirror(func(event string, data []byte) {
		if err := pub.Publish(event, data); err != nil {
			log.WithError(err).WithField("event", event).Warn("Failed to mirror live event")
		}
	})
	return func() {
		hub.Mirror(nil)
		pub.Close()
	}, nil
}

func run(ctx context.Context, cfg simConfig, ready func(baseURL string)) error {
	srv := fakeapi.New(fakeapi.WithLogger(log.StandardLogger()))
	fx, err := srv.Seed(cfg.vehicles)
	if err != nil {
		return err
	}
	if cfg.mqttBroker != "" {
		stop, err := mirrorToMQTT(ctx, srv.Hub(), cfg.mqttBroker, cfg.mqttPrefix)
		if err != nil {
			return err
		}
		defer stop()
	}

	ln, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	baseURL := "http://" + ln.Addr().String() + "/api"

	log.WithFields(log.Fields{
		"fleet_size": len(fx.Vehicles),
		"api_url":    baseURL,
		"interval":   cfg.interval,
	}).Info("Starting fleet simulation")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.Hub().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sim, err := newSimulation(ctx, baseURL, log.StandardLogger())
		if err != nil {
			return err
		}
		if ready != nil {
			ready(baseURL)
		}
		sim.Run(ctx, cfg.interval)
		return nil
	})
	return g.Wait()
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("Invalid arguments")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, nil); err != nil {
		log.WithError(err).Fatal("Simulation failed")
	}
	log.Info("Simulation stopped")
}
