package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/ukydev/fleet-console/internal/api"
	"github.com/ukydev/fleet-console/internal/auth"
	"github.com/ukydev/fleet-console/internal/config"
	"github.com/ukydev/fleet-console/internal/console"
	"github.com/ukydev/fleet-console/internal/models"
)

const alertPollInterval = 30 * time.Second

var errNotSignedIn = errors.New("not signed in: pass --username")

type options struct {
	envFile  string
	username string
	password string
	logout   bool
	watch    bool
	navigate []string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("fleet-console", pflag.ContinueOnError)
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file read when APP_ENV=local")
	fs.StringVarP(&o.username, "username", "u", "", "sign in as this user")
	fs.StringVarP(&o.password, "password", "p", "", "password (defaults to $FLEET_PASSWORD)")
	fs.BoolVar(&o.logout, "logout", false, "sign out and forget the stored session")
	fs.BoolVarP(&o.watch, "watch", "w", false, "keep running and log live updates")
	fs.StringSliceVar(&o.navigate, "navigate", nil, "evaluate access to these screens")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.password == "" {
		o.password = config.GetEnv("FLEET_PASSWORD", "")
	}
	return o, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	logger := log.New()
	cfg.ConfigureLogger(logger)

	storage, err := cfg.OpenStorage(ctx)
	if err != nil {
		return fmt.Errorf("open session storage: %w", err)
	}
	c := console.New(console.Options{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.HTTPTimeout,
		Storage:   storage,
		Transport: cfg.Transport(logger),
		Logger:    logger,
	})
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to close session storage")
		}
	}()

	if err := c.Start(ctx); err != nil {
		return err
	}
	if opts.logout {
		c.Logout()
		fmt.Fprintln(out, "Signed out")
		return nil
	}
	if opts.username != "" {
		if _, err := c.Login(ctx, opts.username, opts.password); err != nil {
			return fmt.Errorf("login: %s: %w", api.Message(err), err)
		}
	}
	user, ok := c.Session.Current()
	if !ok {
		return errNotSignedIn
	}
	logger.WithFields(log.Fields{"user_id": user.ID, "role": user.Role}).Info("Signed in")

	if err := c.Refresh(ctx); err != nil {
		if _, ok := c.Session.Current(); !ok {
			return fmt.Errorf("refresh: %w", err)
		}
		fmt.Fprintf(out, "Warning: %s\n", api.Message(err))
	}
	printSummary(out, user, c)

	for _, path := range opts.navigate {
		d, err := c.Gate.Navigate(path)
		if err != nil {
			fmt.Fprintf(out, "%s\tunknown screen\n", path)
			continue
		}
		verdict := "allowed"
		if !d.Allowed() {
			verdict = "redirect " + d.Redirect
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", path, d.State, verdict)
	}

	if opts.watch {
		watch(ctx, c, logger)
	}
	return nil
}

func printSummary(out io.Writer, user models.User, c *console.Console) {
	s := c.Summary()
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "User\t%s (%s)\n", user.Username, user.Role)
	fmt.Fprintf(w, "Vehicles\t%d\n", s.Vehicles)
	fmt.Fprintf(w, "Available\t%d\n", len(c.AvailableVehicles()))
	fmt.Fprintf(w, "Drivers\t%d\n", s.Drivers)
	fmt.Fprintf(w, "Managers\t%d\n", s.Managers)
	fmt.Fprintf(w, "Open trips\t%d\n", s.OpenTrips)
	fmt.Fprintf(w, "Pending maintenance\t%d\n", s.PendingMaintenance)
	for _, a := range s.Recent {
		fmt.Fprintf(w, "Activity\t%s\n", a.Message)
	}
	w.Flush()
}

// watch logs every store change until ctx ends or the session is lost.
func watch(ctx context.Context, c *console.Console, logger *log.Logger) {
	changed := func(name string, size func() int) func() {
		return func() {
			logger.WithFields(log.Fields{"store": name, "items": size()}).Info("Live update")
		}
	}
	c.Trips.OnChange(changed("trips", c.Trips.Len))
	c.Vehicles.OnChange(changed("vehicles", c.Vehicles.Len))
	c.Maintenance.OnChange(changed("maintenance", c.Maintenance.Len))
	c.Users.OnChange(changed("users", c.Users.Len))
	c.Activity.OnChange(changed("activity", c.Activity.Len))
	c.Geofences.Alerts.OnChange(changed("alerts", c.Geofences.Alerts.Len))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.Session.OnChange(func(ch auth.Change) {
		if ch.Kind == auth.SignedOut {
			logger.Warn("Session ended")
			cancel()
		}
	})
	if c.Gate.Can(models.CapViewGeofences) {
		go c.Geofences.PollAlerts(ctx, alertPollInterval)
	}
	logger.Info("Watching live updates, press Ctrl+C to stop")
	<-ctx.Done()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.WithError(err).Fatal("fleet-console failed")
	}
}
