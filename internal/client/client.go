// Package client is the composition root: it wires the session store, the
// gateway and the live views together and runs them until cancelled.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/campustrack/internal/announcement"
	"github.com/autopeer-io/campustrack/internal/gateway"
	"github.com/autopeer-io/campustrack/internal/geolocation"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/push"
	"github.com/autopeer-io/campustrack/internal/server"
	"github.com/autopeer-io/campustrack/internal/session"
	"github.com/autopeer-io/campustrack/internal/subscription"
	"github.com/autopeer-io/campustrack/internal/view"
	"github.com/autopeer-io/campustrack/pkg/log"
	"github.com/autopeer-io/campustrack/pkg/mqtt"
	"github.com/autopeer-io/campustrack/pkg/options"
)

const (
	viewAnnouncements = "announcements"
	viewDuty          = "duty"

	shutdownTimeout = 5 * time.Second
)

// reloginDelay is how long the client waits after losing its session before
// signing in again with the configured credentials.
var reloginDelay = 5 * time.Second

var (
	errNoCredentials = errors.New("no persisted session and no --session.username configured")
	errNotConnected  = errors.New("realtime database not connected")
	errSignedOut     = errors.New("signed out")
)

type Client struct {
	rt    mqtt.Client
	sqlDB *gorm.DB

	store    *session.Store
	gw       *gateway.Gateway
	subs     *subscription.Manager
	board    *announcement.Board
	view     *view.Supervisor
	reporter *geolocation.Reporter
	relay    *push.Relay
	http     *server.HTTPServer

	session *options.SessionOptions
	geo     *options.GeoOptions
	push    *options.PushOptions
	chat    []string

	log log.Logger
}

// Run connects the realtime database, establishes a session and keeps the
// session's views open until ctx ends. It returns nil on cancellation and an
// error only when the client cannot start.
func (c *Client) Run(ctx context.Context) error {
	defer c.closeDB()

	if err := c.rt.Start(ctx); err != nil {
		return fmt.Errorf("failed to start realtime client: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.rt.Disconnect(dctx)
	}()
	defer c.subs.Close()
	defer c.reporter.Stop()

	if c.relay != nil {
		rctx, cancel := context.WithCancel(ctx)
		c.relay.Start(rctx)
		defer func() {
			cancel()
			c.relay.Wait()
		}()
	}

	mgr := server.NewManager(server.Func(c.runSessions), server.Func(c.runExpiryCheck))
	if c.http != nil {
		mgr.Add(c.http)
	}
	return mgr.Start(ctx)
}

// Store exposes the session store, e.g. for an interactive front end.
func (c *Client) Store() *session.Store { return c.store }

// Gateway exposes the backend operations.
func (c *Client) Gateway() *gateway.Gateway { return c.gw }

// Subscriptions exposes the live resource manager.
func (c *Client) Subscriptions() *subscription.Manager { return c.subs }

func (c *Client) runSessions(ctx context.Context) error {
	if err := c.signIn(ctx); err != nil {
		return err
	}

	for {
		c.runScope(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if c.session.Username == "" {
			c.log.Info("Signed out, waiting for shutdown")
			<-ctx.Done()
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reloginDelay):
		}
		if res := c.store.Login(ctx, c.session.Username, c.session.Password); !res.Success {
			c.log.Warn("Sign in failed", "message", res.Message)
		}
	}
}

// signIn restores a persisted session, falling back to the configured
// credentials.
func (c *Client) signIn(ctx context.Context) error {
	if err := c.store.Restore(ctx); err != nil {
		c.log.Warn("Failed to load persisted credential", "error", err.Error())
	}
	if _, ok := c.store.Current(); ok {
		return nil
	}

	if c.session.Username == "" {
		return errNoCredentials
	}
	res := c.store.Login(ctx, c.session.Username, c.session.Password)
	if !res.Success {
		return fmt.Errorf("sign in as %s: %s", c.session.Username, res.Message)
	}
	return nil
}

// runScope opens the signed-in user's views and blocks until the session
// ends or ctx is cancelled. Everything it opened is closed before it returns.
func (c *Client) runScope(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unwatch := c.store.Watch(func(ev session.Event) {
		if ev.Type == session.EventSignedOut {
			cancel()
		}
	})
	defer unwatch()

	sess, ok := c.store.Current()
	if !ok {
		return
	}
	logger := c.log.WithValues("user", sess.Username, "role", sess.Role)
	logger.Info("Session opened")

	var disposers []subscription.Disposer
	defer func() {
		for _, dispose := range disposers {
			dispose()
		}
		logger.Info("Session closed")
	}()
	open := func(key subscription.Key, also subscription.UpdateFunc) {
		if d := c.open(key, also); d != nil {
			disposers = append(disposers, d)
		}
	}

	open(subscription.VehiclesList, nil)
	open(subscription.TrackingVehicles, nil)
	open(subscription.DashboardStats, nil)
	open(subscription.Notifications(sess.UserID), subscription.Typed(func(list []model.Notification) {
		if c.relay != nil {
			c.relay.Observe(ctx, list)
		}
	}))
	for _, ch := range c.chat {
		open(subscription.Chat(ch), nil)
	}

	if sess.Role == model.RoleDriver && c.geo.OnDuty {
		open(subscription.VehicleLocation(c.geo.VehicleID), nil)
		c.startDuty(ctx, c.geo.VehicleID)
		defer c.stopDuty()
	}

	if c.relay != nil && c.push.Subscription != "" {
		if err := c.relay.Register(ctx, sess.UserID, c.push.Subscription); err != nil {
			logger.Warn("Failed to register push subscription", "error", err.Error())
		}
	}

	list, err := c.board.List(ctx, announcement.Query{Role: sess.Role})
	if err != nil {
		c.view.RenderError(viewAnnouncements, err)
	} else {
		c.view.Render(viewAnnouncements, list)
	}

	<-ctx.Done()
}

// open subscribes key and routes its updates to the view supervisor.
func (c *Client) open(key subscription.Key, also subscription.UpdateFunc) subscription.Disposer {
	name := string(key)
	dispose, err := c.subs.Subscribe(key, func(v any) {
		c.view.Render(name, v)
		if also != nil {
			also(v)
		}
	}, subscription.WithErrorHandler(func(err error) {
		c.view.RenderError(name, err)
	}))
	if err != nil {
		c.view.RenderError(name, err)
		return nil
	}
	return dispose
}

func (c *Client) startDuty(ctx context.Context, vehicleID string) {
	if _, err := c.gw.SetDutyStatus(ctx, true); err != nil {
		c.log.Warn("Failed to set duty status", "error", err.Error())
	}
	if err := c.reporter.Start(ctx, vehicleID); err != nil {
		c.view.RenderError(viewDuty, err)
		return
	}
	c.log.Info("Reporting location", "vehicle", vehicleID)
}

func (c *Client) stopDuty() {
	c.reporter.Stop()

	// Nothing to tell the backend once the session is gone.
	if _, ok := c.store.Current(); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := c.gw.SetDutyStatus(ctx, false); err != nil {
		c.log.Warn("Failed to clear duty status", "error", err.Error())
	}
}

func (c *Client) runExpiryCheck(ctx context.Context) error {
	wait.UntilWithContext(ctx, func(context.Context) {
		c.store.CheckExpiry()
	}, c.session.ExpiryCheck)
	return nil
}

func (c *Client) realtimeReady() error {
	if !c.rt.IsConnected() {
		return errNotConnected
	}
	return nil
}

func (c *Client) sessionReady() error {
	if _, ok := c.store.Current(); !ok {
		return errSignedOut
	}
	return nil
}

func (c *Client) closeDB() {
	if c.sqlDB == nil {
		return
	}
	if db, err := c.sqlDB.DB(); err == nil {
		db.Close()
	}
}
