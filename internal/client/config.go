package client

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autopeer-io/campustrack/internal/announcement"
	"github.com/autopeer-io/campustrack/internal/gateway"
	"github.com/autopeer-io/campustrack/internal/geolocation"
	"github.com/autopeer-io/campustrack/internal/push"
	"github.com/autopeer-io/campustrack/internal/realtime"
	"github.com/autopeer-io/campustrack/internal/server"
	"github.com/autopeer-io/campustrack/internal/session"
	"github.com/autopeer-io/campustrack/internal/subscription"
	"github.com/autopeer-io/campustrack/internal/view"
	"github.com/autopeer-io/campustrack/pkg/log"
	"github.com/autopeer-io/campustrack/pkg/mqtt"
	"github.com/autopeer-io/campustrack/pkg/options"
)

var (
	_ subscription.Backend     = (*gateway.Gateway)(nil)
	_ session.AuthAPI          = (*gateway.Gateway)(nil)
	_ geolocation.LocationSink = (*gateway.Gateway)(nil)
	_ push.TokenStore          = (*gateway.Gateway)(nil)
	_ announcement.Source      = (*gateway.Gateway)(nil)
	_ gateway.CredentialSource = (*session.Store)(nil)
	_ server.Snapshots         = (*subscription.Manager)(nil)
)

type Config struct {
	APIOptions     *options.APIOptions
	MqttOptions    *options.MqttOptions
	SessionOptions *options.SessionOptions
	GeoOptions     *options.GeoOptions
	PushOptions    *options.PushOptions
	ViewOptions    *options.ViewOptions
	HttpOptions    *options.HttpOptions
	S3Options      *options.S3Options

	// Out receives rendered views. Defaults to stdout.
	Out io.Writer
	// Realtime replaces the MQTT client built from MqttOptions.
	Realtime mqtt.Client
}

// NewClient builds every component and wires them together.
func (cfg *Config) NewClient() (*Client, error) {
	rt := cfg.Realtime
	if rt == nil {
		var err error
		if rt, err = cfg.initMqttClient(); err != nil {
			return nil, fmt.Errorf("failed to init realtime client: %w", err)
		}
	}
	db := realtime.New(rt, realtime.Options{
		Root:   cfg.MqttOptions.TopicRoot,
		Settle: cfg.MqttOptions.Settle,
	})

	repo, sqlDB, err := cfg.initCredentialRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	// The store is the gateway's credential source and the gateway is the
	// store's backend, so the store is built first and attached after.
	store := session.NewStore(nil, repo)

	gwOpts := []gateway.Option{gateway.WithAuthErrorHandler(store.HandleError)}
	if cfg.S3Options.Enabled() {
		attachments, err := gateway.NewMinIO(cfg.S3Options)
		if err != nil {
			return nil, fmt.Errorf("failed to init attachment store: %w", err)
		}
		gwOpts = append(gwOpts, gateway.WithAttachmentStore(attachments))
	}
	gw, err := gateway.New(gateway.Config{
		BaseURL: cfg.APIOptions.BaseURL,
		Timeout: cfg.APIOptions.Timeout,
	}, store, db, gwOpts...)
	if err != nil {
		return nil, err
	}
	store.SetAPI(gw)

	renderer, err := view.NewRenderer(cfg.ViewOptions.Output)
	if err != nil {
		return nil, err
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	subs := subscription.NewManager(gw,
		subscription.WithInterval(cfg.ViewOptions.PollInterval),
		subscription.WithSnapshotTTL(cfg.ViewOptions.SnapshotTTL),
	)

	c := &Client{
		rt:       rt,
		sqlDB:    sqlDB,
		store:    store,
		gw:       gw,
		subs:     subs,
		board:    announcement.NewBoard(gw),
		view:     view.NewSupervisor(renderer, out),
		reporter: cfg.initReporter(gw),
		session:  cfg.SessionOptions,
		geo:      cfg.GeoOptions,
		push:     cfg.PushOptions,
		chat:     cfg.ViewOptions.Chat,
		log:      log.WithName("client"),
	}

	if cfg.PushOptions.Enabled() {
		c.relay = push.NewRelay(push.Config{
			VAPIDPublicKey:  cfg.PushOptions.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.PushOptions.VAPIDPrivateKey,
			Subscriber:      cfg.PushOptions.Subscriber,
			TTL:             cfg.PushOptions.TTL,
			Workers:         cfg.PushOptions.Workers,
		}, gw)
	}

	if cfg.HttpOptions != nil && cfg.HttpOptions.Enabled {
		c.http = server.NewHTTPServer(cfg.HttpOptions, subs,
			server.WithReadinessCheck("realtime", c.realtimeReady),
			server.WithReadinessCheck("session", c.sessionReady),
		)
	}
	return c, nil
}

func (cfg *Config) initMqttClient() (mqtt.Client, error) {
	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("campustrack-%s", uuid.NewString()[:8])
	}
	return mqtt.NewClient(mqttConfig)
}

func (cfg *Config) initCredentialRepository() (session.CredentialRepository, *gorm.DB, error) {
	if !cfg.SessionOptions.Persist {
		return session.NewMemoryRepository(), nil, nil
	}
	db, err := session.OpenSQLite(cfg.SessionOptions.DBPath)
	if err != nil {
		return nil, nil, err
	}
	repo, err := session.NewGormRepository(db)
	if err != nil {
		return nil, nil, err
	}
	return repo, db, nil
}

func (cfg *Config) initReporter(sink geolocation.LocationSink) *geolocation.Reporter {
	geo := cfg.GeoOptions

	var source geolocation.Source = geolocation.Unavailable{}
	if geo.Source == options.GeoSourceSimulated {
		source = geolocation.NewSimulated(geo.SimulatedStep)
	}
	return geolocation.NewReporter(source, sink,
		geolocation.WithMinInterval(geo.MinInterval),
		geolocation.WithWatchOptions(geolocation.WatchOptions{
			HighAccuracy: geo.HighAccuracy,
			Timeout:      geo.Timeout,
			MaximumAge:   geo.MaximumAge,
		}),
	)
}
