package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/campustrack/cmd/campustrack/app/options"
	"github.com/autopeer-io/campustrack/pkg/app"
	"github.com/autopeer-io/campustrack/pkg/log"
)

const (
	commandName = "campustrack"
	commandDesc = `campustrack is the headless client of the campus vehicle tracking
service. It signs in, keeps the role's live views (vehicles, tracking table,
dashboard, notifications, chat) up to date, reports a driver's position while
on duty and relays notifications via Web Push.`
)

func NewApp() *app.App {
	opts := options.NewClientOptions()
	application := app.NewApp(
		commandName,
		"Launch the campus vehicle tracking client",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithWatchConfig(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.ClientOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		client, err := cfg.NewClient()
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		return client.Run(ctx)
	}
}
