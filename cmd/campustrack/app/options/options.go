package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/campustrack/internal/client"
	"github.com/autopeer-io/campustrack/pkg/app"
	"github.com/autopeer-io/campustrack/pkg/log"
	"github.com/autopeer-io/campustrack/pkg/options"
)

type ClientOptions struct {
	APIOptions     *options.APIOptions     `json:"api" mapstructure:"api"`
	MqttOptions    *options.MqttOptions    `json:"realtime" mapstructure:"realtime"`
	SessionOptions *options.SessionOptions `json:"session" mapstructure:"session"`
	GeoOptions     *options.GeoOptions     `json:"geo" mapstructure:"geo"`
	PushOptions    *options.PushOptions    `json:"push" mapstructure:"push"`
	ViewOptions    *options.ViewOptions    `json:"view" mapstructure:"view"`
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	S3Options      *options.S3Options      `json:"s3" mapstructure:"s3"`
	Log            *log.Options            `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*ClientOptions)(nil)

func NewClientOptions() *ClientOptions {
	o := &ClientOptions{
		APIOptions:     options.NewAPIOptions(),
		MqttOptions:    options.NewMqttOptions(),
		SessionOptions: options.NewSessionOptions(),
		GeoOptions:     options.NewGeoOptions(),
		PushOptions:    options.NewPushOptions(),
		ViewOptions:    options.NewViewOptions(),
		HttpOptions:    options.NewHttpOptions(),
		S3Options:      options.NewS3Options(),
		Log:            log.NewOptions(),
	}

	return o
}

func (o *ClientOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.APIOptions.AddFlags(fss.FlagSet("api"))
	o.MqttOptions.AddFlags(fss.FlagSet("realtime"))
	o.SessionOptions.AddFlags(fss.FlagSet("session"))
	o.GeoOptions.AddFlags(fss.FlagSet("geolocation"))
	o.PushOptions.AddFlags(fss.FlagSet("push"))
	o.ViewOptions.AddFlags(fss.FlagSet("view"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ClientOptions) Complete() error {
	return nil
}

func (o *ClientOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.APIOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.SessionOptions.Validate()...)
	errs = append(errs, o.GeoOptions.Validate()...)
	errs = append(errs, o.PushOptions.Validate()...)
	errs = append(errs, o.ViewOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *ClientOptions) Config() (*client.Config, error) {
	return &client.Config{
		APIOptions:     o.APIOptions,
		MqttOptions:    o.MqttOptions,
		SessionOptions: o.SessionOptions,
		GeoOptions:     o.GeoOptions,
		PushOptions:    o.PushOptions,
		ViewOptions:    o.ViewOptions,
		HttpOptions:    o.HttpOptions,
		S3Options:      o.S3Options,
	}, nil
}
