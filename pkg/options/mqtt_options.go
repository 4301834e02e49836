package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/campustrack/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions configures the realtime database transport: an MQTT broker
// whose retained messages hold the records.
type MqttOptions struct {
	Broker   string `json:"broker-url" mapstructure:"broker-url"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive        time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout   time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ReconnectBackoff time.Duration `json:"reconnect-backoff" mapstructure:"reconnect-backoff"`
	SessionExpiry    uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart       bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// Records live under {TopicRoot}/{path}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// Settle bounds a one-shot read of a record that may not exist.
	Settle time.Duration `json:"settle" mapstructure:"settle"`
}

// NewMqttOptions creates a new MqttOptions with default values. The default
// broker is the in-process one, so the client runs without infrastructure.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:           mqtt.SchemeMemory + "://local",
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   5 * time.Second,
		ReconnectBackoff: 3 * time.Second,
		SessionExpiry:    60,
		CleanStart:       true,
		TopicRoot:        "campustrack/db",
		Settle:           time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if err := o.ToClientConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("--realtime.broker-url: %w", err))
	}
	if o.TopicRoot == "" {
		errs = append(errs, errors.New("--realtime.topic-root must not be empty"))
	}
	if o.Settle <= 0 {
		errs = append(errs, errors.New("--realtime.settle must be positive"))
	}
	return errs
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "realtime.broker-url", o.Broker, "URL of the MQTT broker backing the realtime database (memory:// for in-process).")
	fs.StringVar(&o.Username, "realtime.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "realtime.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "realtime.client-id", o.ClientID, "Explicit Client ID (optional, usually generated).")

	fs.DurationVar(&o.KeepAlive, "realtime.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "realtime.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.DurationVar(&o.ReconnectBackoff, "realtime.reconnect-backoff", o.ReconnectBackoff, "Delay between reconnect attempts.")
	fs.BoolVar(&o.CleanStart, "realtime.clean-start", o.CleanStart, "Discard any previous MQTT session state on connect.")
	fs.Uint32Var(&o.SessionExpiry, "realtime.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.InsecureSkipVerify, "realtime.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, "realtime.topic-root", o.TopicRoot, "Topic namespace holding the realtime records.")
	fs.DurationVar(&o.Settle, "realtime.settle", o.Settle, "How long a one-shot read waits for a record before treating it as missing.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		ReconnectBackoff:   o.ReconnectBackoff,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
