package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// SchemeMemory selects the in-process loopback broker instead of a network connection.
const SchemeMemory = "memory"

// ClientConfig holds the configuration for creating a new Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for each connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectBackoff is the constant delay between attempts. Default is 3s.
	ReconnectBackoff time.Duration

	CleanStart    bool
	SessionExpiry uint32

	// InsecureSkipVerify disables TLS certificate verification. Test brokers only.
	InsecureSkipVerify bool

	// Optional last-will message published by the broker when the client drops.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 3 * time.Second
	}
}

// Validate checks the broker URL.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss", SchemeMemory:
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	return nil
}
