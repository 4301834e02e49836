package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*PushOptions)(nil)

// PushOptions configures the Web Push relay. The relay is off unless both
// VAPID keys are set.
type PushOptions struct {
	VAPIDPublicKey  string `json:"vapid-public-key" mapstructure:"vapid-public-key"`
	VAPIDPrivateKey string `json:"vapid-private-key" mapstructure:"vapid-private-key"`
	// Subscriber is the contact (mailto: or URL) sent with every push.
	Subscriber string `json:"subscriber" mapstructure:"subscriber"`
	// Subscription is this device's serialized PushSubscription JSON. When set
	// it is registered at userTokens/{uid} after sign-in.
	Subscription string `json:"subscription" mapstructure:"subscription"`

	Workers int           `json:"workers" mapstructure:"workers"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
}

func NewPushOptions() *PushOptions {
	return &PushOptions{
		Workers: 4,
		TTL:     time.Hour,
	}
}

// Enabled reports whether VAPID keys are configured.
func (o *PushOptions) Enabled() bool {
	return o != nil && o.VAPIDPublicKey != "" && o.VAPIDPrivateKey != ""
}

func (o *PushOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if (o.VAPIDPublicKey == "") != (o.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("--push.vapid-public-key and --push.vapid-private-key must be given together"))
	}
	if o.Enabled() && o.Subscriber == "" {
		errs = append(errs, errors.New("--push.subscriber is required when push is enabled"))
	}
	if o.Workers < 1 {
		errs = append(errs, errors.New("--push.workers must be at least 1"))
	}
	return errs
}

func (o *PushOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.VAPIDPublicKey, "push.vapid-public-key", o.VAPIDPublicKey, "VAPID public key for Web Push.")
	fs.StringVar(&o.VAPIDPrivateKey, "push.vapid-private-key", o.VAPIDPrivateKey, "VAPID private key for Web Push.")
	fs.StringVar(&o.Subscriber, "push.subscriber", o.Subscriber, "Contact sent to push services (mailto: address or URL).")
	fs.StringVar(&o.Subscription, "push.subscription", o.Subscription, "This device's Web Push subscription JSON to register after sign-in.")
	fs.IntVar(&o.Workers, "push.workers", o.Workers, "Number of concurrent push deliveries.")
	fs.DurationVar(&o.TTL, "push.ttl", o.TTL, "How long push services keep an undelivered message.")
}
