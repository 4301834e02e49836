// Package push relays realtime notifications to the recipient's device over
// Web Push. A device registers its serialized PushSubscription at
// userTokens/{uid}; the relay looks it up for every new notification.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/internal/pkg/metrics"
	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/pkg/log"
)

// ErrStopped is returned by Dispatch once the relay has shut down.
var ErrStopped = errors.New("push relay stopped")

// TokenStore keeps device registrations. The gateway implements it.
type TokenStore interface {
	SaveDeviceToken(ctx context.Context, userID, token string) error
	DeviceToken(ctx context.Context, userID string) (*model.DeviceToken, error)
	RemoveDeviceToken(ctx context.Context, userID string) error
}

// Sender delivers one push message.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)
}

// WebPushSender sends through webpush-go.
type WebPushSender struct{}

func (WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, opts)
}

// Config holds the VAPID identity and pool size.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             time.Duration
	Workers         int
}

// Message is the payload a service worker receives.
type Message struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Type  string `json:"type,omitempty"`
}

// Relay is a fixed pool of workers sending queued notifications.
type Relay struct {
	cfg    Config
	tokens TokenStore
	sender Sender
	jobs   chan model.Notification
	log    log.Logger

	startOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}

	mu     sync.Mutex
	primed bool
	seen   map[string]struct{}
}

type Option func(*Relay)

// WithSender replaces the webpush-go sender, for tests.
func WithSender(s Sender) Option {
	return func(r *Relay) { r.sender = s }
}

func NewRelay(cfg Config, tokens TokenStore, opts ...Option) *Relay {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	r := &Relay{
		cfg:    cfg,
		tokens: tokens,
		sender: WebPushSender{},
		jobs:   make(chan model.Notification, cfg.Workers),
		log:    log.WithName("push"),
		done:   make(chan struct{}),
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates a serialized PushSubscription and stores it as
// userID's device token.
func (r *Relay) Register(ctx context.Context, userID, subscription string) error {
	if _, err := parseSubscription(subscription); err != nil {
		return apperr.Validation("register device", map[string]string{"subscription": err.Error()})
	}
	if err := r.tokens.SaveDeviceToken(ctx, userID, subscription); err != nil {
		return err
	}
	r.log.Info("Registered device for push", "user", userID)
	return nil
}

// Start launches the workers. They exit when ctx ends; Wait blocks until then.
func (r *Relay) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		for i := 0; i < r.cfg.Workers; i++ {
			r.wg.Add(1)
			go r.worker(ctx, i)
		}
		go func() {
			<-ctx.Done()
			close(r.done)
		}()
	})
}

// Wait blocks until every worker has returned.
func (r *Relay) Wait() { r.wg.Wait() }

func (r *Relay) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	r.log.Debug("Worker started", "worker", id)
	for {
		select {
		case n := <-r.jobs:
			r.send(ctx, n)
		case <-ctx.Done():
			r.log.Debug("Worker shutting down", "worker", id)
			return
		}
	}
}

// Dispatch queues n, blocking while every worker is busy.
func (r *Relay) Dispatch(ctx context.Context, n model.Notification) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.jobs <- n:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Observe takes the latest notification list of a watched inbox and
// dispatches unread notifications it has not seen before. The first list
// only primes the seen set: what was already there is not pushed again.
func (r *Relay) Observe(ctx context.Context, list []model.Notification) {
	r.mu.Lock()
	var fresh []model.Notification
	for _, n := range list {
		if _, ok := r.seen[n.ID]; ok {
			continue
		}
		r.seen[n.ID] = struct{}{}
		if r.primed && !n.Read {
			fresh = append(fresh, n)
		}
	}
	r.primed = true
	r.mu.Unlock()

	for _, n := range fresh {
		if err := r.Dispatch(ctx, n); err != nil {
			r.log.Warn("Dropped push", "notification", n.ID, "error", err.Error())
			return
		}
	}
}

func (r *Relay) send(ctx context.Context, n model.Notification) {
	logger := r.log.WithValues("notification", n.ID, "recipient", n.Recipient)

	tok, err := r.tokens.DeviceToken(ctx, n.Recipient)
	if err != nil {
		if apperr.IsNotFound(err) {
			logger.Debug("Recipient has no registered device")
			return
		}
		metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Error(err, "Failed to look up device token")
		return
	}
	if tok == nil {
		return
	}

	sub, err := parseSubscription(tok.Token)
	if err != nil {
		metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Warn("Stored device token is not a push subscription", "error", err.Error())
		return
	}

	payload, err := json.Marshal(Message{ID: n.ID, Title: n.Title, Body: n.Body, Type: n.Type})
	if err != nil {
		metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Error(err, "Failed to encode push message")
		return
	}

	resp, err := r.sender.Send(ctx, payload, sub, r.options())
	if err != nil {
		metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Error(err, "Error sending push", "endpoint", sub.Endpoint)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		metrics.PushDeliveriesTotal.WithLabelValues("expired").Inc()
		logger.Info("Push subscription expired, removing", "endpoint", sub.Endpoint)
		if err := r.tokens.RemoveDeviceToken(ctx, n.Recipient); err != nil {
			logger.Error(err, "Failed to remove expired device token")
		}
	case resp.StatusCode >= http.StatusBadRequest:
		metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
		logger.Warn("Push service rejected message", "status", resp.StatusCode)
	default:
		metrics.PushDeliveriesTotal.WithLabelValues("sent").Inc()
		logger.Debug("Push sent")
	}
}

func (r *Relay) options() *webpush.Options {
	return &webpush.Options{
		Subscriber:      r.cfg.Subscriber,
		VAPIDPublicKey:  r.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: r.cfg.VAPIDPrivateKey,
		TTL:             int(r.cfg.TTL / time.Second),
		Urgency:         webpush.UrgencyNormal,
	}
}

func parseSubscription(raw string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, fmt.Errorf("not a push subscription: %w", err)
	}
	if sub.Endpoint == "" {
		return nil, errors.New("push subscription has no endpoint")
	}
	return &sub, nil
}
