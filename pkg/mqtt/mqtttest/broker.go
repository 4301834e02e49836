// Package mqtttest provides MQTT clients for tests.
package mqtttest

import (
	"context"
	"sync"
	"time"

	"github.com/autopeer-io/campustrack/pkg/mqtt"
)

// DelayedClient wraps a MemoryClient so that a new subscription receives
// its retained messages only after delay, once Subscribe has returned. That
// is the order a network broker uses: SUBACK first, retained state after.
// Messages published in the meantime queue behind the retained ones.
type DelayedClient struct {
	mqtt.Client
	delay time.Duration
}

// NewDelayedClient wraps mem, which must already be started.
func NewDelayedClient(mem *mqtt.MemoryClient, delay time.Duration) *DelayedClient {
	return &DelayedClient{Client: mem, delay: delay}
}

func (c *DelayedClient) Subscribe(ctx context.Context, filter string, qos int, handler mqtt.MessageHandler) error {
	g := &gate{handler: handler}
	if err := c.Client.Subscribe(ctx, filter, qos, g.handle); err != nil {
		return err
	}
	time.AfterFunc(c.delay, g.open)
	return nil
}

type heldMessage struct {
	topic   string
	payload []byte
}

type gate struct {
	mu      sync.Mutex
	opened  bool
	held    []heldMessage
	handler mqtt.MessageHandler
}

func (g *gate) handle(ctx context.Context, topic string, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		g.held = append(g.held, heldMessage{topic: topic, payload: append([]byte(nil), payload...)})
		return
	}
	g.handler(ctx, topic, payload)
}

func (g *gate) open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.held {
		g.handler(context.Background(), m.topic, m.payload)
	}
	g.held = nil
	g.opened = true
}
