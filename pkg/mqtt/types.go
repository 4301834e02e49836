package mqtt

import (
	"context"
)

// MessageHandler processes one inbound message. Handlers run on the
// client's receive goroutine in arrival order and must not block.
// An empty payload on a retained topic means the record was cleared.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the transport used by the realtime database layer.
type Client interface {
	// Start begins connecting in the background. Use AwaitConnection to wait.
	Start(ctx context.Context) error

	// Disconnect closes the connection.
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter (+ and # allowed).
	// Registered filters are re-subscribed after a reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until connected or ctx is done.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}

// RetainedReplayer is implemented by clients that hand a new subscription
// its retained messages before Subscribe returns. A network broker sends
// them after SUBACK, so callers must otherwise wait for them to arrive.
type RetainedReplayer interface {
	ReplaysRetained() bool
}
