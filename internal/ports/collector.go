package ports

import "context"

// Message is one raw delivery from the pub/sub transport.
type Message struct {
	Topic   string
	Payload []byte
}

// MessageHandler processes a single message synchronously. It must not
// return until the message has been fully handled.
type MessageHandler func(ctx context.Context, msg Message)

// Collector streams transport messages into a handler until ctx is cancelled.
type Collector interface {
	Run(ctx context.Context, h MessageHandler) error
}
