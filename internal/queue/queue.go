package queue

import "context"

// Publisher publishes arrival messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ArrivalMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg ArrivalMessage) error

// Consumer consumes arrival messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// ArrivalsQueue carries at-least-once arrival notifications for the
	// daily positional files. Upload events and manual re-injections share
	// it; duplicates are expected and absorbed downstream.
	ArrivalsQueue = "arrivals"

	// ArrivalsDLQ receives arrival messages that exhausted redelivery.
	ArrivalsDLQ = "dlq.arrivals"
)
