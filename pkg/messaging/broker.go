package messaging

import (
	"context"
)

// Broker defines the interface for message brokers carrying delivery events
// between the API nodes and the push hub.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Close() error
}

// Message is a raw broker message tagged with the channel it arrived on.
type Message struct {
	Channel string
	Payload []byte
}
