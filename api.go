package xmal

import (
	"context"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
)

// Handler dispatches one decoded inbound message. A non-nil error nacks the
// delivery.
type Handler func(ctx context.Context, msg *message.Message) error

// Middleware wraps inbound dispatch.
type Middleware func(next Handler) Handler

// Subscription stops delivery to its handler when closed.
type Subscription interface {
	Close() error
}

// Delivery is one received envelope. The first Ack or Nack settles it.
type Delivery interface {
	Envelope() *Envelope
	Ack(ctx context.Context) error
	Nack(ctx context.Context, reason error) error
}

// Transport is the Strategy interface for moving encoded messages between
// endpoints. Destinations are endpoint URIs.
type Transport interface {
	// Publish hands envelopes to the endpoint bound to destination, failing
	// with ErrDestinationUnknown when the transport knows nobody is.
	Publish(ctx context.Context, destination string, envs ...*Envelope) error
	// Subscribe binds destination and calls handler from background
	// goroutines until the subscription or ctx ends. Envelopes from one
	// sender reach handler in order.
	Subscribe(ctx context.Context, destination, group string, handler func(Delivery)) (Subscription, error)
	Close(ctx context.Context) error
}

// Codec turns messages into envelope payloads. Name is recorded in the
// envelope so the receiver can pick the same codec.
type Codec interface {
	Marshal(msg *message.Message) ([]byte, error)
	Unmarshal(data []byte) (*message.Message, error)
	Name() string
}

// Observer receives endpoint events on ObserverPool workers.
type Observer interface {
	OnEvent(e Event)
}

// HealthChecker reports health.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API is the endpoint surface: the MAL consumer patterns, the provider
// binding, and the broker operations.
type API interface {
	URI() string
	SendMessage(ctx context.Context, msg *message.Message) error
	OnMessageReceived(ctx context.Context, msg *message.Message) error

	Send(ctx context.Context, to string, op message.OperationKey, body ...element.Element) error
	Submit(ctx context.Context, to string, op message.OperationKey, body ...element.Element) error
	Request(ctx context.Context, to string, op message.OperationKey, body ...element.Element) (*message.Message, error)
	Invoke(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (*message.Message, error)
	Progress(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (*message.Message, error)

	Register(ctx context.Context, broker string, op message.OperationKey, sub *element.Subscription, l interaction.Listener) error
	Deregister(ctx context.Context, broker string, op message.OperationKey, ids ...string) error
	PublishRegister(ctx context.Context, broker string, op message.OperationKey, keyNames []string, l interaction.Listener) error
	PublishDeregister(ctx context.Context, broker string, op message.OperationKey) error
	Publish(ctx context.Context, broker string, op message.OperationKey, updates element.UpdateHeaderList, lists ...element.Sequence) error

	Handle(op message.OperationKey, h ProviderHandler)

	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var (
	_ API           = (*Endpoint)(nil)
	_ HealthChecker = (*Endpoint)(nil)
)
