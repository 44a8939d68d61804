package memory

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xmal"
)

const TransportName = "memory"

func init() {
	err := xmal.RegisterTransport(TransportName, func(cfg map[string]any) (xmal.Transport, error) {
		return NewTransport(ConfigFromMap(cfg)), nil
	})
	if err != nil {
		panic(fmt.Errorf("xmal/memory: register transport: %w", err))
	}
}

// Use builds an Endpoint on the in-memory transport and sets it as the default.
//
// Example:
//
//	ep := memory.Use(memory.Config{Network: "test"},
//	    memory.WithURI("malmem://provider"),
//	    memory.WithLogger(logger),
//	)
//
// The returned endpoint is installed as the process-wide default.
func Use(cfg Config, opts ...Option) *xmal.Endpoint {
	eb := xmal.NewEndpointBuilder().
		WithTransport(TransportName, cfg.toMap())

	for _, o := range opts {
		if o != nil {
			o(eb)
		}
	}

	ep, err := eb.Build()
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}

	xmal.SetDefault(ep)
	return ep
}

// Option configures the xmal.EndpointBuilder when calling Use.
type Option func(*xmal.EndpointBuilder)

// WithURI sets the endpoint URI.
func WithURI(uri string) Option {
	return func(b *xmal.EndpointBuilder) { b.WithURI(uri) }
}

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *xmal.EndpointBuilder) { b.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *xmal.EndpointBuilder) { b.WithClock(c) }
}

// WithCodec selects a wire scheme by name (default: "variable").
func WithCodec(name string) Option {
	return func(b *xmal.EndpointBuilder) { b.WithCodec(name) }
}

// WithMiddleware adds processing middlewares (retry, timeout, etc).
func WithMiddleware(mw ...xmal.Middleware) Option {
	return func(b *xmal.EndpointBuilder) { b.WithMiddleware(mw...) }
}

// WithAckTimeout sets acks/nacks timeout (default: 5s).
func WithAckTimeout(d time.Duration) Option {
	return func(b *xmal.EndpointBuilder) { b.WithAckTimeout(d) }
}

// WithTimeout bounds synchronous interactions (default: 30s).
func WithTimeout(d time.Duration) Option {
	return func(b *xmal.EndpointBuilder) { b.WithTimeout(d) }
}

// WithBroker hosts a PUBSUB broker on the endpoint.
func WithBroker() Option {
	return func(b *xmal.EndpointBuilder) { b.WithBroker() }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xmal.Observer) Option {
	return func(b *xmal.EndpointBuilder) { b.WithObserver(obs...) }
}

// WithObserverPool configures async observer pool for non-blocking notifications.
func WithObserverPool(workers, bufferSize int) Option {
	return func(b *xmal.EndpointBuilder) { b.WithObserverPool(workers, bufferSize) }
}
