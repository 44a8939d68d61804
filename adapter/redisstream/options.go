package redisstream

import (
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xmal"
)

// Option configures the xmal.EndpointBuilder when calling Use.
type Option func(*xmal.EndpointBuilder)

// WithURI sets the endpoint URI. Its stream is StreamPrefix + uri.
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

// WithMiddleware adds processing middlewares.
func WithMiddleware(mw ...xmal.Middleware) Option {
	return func(b *xmal.EndpointBuilder) { b.WithMiddleware(mw...) }
}

// WithAckTimeout sets acks/nacks timeout.
func WithAckTimeout(d time.Duration) Option {
	return func(b *xmal.EndpointBuilder) { b.WithAckTimeout(d) }
}

// WithTimeout bounds synchronous interactions.
func WithTimeout(d time.Duration) Option {
	return func(b *xmal.EndpointBuilder) { b.WithTimeout(d) }
}

// WithBroker hosts a PUBSUB broker on the endpoint.
func WithBroker() Option {
	return func(b *xmal.EndpointBuilder) { b.WithBroker() }
}

// WithDomain sets the default domain of outgoing headers.
func WithDomain(domain ...string) Option {
	return func(b *xmal.EndpointBuilder) { b.WithDomain(domain...) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xmal.Observer) Option {
	return func(b *xmal.EndpointBuilder) { b.WithObserver(obs...) }
}
