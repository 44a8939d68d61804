package natscore

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xmal"
)

const TransportName = "nats"

func init() {
	if err := xmal.RegisterTransport(TransportName, func(cfg map[string]any) (xmal.Transport, error) {
		return NewTransport(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xmal: failed to register transport %q: %w", TransportName, err))
	}
}

// Use builds an Endpoint on NATS, installs it as the default endpoint and
// returns it. Start cfg from Defaults().
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
		panic(fmt.Errorf("natscore.Use: %w", err))
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

// WithCodec selects a wire scheme by name.
func WithCodec(name string) Option {
	return func(b *xmal.EndpointBuilder) { b.WithCodec(name) }
}

// WithTimeout bounds synchronous interactions.
func WithTimeout(d time.Duration) Option {
	return func(b *xmal.EndpointBuilder) { b.WithTimeout(d) }
}

// WithBroker hosts a PUBSUB broker on the endpoint.
func WithBroker() Option {
	return func(b *xmal.EndpointBuilder) { b.WithBroker() }
}
