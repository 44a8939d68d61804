package redisstream

import (
	"fmt"

	"github.com/trickstertwo/xmal"
)

const TransportName = "redis-streams"

func init() {
	if err := xmal.RegisterTransport(TransportName, func(cfg map[string]any) (xmal.Transport, error) {
		return NewTransport(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xmal: failed to register transport %q: %w", TransportName, err))
	}
}

// Use builds an Endpoint on Redis Streams, installs it as the default
// endpoint and returns it. Start cfg from Defaults().
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
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}

	xmal.SetDefault(ep)
	return ep
}
