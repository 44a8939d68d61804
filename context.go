package xmal

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey identifies one value the endpoint places on dispatch contexts.
type ctxKey struct{ name string }

var (
	codecKey    = &ctxKey{"codec"}
	loggerKey   = &ctxKey{"logger"}
	clockKey    = &ctxKey{"clock"}
	endpointKey = &ctxKey{"endpoint"}
)

func fromContext[T any](ctx context.Context, key *ctxKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// CodecFromContext returns the codec of the endpoint that received the message.
func CodecFromContext(ctx context.Context) (Codec, bool) {
	c, ok := fromContext[Codec](ctx, codecKey)
	return c, ok && c != nil
}

// LoggerFromContext returns the endpoint logger.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	l, ok := fromContext[*xlog.Logger](ctx, loggerKey)
	return l, ok && l != nil
}

// ClockFromContext returns the endpoint clock.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	c, ok := fromContext[xclock.Clock](ctx, clockKey)
	return c, ok && c != nil
}

// EndpointFromContext returns the endpoint dispatching the current message,
// so a handler can start interactions of its own.
func EndpointFromContext(ctx context.Context) (*Endpoint, bool) {
	e, ok := fromContext[*Endpoint](ctx, endpointKey)
	return e, ok && e != nil
}

func injectEndpoint(ctx context.Context, e *Endpoint) context.Context {
	if e == nil {
		return ctx
	}
	return context.WithValue(ctx, endpointKey, e)
}

// InjectAll places codec, logger and clock on ctx; nil values are skipped.
func InjectAll(ctx context.Context, codec Codec, logger *xlog.Logger, clock xclock.Clock) context.Context {
	if codec != nil {
		ctx = context.WithValue(ctx, codecKey, codec)
	}
	if logger != nil {
		ctx = context.WithValue(ctx, loggerKey, logger)
	}
	if clock != nil {
		ctx = context.WithValue(ctx, clockKey, clock)
	}
	return ctx
}
