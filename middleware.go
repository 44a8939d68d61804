package xmal

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xmal/message"
)

// RetryConfig controls retry behavior for processing middleware.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first execution.
	MaxAttempts int
	// Backoff computes the base wait before attempt+1 (e.g. exponential).
	Backoff func(attempt int) time.Duration
	// RetryIf reports whether err is transient. Nil uses Retryable.
	RetryIf func(err error) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff.
	Jitter time.Duration
}

// Retryable is the default retry predicate. MAL errors already reached the
// peer as error replies, and out-of-sequence replies or panics fail the
// same way on every attempt.
func Retryable(err error) bool {
	var se *message.StandardError
	switch {
	case errors.As(err, &se),
		errors.Is(err, ErrReplyNotAllowed),
		errors.Is(err, ErrHandlerPanic),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// RetryMiddleware re-runs inbound dispatch on transient failures before the
// delivery is nacked.
func RetryMiddleware(cfg RetryConfig) Middleware {
	attempts := max(1, cfg.MaxAttempts)
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = Retryable
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, msg *message.Message) error {
			err := next(ctx, msg)
			for i := 1; i < attempts && err != nil && ctx.Err() == nil && retryIf(err); i++ {
				if !sleep(ctx, backoff(cfg, i)) {
					break
				}
				err = next(ctx, msg)
			}
			return err
		}
	}
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	var d time.Duration
	if cfg.Backoff != nil {
		d = cfg.Backoff(attempt)
	}
	if cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(cfg.Jitter)))
	}
	return d
}

// sleep waits d or until ctx ends, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// TimeoutMiddleware bounds inbound dispatch. A handler still running at the
// deadline is abandoned and the delivery nacked.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next Handler) Handler { return next }
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *message.Message) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("%w: %v", ErrHandlerPanic, r)
					}
				}()
				done <- next(tctx, msg)
			}()

			select {
			case err := <-done:
				return err
			case <-tctx.Done():
				return fmt.Errorf("xmal: dispatch of %s %s: %w",
					msg.Header.OperationKey(), msg.Header.StageName(), tctx.Err())
			}
		}
	}
}

// RecoveryMiddleware converts a dispatch panic into ErrHandlerPanic.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *message.Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// LoggingMiddleware logs each inbound message at debug level with the
// logger and clock of the receiving endpoint, and failures at warn.
func LoggingMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg *message.Message) error {
			lg, ok := LoggerFromContext(ctx)
			if !ok {
				return next(ctx, msg)
			}
			now := time.Now
			if clk, ok := ClockFromContext(ctx); ok {
				now = clk.Now
			}

			start := now()
			err := next(ctx, msg)
			h := msg.Header
			l := lg.With(
				xlog.Str("op", h.OperationKey().String()),
				xlog.Str("stage", h.StageName()),
				xlog.Str("from", h.URIFrom),
				xlog.Str("tx", strconv.FormatInt(h.TransactionID, 10)),
				xlog.Dur("dur", now().Sub(start)),
			)
			if err != nil {
				l.Warn().Err(err).Msg("xmal: dispatch failed")
			} else {
				l.Debug().Msg("xmal: dispatch")
			}
			return err
		}
	}
}

// Chain wraps h so that mws[0] is the outermost middleware.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
