package xmal

import (
	"strconv"

	"github.com/trickstertwo/xlog"
)

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver logs every event. Errors and discards go out at warn,
// the rest at debug.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	lg := o.Logger.With(
		xlog.Str("event", string(e.Type)),
		xlog.Str("endpoint", e.Endpoint),
		xlog.Str("peer", e.Peer),
		xlog.Str("pattern", e.Interaction),
		xlog.Str("stage", e.Stage),
		xlog.Str("tx", strconv.FormatInt(e.TransactionID, 10)),
	)
	if e.Err != nil || e.Type == Error || e.Type == Discard {
		lg.Warn().Err(e.Err).Msg("xmal: event")
		return
	}
	if e.Duration > 0 {
		lg = lg.With(xlog.Dur("took", e.Duration))
	}
	lg.Debug().Msg("xmal: event")
}
