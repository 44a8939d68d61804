package xmal

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/trickstertwo/xmal/broker"
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
)

// onPubSub routes PUBSUB stages: NOTIFY and rejected PUBLISH to the
// consumer/publisher listeners, initiating stages to the hosted broker,
// acknowledgements to their transaction.
func (e *Endpoint) onPubSub(ctx context.Context, msg *message.Message) error {
	h := msg.Header
	switch {
	case h.InteractionStage == message.NotifyStage:
		e.onNotify(msg)
		return nil
	case h.InteractionStage == message.PublishStage && h.IsErrorMessage:
		e.onPublishError(msg)
		return nil
	case !h.IsErrorMessage && interaction.IsInitial(h.InteractionType, h.InteractionStage):
		return e.serveBroker(ctx, msg)
	default:
		e.deliverReply(msg)
		return nil
	}
}

func (e *Endpoint) onNotify(msg *message.Message) {
	nb, err := broker.ParseNotify(msg)
	if err != nil {
		e.discard(msg, err)
		return
	}
	e.pubsubMu.RLock()
	l := e.notifyListeners[nb.SubscriptionID]
	e.pubsubMu.RUnlock()
	if l == nil {
		e.discard(msg, fmt.Errorf("no listener for subscription %q", nb.SubscriptionID))
		return
	}
	e.metrics.notifyCount.Add(1)
	e.notifyAsync(e.event(Notify, msg.Header, "", msg.Header.URIFrom))
	l(interaction.NewEvent(msg))
}

func (e *Endpoint) onPublishError(msg *message.Message) {
	op := msg.Header.OperationKey()
	e.pubsubMu.RLock()
	l := e.publishListeners[op]
	e.pubsubMu.RUnlock()
	if l == nil {
		se, _ := message.StandardErrorFrom(msg)
		e.logger.Warn().Str("op", op.String()).Str("broker", msg.Header.URIFrom).
			Str("error", fmt.Sprint(se)).Msg("xmal: publish rejected")
		e.discard(msg, ErrReplyNotAllowed)
		return
	}
	l(interaction.NewEvent(msg))
}

// serveBroker handles an initiating PUBSUB stage. Without a hosted broker a
// provider handler bound to the operation may take over.
func (e *Endpoint) serveBroker(ctx context.Context, msg *message.Message) error {
	h := msg.Header
	if e.broker == nil {
		if e.handler(h.OperationKey()) != nil {
			return e.serve(ctx, msg)
		}
		se := message.NewStandardError(message.UnsupportedOperation, ErrNoBroker.Error())
		if h.InteractionStage == message.PublishStage {
			return e.rejectPublish(ctx, msg, se)
		}
		return e.replyError(ctx, newInteraction(e, msg), se)
	}

	in := newInteraction(e, msg)
	switch h.InteractionStage {
	case message.RegisterStage:
		sub, ok := msg.Element(0).(*element.Subscription)
		if !ok || sub == nil {
			return e.replyError(ctx, in, message.NewStandardError(message.BadEncoding, "register body is not a Subscription"))
		}
		if err := e.broker.Register(h.URIFrom, sub); err != nil {
			return e.replyError(ctx, in, brokerError(err))
		}
	case message.DeregisterStage:
		ids, ok := msg.Element(0).(*element.IdentifierList)
		if !ok || ids == nil {
			return e.replyError(ctx, in, message.NewStandardError(message.BadEncoding, "deregister body is not an IdentifierList"))
		}
		e.broker.Deregister(h.URIFrom, ids.Strings()...)
	case message.PublishRegisterStage:
		keys, ok := msg.Element(0).(*element.IdentifierList)
		if !ok || keys == nil {
			return e.replyError(ctx, in, message.NewStandardError(message.BadEncoding, "publish register body is not an IdentifierList"))
		}
		if err := e.broker.PublishRegister(h.URIFrom, h.QoSLevel, h.Domain.Strings(), keys.Strings()); err != nil {
			return e.replyError(ctx, in, brokerError(err))
		}
	case message.PublishDeregisterStage:
		e.broker.PublishDeregister(h.URIFrom)
	case message.PublishStage:
		return e.brokerPublish(ctx, msg)
	}
	return in.Ack(ctx)
}

// brokerPublish matches one PUBLISH against the subscriptions and fans the
// NOTIFY messages out per subscriber. A subscriber the transport no longer
// knows is dropped from the broker.
func (e *Endpoint) brokerPublish(ctx context.Context, msg *message.Message) error {
	h := msg.Header
	updates, lists, err := broker.ParsePublish(msg)
	if err != nil {
		return e.rejectPublish(ctx, msg, message.NewStandardError(message.BadEncoding, err.Error()))
	}
	notifies, err := e.broker.Publish(h, updates, lists)
	if err != nil {
		return e.rejectPublish(ctx, msg, brokerError(err))
	}

	var g errgroup.Group
	if e.notifyConcurrency > 0 {
		g.SetLimit(e.notifyConcurrency)
	}
	for uri, bodies := range notifies {
		g.Go(func() error {
			for i := range bodies {
				nh := e.header(uri, h.OperationKey(), message.PubSub, message.NotifyStage, e.transactions.Next())
				nh.QoSLevel, nh.Priority = h.QoSLevel, h.Priority
				nh.Domain, nh.NetworkZone = h.Domain, h.NetworkZone
				nh.Session, nh.SessionName = h.Session, h.SessionName
				if err := e.SendMessage(ctx, message.New(nh, bodies[i].Body()...)); err != nil {
					if errors.Is(err, ErrDestinationUnknown) {
						e.broker.RemoveEndpoint(uri)
					}
					return fmt.Errorf("notify %s: %w", uri, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn().Err(err).Str("op", h.OperationKey().String()).Str("publisher", h.URIFrom).Msg("xmal: notify delivery failed")
	}
	return nil
}

// rejectPublish reports a failed publish to its publisher as an error PUBLISH.
func (e *Endpoint) rejectPublish(ctx context.Context, msg *message.Message, se *message.StandardError) error {
	rh := msg.Header.Reply(message.PublishStage, true, e.clock.Now())
	rh.URIFrom = e.uri
	if err := e.SendMessage(ctx, message.New(rh, se.Body()...)); err != nil {
		e.logger.Warn().Err(err).Str("publisher", msg.Header.URIFrom).Msg("xmal: publish error reply failed")
	}
	return nil
}

// brokerError keeps MAL errors as they are; plain broker validation errors
// become UNKNOWN with their text.
func brokerError(err error) *message.StandardError {
	var se *message.StandardError
	if errors.As(err, &se) {
		return se
	}
	return message.NewStandardError(message.Unknown, err.Error())
}
