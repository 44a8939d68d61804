package xmal

import (
	"context"
	"errors"
	"fmt"

	"github.com/trickstertwo/xmal/broker"
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
)

// header builds an initiating header from the endpoint defaults.
func (e *Endpoint) header(to string, op message.OperationKey, t message.InteractionType, s message.Stage, tx int64) *message.Header {
	h := &message.Header{
		URIFrom:          e.uri,
		AuthenticationID: e.defaults.authID,
		URITo:            to,
		Timestamp:        e.clock.Now(),
		QoSLevel:         e.defaults.qos,
		Priority:         e.defaults.priority,
		Domain:           element.NewIdentifierList(e.defaults.domain...),
		NetworkZone:      e.defaults.networkZone,
		Session:          e.defaults.session,
		SessionName:      e.defaults.sessionName,
		InteractionType:  t,
		InteractionStage: s,
		TransactionID:    tx,
	}
	h.SetOperation(op)
	return h
}

// initiate opens a transaction (when a holder or listener is given) and
// sends the initiating message. The record is dropped again if sending fails.
func (e *Endpoint) initiate(ctx context.Context, to string, op message.OperationKey, t message.InteractionType, s message.Stage,
	holder *interaction.ResponseHolder, l interaction.Listener, body []element.Element) (int64, error) {
	if e.closed.Load() {
		return 0, ErrEndpointClosed
	}
	if to == "" {
		return 0, ErrInvalidDestination
	}
	tx := e.transactions.Next()
	track := holder != nil || l != nil
	if track {
		if err := e.transactions.Register(tx, &interaction.Record{Type: t, Stage: s, Holder: holder, Listener: l}); err != nil {
			return 0, err
		}
	}
	if err := e.SendMessage(ctx, message.New(e.header(to, op, t, s, tx), body...)); err != nil {
		if track {
			e.transactions.Remove(tx)
		}
		return 0, err
	}
	return tx, nil
}

// await blocks for the first reply of tx. Without a ctx deadline the
// endpoint's sync timeout applies.
func (e *Endpoint) await(ctx context.Context, tx int64, holder *interaction.ResponseHolder) (*message.Message, error) {
	if _, ok := ctx.Deadline(); !ok && e.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.syncTimeout)
		defer cancel()
	}
	m, err := holder.Wait(ctx)
	if err != nil && ctx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		e.transactions.Remove(tx)
		return nil, fmt.Errorf("%w: tx %d: %w", ErrResponseTimeout, tx, err)
	}
	return m, err
}

func (e *Endpoint) call(ctx context.Context, to string, op message.OperationKey, t message.InteractionType, s message.Stage,
	l interaction.Listener, body []element.Element) (*message.Message, error) {
	holder := interaction.NewResponseHolder()
	tx, err := e.initiate(ctx, to, op, t, s, holder, l, body)
	if err != nil {
		return nil, err
	}
	return e.await(ctx, tx, holder)
}

// Send fires a SEND; no reply is expected.
func (e *Endpoint) Send(ctx context.Context, to string, op message.OperationKey, body ...element.Element) error {
	_, err := e.initiate(ctx, to, op, message.Send, message.SendStage, nil, nil, body)
	return err
}

// Submit sends a SUBMIT and waits for its acknowledgement.
func (e *Endpoint) Submit(ctx context.Context, to string, op message.OperationKey, body ...element.Element) error {
	_, err := e.call(ctx, to, op, message.Submit, message.SubmitStage, nil, body)
	return err
}

// Request sends a REQUEST and returns the RESPONSE.
func (e *Endpoint) Request(ctx context.Context, to string, op message.OperationKey, body ...element.Element) (*message.Message, error) {
	return e.call(ctx, to, op, message.Request, message.RequestStage, nil, body)
}

// Invoke sends an INVOKE and returns the ACK. The RESPONSE, or an error
// after the ACK, is delivered to l.
func (e *Endpoint) Invoke(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (*message.Message, error) {
	return e.call(ctx, to, op, message.Invoke, message.InvokeStage, l, body)
}

// Progress sends a PROGRESS and returns the ACK. Updates and the RESPONSE
// are delivered to l.
func (e *Endpoint) Progress(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (*message.Message, error) {
	return e.call(ctx, to, op, message.Progress, message.ProgressStage, l, body)
}

// SubmitAsync sends a SUBMIT and returns its transaction id; every reply goes to l.
func (e *Endpoint) SubmitAsync(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (int64, error) {
	return e.initiate(ctx, to, op, message.Submit, message.SubmitStage, nil, l, body)
}

// RequestAsync sends a REQUEST; the RESPONSE goes to l.
func (e *Endpoint) RequestAsync(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (int64, error) {
	return e.initiate(ctx, to, op, message.Request, message.RequestStage, nil, l, body)
}

// InvokeAsync sends an INVOKE; the ACK and RESPONSE go to l.
func (e *Endpoint) InvokeAsync(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (int64, error) {
	return e.initiate(ctx, to, op, message.Invoke, message.InvokeStage, nil, l, body)
}

// ProgressAsync sends a PROGRESS; every reply goes to l.
func (e *Endpoint) ProgressAsync(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (int64, error) {
	return e.initiate(ctx, to, op, message.Progress, message.ProgressStage, nil, l, body)
}

// Register subscribes with the broker at brokerURI. Matching NOTIFY
// messages for sub.SubscriptionID are delivered to l.
func (e *Endpoint) Register(ctx context.Context, brokerURI string, op message.OperationKey, sub *element.Subscription, l interaction.Listener) error {
	if sub == nil {
		return fmt.Errorf("xmal: register: %w", message.ErrBodyMismatch)
	}
	id := string(sub.SubscriptionID)
	e.pubsubMu.Lock()
	prev, had := e.notifyListeners[id]
	if l != nil {
		e.notifyListeners[id] = l
	}
	e.pubsubMu.Unlock()

	if _, err := e.call(ctx, brokerURI, op, message.PubSub, message.RegisterStage, nil, []element.Element{sub}); err != nil {
		e.pubsubMu.Lock()
		if had {
			e.notifyListeners[id] = prev
		} else {
			delete(e.notifyListeners, id)
		}
		e.pubsubMu.Unlock()
		return err
	}
	return nil
}

// Deregister removes subscriptions from the broker and drops their listeners.
func (e *Endpoint) Deregister(ctx context.Context, brokerURI string, op message.OperationKey, ids ...string) error {
	list := element.NewIdentifierList(ids...)
	if _, err := e.call(ctx, brokerURI, op, message.PubSub, message.DeregisterStage, nil, []element.Element{&list}); err != nil {
		return err
	}
	e.pubsubMu.Lock()
	for _, id := range ids {
		delete(e.notifyListeners, id)
	}
	e.pubsubMu.Unlock()
	return nil
}

// PublishRegister declares this endpoint as publisher of op with the given
// key names. Rejected publishes for op are delivered to l.
func (e *Endpoint) PublishRegister(ctx context.Context, brokerURI string, op message.OperationKey, keyNames []string, l interaction.Listener) error {
	list := element.NewIdentifierList(keyNames...)
	if _, err := e.call(ctx, brokerURI, op, message.PubSub, message.PublishRegisterStage, nil, []element.Element{&list}); err != nil {
		return err
	}
	if l != nil {
		e.pubsubMu.Lock()
		e.publishListeners[op] = l
		e.pubsubMu.Unlock()
	}
	return nil
}

// PublishDeregister withdraws this endpoint as publisher.
func (e *Endpoint) PublishDeregister(ctx context.Context, brokerURI string, op message.OperationKey) error {
	if _, err := e.call(ctx, brokerURI, op, message.PubSub, message.PublishDeregisterStage, nil, nil); err != nil {
		return err
	}
	e.pubsubMu.Lock()
	delete(e.publishListeners, op)
	e.pubsubMu.Unlock()
	return nil
}

// Publish sends updates to the broker. PUBLISH has no reply; a rejection
// arrives later as an error PUBLISH delivered to the PublishRegister listener.
func (e *Endpoint) Publish(ctx context.Context, brokerURI string, op message.OperationKey, updates element.UpdateHeaderList, lists ...element.Sequence) error {
	_, err := e.initiate(ctx, brokerURI, op, message.PubSub, message.PublishStage, nil, nil, broker.PublishBody(updates, lists...))
	return err
}
