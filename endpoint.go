package xmal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"golang.org/x/sync/semaphore"

	"github.com/trickstertwo/xmal/broker"
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
)

// Endpoint is the central Facade of one MAL endpoint: it sends and receives
// messages through a Transport, correlates replies, serves provider
// handlers and optionally hosts a broker.
type Endpoint struct {
	uri           string
	transport     Transport
	ownsTransport bool
	codec         Codec
	registry      *element.Registry
	layouts       *message.Layouts
	clock         xclock.Clock
	logger        *xlog.Logger
	dispatch      Handler
	ackTimeout    time.Duration
	syncTimeout   time.Duration
	defaults      headerDefaults

	transactions      *interaction.Transactions
	broker            *broker.Broker
	notifyConcurrency int

	// provider handlers run off the delivery worker so replies to their
	// own synchronous calls can still be dispatched
	handlerSlots *semaphore.Weighted
	handlersWG   sync.WaitGroup

	handlersMu sync.RWMutex
	handlers   map[message.OperationKey]ProviderHandler

	pubsubMu         sync.RWMutex
	notifyListeners  map[string]interaction.Listener
	publishListeners map[message.OperationKey]interaction.Listener

	sub          Subscription
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	baseCtx      context.Context
	cancel       context.CancelFunc
	metrics      *endpointMetrics
	closed       atomic.Bool
	closeOnce    sync.Once
}

// headerDefaults fill the pass-through header fields of outgoing messages.
type headerDefaults struct {
	authID      []byte
	qos         message.QoSLevel
	priority    uint32
	domain      []string
	networkZone string
	session     message.SessionType
	sessionName string
}

// endpointMetrics uses lock-free atomics for telemetry.
type endpointMetrics struct {
	sentCount    atomic.Uint64
	receiveCount atomic.Uint64
	discardCount atomic.Uint64
	notifyCount  atomic.Uint64
	errorCount   atomic.Uint64
	processingNs atomic.Int64
}

// URI returns the address this endpoint listens on.
func (e *Endpoint) URI() string { return e.uri }

// Codec returns the configured codec (Strategy).
func (e *Endpoint) Codec() Codec { return e.codec }

// Registry returns the element registry used to decode abstract elements.
func (e *Endpoint) Registry() *element.Registry { return e.registry }

// Layouts returns the body layouts used by the codec.
func (e *Endpoint) Layouts() *message.Layouts { return e.layouts }

// Broker returns the hosted broker, or nil.
func (e *Endpoint) Broker() *broker.Broker { return e.broker }

// SendMessage encodes msg and hands it to the transport for msg.Header.URITo.
func (e *Endpoint) SendMessage(ctx context.Context, msg *message.Message) error {
	if e.closed.Load() {
		return ErrEndpointClosed
	}
	if msg == nil || msg.Header == nil {
		return message.ErrNilHeader
	}
	h := msg.Header
	if h.URITo == "" {
		return ErrInvalidDestination
	}

	data, err := e.codec.Marshal(msg)
	if err != nil {
		e.metrics.errorCount.Add(1)
		return fmt.Errorf("xmal: encode %s: %w", h.StageName(), err)
	}
	env := &Envelope{
		ID:      uuid.NewString(),
		To:      h.URITo,
		From:    h.URIFrom,
		Payload: data,
		Metadata: map[string]string{
			MetaCodec:       e.codec.Name(),
			MetaInteraction: h.InteractionType.String(),
			MetaStage:       h.StageName(),
			MetaTransaction: strconv.FormatInt(h.TransactionID, 10),
		},
		ProducedAt: e.clock.Now(),
	}

	start := e.clock.Now()
	e.notifyAsync(e.event(SendStart, h, env.ID, h.URITo))

	err = e.transport.Publish(ctx, h.URITo, env)

	duration := e.clock.Since(start)
	e.recordProcessingTime(duration.Nanoseconds())
	done := e.event(SendDone, h, env.ID, h.URITo)
	done.Duration, done.Err = duration, err
	e.notifyAsync(done)

	if err != nil {
		e.metrics.errorCount.Add(1)
		return err
	}
	e.metrics.sentCount.Add(1)
	return nil
}

// OnMessageReceived dispatches one decoded message: replies go to their
// transaction, initiating stages to a provider handler or the hosted broker,
// notifies to the subscription listener.
func (e *Endpoint) OnMessageReceived(ctx context.Context, msg *message.Message) error {
	if msg == nil || msg.Header == nil {
		return message.ErrNilHeader
	}
	h := msg.Header
	if h.InteractionType == message.PubSub {
		return e.onPubSub(ctx, msg)
	}
	if !h.IsErrorMessage && interaction.IsInitial(h.InteractionType, h.InteractionStage) {
		return e.serve(ctx, msg)
	}
	e.deliverReply(msg)
	return nil
}

// deliverReply hands a reply to its transaction. Replies nobody waits for
// are counted and discarded.
func (e *Endpoint) deliverReply(msg *message.Message) {
	if err := e.transactions.Deliver(msg); err != nil {
		e.discard(msg, err)
	}
}

func (e *Endpoint) discard(msg *message.Message, reason error) {
	e.metrics.discardCount.Add(1)
	ev := e.event(Discard, msg.Header, "", msg.Header.URIFrom)
	ev.Err = reason
	e.notifyAsync(ev)
}

func (e *Endpoint) listen() error {
	sub, err := e.transport.Subscribe(e.baseCtx, e.uri, e.uri, e.onDelivery)
	if err != nil {
		return fmt.Errorf("xmal: listen on %s: %w", e.uri, err)
	}
	e.sub = sub
	return nil
}

func (e *Endpoint) onDelivery(d Delivery) {
	defer e.recoverDelivery(d)

	env := d.Envelope()
	e.metrics.receiveCount.Add(1)

	msg, err := e.codecFor(env).Unmarshal(env.Payload)
	if err != nil {
		// undecodable bytes never become decodable on redelivery
		e.metrics.errorCount.Add(1)
		e.notifyAsync(Event{Type: Error, Endpoint: e.uri, Peer: env.From, MessageID: env.ID, Err: err})
		e.logger.Warn().Err(err).Str("endpoint", e.uri).Str("from", env.From).Msg("xmal: undecodable message dropped")
		e.ackWithTimeout(e.baseCtx, d, true, nil)
		return
	}

	if !startsProviderCall(msg.Header) {
		e.process(d, env, msg)
		return
	}
	if err := e.handlerSlots.Acquire(e.baseCtx, 1); err != nil {
		e.ackWithTimeout(context.Background(), d, false, ErrEndpointClosed)
		return
	}
	e.handlersWG.Add(1)
	go func() {
		defer e.handlersWG.Done()
		defer e.handlerSlots.Release(1)
		defer e.recoverDelivery(d)
		e.process(d, env, msg)
	}()
}

// startsProviderCall reports whether msg opens an interaction served by a
// provider handler. Replies, notifies and broker traffic never block on
// the network and stay on the delivery worker, in sender order.
func startsProviderCall(h *message.Header) bool {
	return h.InteractionType != message.PubSub &&
		!h.IsErrorMessage &&
		interaction.IsInitial(h.InteractionType, h.InteractionStage)
}

func (e *Endpoint) process(d Delivery, env *Envelope, msg *message.Message) {
	e.notifyAsync(e.event(ReceiveStart, msg.Header, env.ID, env.From))
	start := e.clock.Now()
	err := e.dispatch(e.baseCtx, msg)
	duration := e.clock.Since(start)
	e.recordProcessingTime(duration.Nanoseconds())

	done := e.event(ReceiveDone, msg.Header, env.ID, env.From)
	done.Duration, done.Err = duration, err
	if err != nil {
		e.metrics.errorCount.Add(1)
		e.ackWithTimeout(e.baseCtx, d, false, err)
	} else {
		e.ackWithTimeout(e.baseCtx, d, true, nil)
	}
	e.notifyAsync(done)
}

func (e *Endpoint) recoverDelivery(d Delivery) {
	if r := recover(); r != nil {
		e.logger.Warn().Str("endpoint", e.uri).Err(fmt.Errorf("%v", r)).Msg("xmal: dispatch panic (recovered)")
		e.metrics.errorCount.Add(1)
		_ = d.Nack(context.Background(), ErrHandlerPanic)
	}
}

// codecFor picks the codec named in the envelope, falling back to the endpoint codec.
func (e *Endpoint) codecFor(env *Envelope) Codec {
	name := env.Metadata[MetaCodec]
	if name == "" || name == e.codec.Name() {
		return e.codec
	}
	c, err := NewCodec(name, e.registry, e.layouts)
	if err != nil {
		return e.codec
	}
	return c
}

func (e *Endpoint) ackWithTimeout(ctx context.Context, d Delivery, ack bool, reason error) {
	actx := ctx
	cancel := func() {}
	if e.ackTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, e.ackTimeout)
	}
	defer cancel()

	if ack {
		if err := d.Ack(actx); err != nil {
			e.metrics.errorCount.Add(1)
			e.notifyAsync(Event{Type: Error, Endpoint: e.uri, Err: err})
			e.logger.Warn().Err(err).Msg("xmal: ack failed")
		}
		return
	}
	if err := d.Nack(actx, reason); err != nil {
		e.metrics.errorCount.Add(1)
		e.notifyAsync(Event{Type: Error, Endpoint: e.uri, Err: err})
		e.logger.Warn().Err(err).Msg("xmal: nack failed")
	}
}

// GetMetrics returns current endpoint metrics.
func (e *Endpoint) GetMetrics() Metrics {
	m := Metrics{
		Sent:                e.metrics.sentCount.Load(),
		Received:            e.metrics.receiveCount.Load(),
		Discarded:           e.metrics.discardCount.Load(),
		Notified:            e.metrics.notifyCount.Load(),
		Errors:              e.metrics.errorCount.Load(),
		OpenTransactions:    e.transactions.Len(),
		AvgProcessingTimeMs: float64(e.metrics.processingNs.Load()) / 1e6,
	}
	if e.observerPool != nil {
		m.EventsDropped = e.observerPool.Stats().Dropped
	}
	return m
}

// Health reports "degraded" when more than 5% of traffic failed.
func (e *Endpoint) Health(ctx context.Context) HealthStatus {
	if e.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: e.clock.Now(),
			Message:   "endpoint is closed",
		}
	}

	metrics := e.GetMetrics()
	status := "healthy"
	if traffic := metrics.Sent + metrics.Received; metrics.Errors > 0 && traffic > 0 {
		if float64(metrics.Errors)/float64(traffic) > 0.05 {
			status = "degraded"
		}
	}
	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: e.clock.Now(),
	}
}

// Close stops listening, fails every blocked caller and releases the
// transport when the endpoint built it. Idempotent.
func (e *Endpoint) Close(ctx context.Context) error {
	var closeErr error

	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.cancel()

		if e.sub != nil {
			if err := e.sub.Close(); err != nil {
				e.logger.Warn().Err(err).Msg("xmal: subscription close failed")
				closeErr = err
			}
		}
		e.transactions.Abort(ErrEndpointClosed)
		if !e.waitHandlers(5 * time.Second) {
			e.logger.Warn().Str("endpoint", e.uri).Msg("xmal: provider handlers still running after close")
		}

		if e.observerPool != nil {
			if err := e.observerPool.Close(5 * time.Second); err != nil {
				e.logger.Warn().Err(err).Msg("xmal: observer pool shutdown timeout")
				closeErr = errors.Join(closeErr, err)
			}
		}

		if e.ownsTransport {
			if err := e.transport.Close(ctx); err != nil {
				e.logger.Error().Err(err).Msg("xmal: transport close failed")
				closeErr = errors.Join(closeErr, err)
			}
		}
	})

	return closeErr
}

// waitHandlers reports whether running provider handlers returned within
// timeout.
func (e *Endpoint) waitHandlers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.handlersWG.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// AddObserver registers an observer (thread-safe).
func (e *Endpoint) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	e.observers = append(e.observers, obs)
	e.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (e *Endpoint) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	defer e.observersMu.Unlock()

	for i, o := range e.observers {
		if o == obs {
			e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
			break
		}
	}
}

func (e *Endpoint) event(t EventType, h *message.Header, id, peer string) Event {
	return Event{
		Type:          t,
		Endpoint:      e.uri,
		Peer:          peer,
		MessageID:     id,
		Interaction:   h.InteractionType.String(),
		Stage:         h.StageName(),
		TransactionID: h.TransactionID,
	}
}

// notifyAsync dispatches events without blocking the caller.
func (e *Endpoint) notifyAsync(ev Event) {
	if e.observerPool == nil || e.closed.Load() {
		return
	}

	e.observersMu.RLock()
	if len(e.observers) == 0 {
		e.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	e.observersMu.RUnlock()

	e.observerPool.Notify(ev, observers)
}

// recordProcessingTime keeps an exponential moving average.
func (e *Endpoint) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := e.metrics.processingNs.Load()
	if current == 0 {
		e.metrics.processingNs.Store(ns)
		return
	}
	e.metrics.processingNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
