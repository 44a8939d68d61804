package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xmal"
)

var ErrTransportClosed = errors.New("memory transport is closed")

// Transport moves envelopes between endpoints of one process. Publishing
// to a URI nobody is bound to fails with xmal.ErrDestinationUnknown.
type Transport struct {
	cfg Config
	hub *hub

	closed atomic.Bool

	subsMu sync.Mutex
	subs   map[*subscription]struct{}

	metrics metrics
}

type metrics struct {
	published, consumed  atomic.Uint64
	acked, nacked        atomic.Uint64
	redelivered, dropped atomic.Uint64
	publishErrors        atomic.Uint64
}

// Stats is a snapshot of transport counters.
type Stats struct {
	Published     uint64
	Consumed      uint64
	Acked         uint64
	Nacked        uint64
	Redelivered   uint64
	Dropped       uint64
	PublishErrors uint64
}

var _ xmal.Transport = (*Transport)(nil)

// NewTransport attaches a transport to cfg.Network.
func NewTransport(cfg Config) *Transport {
	cfg = cfg.normalize()
	return &Transport{
		cfg:  cfg,
		hub:  hubFor(cfg.Network),
		subs: make(map[*subscription]struct{}),
	}
}

var envelopeSeq atomic.Uint64

// Publish queues envelopes for every consumer group bound to destination,
// blocking while a shard is full.
func (t *Transport) Publish(ctx context.Context, destination string, envs ...*xmal.Envelope) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if len(envs) == 0 {
		return nil
	}

	var queues []*queue
	if b := t.hub.lookup(destination); b != nil {
		queues = b.queues()
	}
	if len(queues) == 0 {
		t.metrics.publishErrors.Add(1)
		return fmt.Errorf("%w: %s", xmal.ErrDestinationUnknown, destination)
	}

	for _, env := range envs {
		if env == nil {
			continue
		}
		if env.ID == "" && t.cfg.AssignIDs {
			env.ID = "mem-" + strconv.FormatUint(envelopeSeq.Add(1), 10)
		}
		for _, q := range queues {
			tk := &task{env: env, shard: q.shardFor(env.From)}
			select {
			case tk.shard <- tk:
			case <-ctx.Done():
				t.metrics.publishErrors.Add(1)
				return ctx.Err()
			}
		}
		t.metrics.published.Add(1)
	}
	return nil
}

// Subscribe binds destination for group and starts Concurrency workers on
// the group's shards.
func (t *Transport) Subscribe(ctx context.Context, destination, group string, handler func(xmal.Delivery)) (xmal.Subscription, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	if destination == "" {
		return nil, xmal.ErrInvalidDestination
	}

	b, q := t.hub.bind(destination, group, t.cfg.Concurrency, t.cfg.BufferSize)
	s := &subscription{t: t, uri: destination, group: group, binding: b}
	s.ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < t.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.work(q.shards[i%len(q.shards)], handler)
	}

	t.subsMu.Lock()
	t.subs[s] = struct{}{}
	t.subsMu.Unlock()
	return s, nil
}

// Close ends this transport's subscriptions. Other transports on the
// network keep running.
func (t *Transport) Close(context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.subsMu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.subsMu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

// Stats returns current transport counters.
func (t *Transport) Stats() Stats {
	m := &t.metrics
	return Stats{
		Published:     m.published.Load(),
		Consumed:      m.consumed.Load(),
		Acked:         m.acked.Load(),
		Nacked:        m.nacked.Load(),
		Redelivered:   m.redelivered.Load(),
		Dropped:       m.dropped.Load(),
		PublishErrors: m.publishErrors.Load(),
	}
}

type subscription struct {
	t       *Transport
	uri     string
	group   string
	binding *binding

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *subscription) work(shard <-chan *task, handler func(xmal.Delivery)) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case tk := <-shard:
			s.t.metrics.consumed.Add(1)
			handler(&delivery{t: s.t, task: tk})
		}
	}
}

// Close stops the workers and leaves the hub once they are idle.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.t.hub.unbind(s.uri, s.binding, s.group)
		s.t.subsMu.Lock()
		delete(s.t.subs, s)
		s.t.subsMu.Unlock()
	})
	return nil
}
