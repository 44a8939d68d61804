package natscore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spaolacci/murmur3"

	"github.com/trickstertwo/xmal"
)

// Envelope fields travel as NATS headers; the payload is the message data.
const (
	headerID         = "Xmal-Id"
	headerTo         = "Xmal-To"
	headerFrom       = "Xmal-From"
	headerProducedAt = "Xmal-Produced-At"
	headerMetaPrefix = "Xmal-Meta-"
)

var ErrTransportClosed = errors.New("natscore: transport is closed")

// accepted is the reply body a strict receiver sends on arrival.
var accepted = []byte("+OK")

type transport struct {
	cfg  Config
	conn *nats.Conn

	closed atomic.Bool

	subsMu sync.Mutex
	subs   map[*subscription]struct{}

	metrics *transportMetrics
}

type transportMetrics struct {
	published     atomic.Uint64
	consumed      atomic.Uint64
	acked         atomic.Uint64
	nacked        atomic.Uint64
	redelivered   atomic.Uint64
	dropped       atomic.Uint64
	publishErrors atomic.Uint64
}

// Stats is a snapshot of transport telemetry.
type Stats struct {
	Published     uint64
	Consumed      uint64
	Acked         uint64
	Nacked        uint64
	Redelivered   uint64
	Dropped       uint64
	PublishErrors uint64
}

// NewTransport connects to cfg.URL.
func NewTransport(cfg Config) (xmal.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("natscore: connect %s: %w", cfg.URL, err)
	}
	return &transport{
		cfg:     cfg,
		conn:    conn,
		subs:    make(map[*subscription]struct{}),
		metrics: &transportMetrics{},
	}, nil
}

// subject maps an endpoint URI to a single-token suffix under SubjectPrefix.
// NATS reserves '.', '*', '>' and whitespace, so those become '_'.
func (t *transport) subject(destination string) string {
	return t.cfg.SubjectPrefix + strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, destination)
}

// Publish sends envelopes to the destination subject. With
// StrictDestinations each envelope is a request, and no responders means the
// destination is unknown.
func (t *transport) Publish(ctx context.Context, destination string, envs ...*xmal.Envelope) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	subj := t.subject(destination)

	for _, env := range envs {
		if env == nil {
			continue
		}
		msg := toMsg(subj, env)
		if err := t.send(ctx, msg); err != nil {
			t.metrics.publishErrors.Add(1)
			if errors.Is(err, nats.ErrNoResponders) {
				return fmt.Errorf("%w: %s", xmal.ErrDestinationUnknown, destination)
			}
			return err
		}
		t.metrics.published.Add(1)
	}
	return nil
}

func (t *transport) send(ctx context.Context, msg *nats.Msg) error {
	if !t.cfg.StrictDestinations {
		return t.conn.PublishMsg(msg)
	}
	rctx, cancel := context.WithTimeout(ctx, t.cfg.PublishTimeout)
	defer cancel()
	_, err := t.conn.RequestMsgWithContext(rctx, msg)
	return err
}

type subscription struct {
	once  sync.Once
	close func() error
	err   error
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		if s.close != nil {
			s.err = s.close()
		}
	})
	return s.err
}

// Subscribe joins the queue group of destination's subject. Messages are
// sharded across workers by sender URI so one sender's envelopes are
// handled in order.
func (t *transport) Subscribe(ctx context.Context, destination, group string, handler func(xmal.Delivery)) (xmal.Subscription, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	if destination == "" {
		return nil, xmal.ErrInvalidDestination
	}

	innerCtx, cancel := context.WithCancel(ctx)
	shards := make([]chan *delivery, t.cfg.Concurrency)
	var workers sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan *delivery, t.cfg.BufferSize)
		workers.Add(1)
		go func(work chan *delivery) {
			defer workers.Done()
			for {
				select {
				case <-innerCtx.Done():
					return
				case d := <-work:
					t.metrics.consumed.Add(1)
					handler(d)
				}
			}
		}(shards[i])
	}

	sub, err := t.conn.QueueSubscribe(t.subject(destination), group, func(m *nats.Msg) {
		env := fromMsg(m)
		shard := shards[murmur3.Sum32([]byte(env.From))%uint32(len(shards))]
		d := &delivery{t: t, env: env, queue: shard}
		select {
		case shard <- d:
			if m.Reply != "" {
				_ = m.Respond(accepted)
			}
		case <-innerCtx.Done():
		}
	})
	if err != nil {
		cancel()
		workers.Wait()
		return nil, fmt.Errorf("natscore: subscribe %s: %w", destination, err)
	}
	// the subscription must be known to the server before anyone publishes
	if err := t.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		cancel()
		workers.Wait()
		return nil, err
	}

	s := &subscription{}
	s.close = func() error {
		err := sub.Unsubscribe()
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			err = nil
		}
		cancel()
		workers.Wait()
		t.subsMu.Lock()
		delete(t.subs, s)
		t.subsMu.Unlock()
		return err
	}
	t.subsMu.Lock()
	t.subs[s] = struct{}{}
	t.subsMu.Unlock()
	return s, nil
}

// Close stops all subscriptions and closes the connection.
func (t *transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.subsMu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.subsMu.Unlock()

	var errs []error
	for _, s := range subs {
		errs = append(errs, s.Close())
	}
	t.conn.Close()
	return errors.Join(errs...)
}

// Stats returns current transport metrics.
func (t *transport) Stats() Stats {
	return Stats{
		Published:     t.metrics.published.Load(),
		Consumed:      t.metrics.consumed.Load(),
		Acked:         t.metrics.acked.Load(),
		Nacked:        t.metrics.nacked.Load(),
		Redelivered:   t.metrics.redelivered.Load(),
		Dropped:       t.metrics.dropped.Load(),
		PublishErrors: t.metrics.publishErrors.Load(),
	}
}

func toMsg(subject string, env *xmal.Envelope) *nats.Msg {
	msg := nats.NewMsg(subject)
	if env.ID != "" {
		msg.Header.Set(headerID, env.ID)
	}
	msg.Header.Set(headerTo, env.To)
	msg.Header.Set(headerFrom, env.From)
	if !env.ProducedAt.IsZero() {
		msg.Header.Set(headerProducedAt, strconv.FormatInt(env.ProducedAt.UnixNano(), 10))
	}
	for k, v := range env.Metadata {
		msg.Header.Set(headerMetaPrefix+k, v)
	}
	msg.Data = env.Payload
	return msg
}

func fromMsg(m *nats.Msg) *xmal.Envelope {
	env := &xmal.Envelope{
		ID:       m.Header.Get(headerID),
		To:       m.Header.Get(headerTo),
		From:     m.Header.Get(headerFrom),
		Payload:  m.Data,
		Metadata: make(map[string]string, 4),
	}
	if ns, err := strconv.ParseInt(m.Header.Get(headerProducedAt), 10, 64); err == nil && ns > 0 {
		env.ProducedAt = time.Unix(0, ns)
	}
	// nats.Header is a plain map; keys keep the case they were set with
	for k, vs := range m.Header {
		if strings.HasPrefix(k, headerMetaPrefix) && len(vs) > 0 {
			env.Metadata[strings.TrimPrefix(k, headerMetaPrefix)] = vs[0]
		}
	}
	return env
}
