package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spaolacci/murmur3"

	"github.com/trickstertwo/xmal"
)

var ErrTransportClosed = errors.New("redisstream: transport is closed")

type transport struct {
	cfg    Config
	client *redis.Client

	closed atomic.Bool

	readersMu sync.Mutex
	readers   map[*reader]struct{}

	metrics transportMetrics
}

type transportMetrics struct {
	published     atomic.Uint64
	consumed      atomic.Uint64
	claimed       atomic.Uint64
	acked         atomic.Uint64
	nacked        atomic.Uint64
	deadLettered  atomic.Uint64
	publishErrors atomic.Uint64
	readErrors    atomic.Uint64
}

// Stats is a snapshot of transport telemetry.
type Stats struct {
	Published     uint64
	Consumed      uint64
	Claimed       uint64
	Acked         uint64
	Nacked        uint64
	DeadLettered  uint64
	PublishErrors uint64
	ReadErrors    uint64
}

// NewTransport connects to Redis and checks the connection with PING.
func NewTransport(cfg Config) (xmal.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     max(10, cfg.Concurrency+2),
		MinIdleConns: 2,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &transport{cfg: cfg, client: client, readers: make(map[*reader]struct{})}, nil
}

// streamKey maps an endpoint URI to its stream.
func (t *transport) streamKey(destination string) string {
	return t.cfg.StreamPrefix + destination
}

// Publish appends envelopes to the destination's stream in one pipeline.
func (t *transport) Publish(ctx context.Context, destination string, envs ...*xmal.Envelope) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	if len(envs) == 0 {
		return nil
	}
	stream := t.streamKey(destination)

	if t.cfg.StrictDestinations {
		n, err := t.client.Exists(ctx, stream).Result()
		if err == nil && n == 0 {
			err = fmt.Errorf("%w: %s", xmal.ErrDestinationUnknown, destination)
		}
		if err != nil {
			t.metrics.publishErrors.Add(uint64(len(envs)))
			return err
		}
	}

	pipe := t.client.Pipeline()
	for _, env := range envs {
		if env == nil {
			continue
		}
		args := &redis.XAddArgs{Stream: stream, ID: "*", Values: entryValues(env)}
		if t.cfg.MaxLenApprox > 0 {
			args.MaxLen = t.cfg.MaxLenApprox
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.metrics.publishErrors.Add(uint64(len(envs)))
		return err
	}
	t.metrics.published.Add(uint64(len(envs)))
	return nil
}

// Subscribe reads the destination's stream as one consumer of group.
// Entries are sharded across workers by sender URI so one sender's
// envelopes are handled in order.
func (t *transport) Subscribe(ctx context.Context, destination, group string, handler func(xmal.Delivery)) (xmal.Subscription, error) {
	if t.closed.Load() {
		return nil, ErrTransportClosed
	}
	if destination == "" {
		return nil, xmal.ErrInvalidDestination
	}
	if t.cfg.Group != "" {
		group = t.cfg.Group
	}
	stream := t.streamKey(destination)

	if t.cfg.AutoCreate {
		err := t.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("redisstream: create group %s on %s: %w", group, stream, err)
		}
	}

	r := newReader(ctx, t, stream, group, handler)
	t.readersMu.Lock()
	t.readers[r] = struct{}{}
	t.readersMu.Unlock()
	return r, nil
}

// Close stops all readers and closes the client.
func (t *transport) Close(_ context.Context) error {
	if t.closed.Swap(true) {
		return nil
	}
	t.readersMu.Lock()
	readers := make([]*reader, 0, len(t.readers))
	for r := range t.readers {
		readers = append(readers, r)
	}
	t.readersMu.Unlock()
	for _, r := range readers {
		_ = r.Close()
	}
	return t.client.Close()
}

// Stats returns current transport metrics.
func (t *transport) Stats() Stats {
	m := &t.metrics
	return Stats{
		Published:     m.published.Load(),
		Consumed:      m.consumed.Load(),
		Claimed:       m.claimed.Load(),
		Acked:         m.acked.Load(),
		Nacked:        m.nacked.Load(),
		DeadLettered:  m.deadLettered.Load(),
		PublishErrors: m.publishErrors.Load(),
		ReadErrors:    m.readErrors.Load(),
	}
}

// reader is one subscription: a poller, an optional claim loop for entries
// stuck on dead consumers, and the worker shards they feed.
type reader struct {
	t      *transport
	stream string
	group  string

	ctx    context.Context
	cancel context.CancelFunc
	shards []chan *delivery

	producers sync.WaitGroup
	workers   sync.WaitGroup
	once      sync.Once
}

func newReader(ctx context.Context, t *transport, stream, group string, handler func(xmal.Delivery)) *reader {
	r := &reader{t: t, stream: stream, group: group, shards: make([]chan *delivery, t.cfg.Concurrency)}
	r.ctx, r.cancel = context.WithCancel(ctx)

	for i := range r.shards {
		r.shards[i] = make(chan *delivery, 2)
		r.workers.Add(1)
		go func(work <-chan *delivery) {
			defer r.workers.Done()
			for d := range work {
				handler(d)
			}
		}(r.shards[i])
	}

	r.producers.Add(1)
	go func() {
		defer r.producers.Done()
		r.poll()
	}()
	if t.cfg.ClaimMinIdle > 0 {
		r.producers.Add(1)
		go func() {
			defer r.producers.Done()
			r.claim()
		}()
	}
	return r
}

// Close stops reading and waits for in-flight handlers.
func (r *reader) Close() error {
	r.once.Do(func() {
		r.cancel()
		r.producers.Wait()
		for _, ch := range r.shards {
			close(ch)
		}
		r.workers.Wait()
		r.t.readersMu.Lock()
		delete(r.t.readers, r)
		r.t.readersMu.Unlock()
	})
	return nil
}

// poll reads new entries with XREADGROUP, backing off on errors.
func (r *reader) poll() {
	args := &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.t.cfg.Consumer,
		Streams:  []string{r.stream, ">"},
		Count:    int64(r.t.cfg.BatchSize),
		Block:    r.t.cfg.Block,
	}
	const minBackoff, maxBackoff = 100 * time.Millisecond, 5 * time.Second
	backoff := minBackoff

	for r.ctx.Err() == nil {
		res, err := r.t.client.XReadGroup(r.ctx, args).Result()
		switch {
		case err == nil:
			backoff = minBackoff
			for _, xs := range res {
				for _, entry := range xs.Messages {
					if !r.dispatch(entry) {
						return
					}
				}
			}
		case errors.Is(err, redis.Nil):
			// block timeout
		case r.ctx.Err() != nil:
			return
		default:
			r.t.metrics.readErrors.Add(1)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
				backoff = min(backoff*2, maxBackoff)
			case <-r.ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// claim periodically takes over entries idle longer than ClaimMinIdle,
// left pending by consumers that died before acknowledging them.
func (r *reader) claim() {
	ticker := time.NewTicker(r.t.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}

		entries, _, err := r.t.client.XAutoClaim(r.ctx, &redis.XAutoClaimArgs{
			Stream:   r.stream,
			Group:    r.group,
			Consumer: r.t.cfg.Consumer,
			MinIdle:  r.t.cfg.ClaimMinIdle,
			Start:    "0-0",
			Count:    int64(r.t.cfg.ClaimBatch),
		}).Result()
		if err != nil {
			if r.ctx.Err() == nil {
				r.t.metrics.readErrors.Add(1)
			}
			continue
		}
		r.t.metrics.claimed.Add(uint64(len(entries)))
		for _, entry := range entries {
			if !r.dispatch(entry) {
				return
			}
		}
	}
}

// dispatch hands one entry to the worker owning its sender. It reports
// false once the reader is closing.
func (r *reader) dispatch(entry redis.XMessage) bool {
	d := &delivery{t: r.t, stream: r.stream, group: r.group, id: entry.ID, env: decodeEnvelope(entry.ID, entry.Values)}
	r.t.metrics.consumed.Add(1)

	shard := r.shards[murmur3.Sum32([]byte(d.env.From))%uint32(len(r.shards))]
	select {
	case shard <- d:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	if !strings.EqualFold(res, "PONG") {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}
	return nil
}
