package xmal

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/trickstertwo/xlog"
)

// ObserverPool delivers endpoint events to observers on background
// workers, so a slow observer never holds up message dispatch. Events of
// one interaction (same peer and transaction id) go to the same worker and
// are seen in the order they happened. A full queue drops the event.
type ObserverPool struct {
	logger *xlog.Logger

	mu     sync.RWMutex // guards queues against Close
	queues []chan Event
	closed bool
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	processed atomic.Uint64
}

// NewObserverPool starts workers goroutines sharing bufferSize queued events.
func NewObserverPool(workers, bufferSize int, logger *xlog.Logger) *ObserverPool {
	workers = max(1, workers)
	perQueue := max(1, bufferSize/workers)

	p := &ObserverPool{logger: logger, queues: make([]chan Event, workers)}
	for i := range p.queues {
		q := make(chan Event, perQueue)
		p.queues[i] = q
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for ev := range q {
				p.deliver(ev)
			}
		}()
	}
	return p
}

// Notify queues e for observers without blocking.
func (p *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 {
		return
	}
	e.observers = observers

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queues[p.shard(e)] <- e:
	default:
		p.dropped.Add(1)
	}
}

func (p *ObserverPool) shard(e Event) int {
	if len(p.queues) == 1 {
		return 0
	}
	var tx [8]byte
	binary.BigEndian.PutUint64(tx[:], uint64(e.TransactionID))
	h := murmur3.New32()
	_, _ = h.Write([]byte(e.Peer))
	_, _ = h.Write(tx[:])
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *ObserverPool) deliver(e Event) {
	for _, obs := range e.observers {
		if obs != nil {
			p.call(obs, e)
		}
	}
	p.processed.Add(1)
}

func (p *ObserverPool) call(obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.Error().Err(fmt.Errorf("%v", r)).Str("event", string(e.Type)).Msg("xmal: observer panic (recovered)")
		}
	}()
	obs.OnEvent(e)
}

// Close stops accepting events and waits up to timeout for queued ones to
// be delivered.
func (p *ObserverPool) Close(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns current pool statistics.
func (p *ObserverPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := PoolStats{
		Dropped:   p.dropped.Load(),
		Processed: p.processed.Load(),
		Workers:   len(p.queues),
	}
	for _, q := range p.queues {
		st.ActiveEvents += len(q)
		st.BufferSize += cap(q)
	}
	return st
}
