package natscore

import (
	"context"
	"sync"

	"github.com/trickstertwo/xmal"
)

// delivery implements xmal.Delivery. NATS core has no server-side
// acknowledgement, so Nack requeues locally on the same worker queue.
type delivery struct {
	t        *transport
	env      *xmal.Envelope
	queue    chan *delivery
	attempts int

	once sync.Once
}

func (d *delivery) Envelope() *xmal.Envelope {
	return d.env
}

func (d *delivery) Ack(_ context.Context) error {
	d.once.Do(func() { d.t.metrics.acked.Add(1) })
	return nil
}

// Nack requeues the envelope until MaxRedeliveries is reached, then drops it.
// The handler that nacks runs on the queue's worker, so the requeue must not
// block.
func (d *delivery) Nack(_ context.Context, _ error) error {
	d.once.Do(func() {
		d.t.metrics.nacked.Add(1)
		if d.attempts >= d.t.cfg.MaxRedeliveries {
			d.t.metrics.dropped.Add(1)
			return
		}
		next := &delivery{t: d.t, env: d.env, queue: d.queue, attempts: d.attempts + 1}
		select {
		case d.queue <- next:
			d.t.metrics.redelivered.Add(1)
		default:
			d.t.metrics.dropped.Add(1)
		}
	})
	return nil
}
