package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xmal"
)

// task is one envelope queued for one consumer group.
type task struct {
	env      *xmal.Envelope
	shard    chan *task
	attempts int
}

type delivery struct {
	t       *Transport
	task    *task
	settled atomic.Bool
}

func (d *delivery) Envelope() *xmal.Envelope { return d.task.env }

func (d *delivery) Ack(context.Context) error {
	if !d.settled.Swap(true) {
		d.t.metrics.acked.Add(1)
	}
	return nil
}

// Nack puts the envelope back on its shard until MaxRedeliveries is
// reached. A full shard drops it.
func (d *delivery) Nack(context.Context, error) error {
	if d.settled.Swap(true) {
		return nil
	}
	m := &d.t.metrics
	m.nacked.Add(1)
	if d.task.attempts >= d.t.cfg.MaxRedeliveries {
		m.dropped.Add(1)
		return nil
	}
	d.task.attempts++
	m.redelivered.Add(1)

	if delay := d.t.cfg.RedeliveryDelay; delay > 0 {
		time.AfterFunc(delay, d.requeue)
		return nil
	}
	d.requeue()
	return nil
}

func (d *delivery) requeue() {
	select {
	case d.task.shard <- d.task:
	default:
		d.t.metrics.dropped.Add(1)
	}
}
