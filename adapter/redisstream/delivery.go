package redisstream

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xmal"
)

// delivery is one stream entry read through a consumer group.
type delivery struct {
	t      *transport
	stream string
	group  string
	id     string
	env    *xmal.Envelope

	settled atomic.Bool
}

func (d *delivery) Envelope() *xmal.Envelope { return d.env }

// Ack removes the entry from the group's pending list. Only the first Ack
// or Nack takes effect.
func (d *delivery) Ack(ctx context.Context) error {
	if d.settled.Swap(true) {
		return nil
	}
	return d.ack(ctx)
}

func (d *delivery) ack(ctx context.Context) error {
	if err := d.t.client.XAck(ctx, d.stream, d.group, d.id).Err(); err != nil {
		return err
	}
	d.t.metrics.acked.Add(1)
	if d.t.cfg.AutoDeleteOnAck {
		_ = d.t.client.XDel(ctx, d.stream, d.id).Err()
	}
	return nil
}

// Nack copies the entry to the dead-letter stream and acknowledges it when
// one is configured. Without one the entry stays pending and is picked up
// again by the claim loop.
func (d *delivery) Nack(ctx context.Context, reason error) error {
	if d.settled.Swap(true) {
		return nil
	}
	d.t.metrics.nacked.Add(1)
	if d.t.cfg.DeadLetter == "" {
		return nil
	}

	vals := entryValues(d.env)
	vals["orig_stream"] = d.stream
	vals["orig_id"] = d.id
	if reason != nil {
		vals["error"] = reason.Error()
	}
	if err := d.t.client.XAdd(ctx, &redis.XAddArgs{Stream: d.t.cfg.DeadLetter, ID: "*", Values: vals}).Err(); err != nil {
		return err
	}
	d.t.metrics.deadLettered.Add(1)
	return d.ack(ctx)
}
