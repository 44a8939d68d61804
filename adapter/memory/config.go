package memory

import "time"

// DefaultNetwork is the hub endpoints join when Config.Network is empty.
const DefaultNetwork = "default"

// Config configures the in-process transport.
type Config struct {
	// Network names the hub. Transports on the same network reach each
	// other's endpoints.
	Network string
	// BufferSize is the queue size of each worker shard.
	BufferSize int
	// Concurrency is the number of workers per subscription. Envelopes are
	// sharded across them by sender URI.
	Concurrency int
	// RedeliveryDelay postpones the requeue of a nacked envelope.
	RedeliveryDelay time.Duration
	// MaxRedeliveries bounds requeues per envelope; later Nacks drop it.
	MaxRedeliveries int
	// AssignIDs gives envelopes without an ID a transport-local one.
	AssignIDs bool
}

func defaults() Config {
	return Config{
		Network:         DefaultNetwork,
		BufferSize:      1024,
		Concurrency:     4,
		MaxRedeliveries: 3,
		AssignIDs:       true,
	}
}

// normalize fills unusable fields from defaults.
func (c Config) normalize() Config {
	d := defaults()
	if c.Network == "" {
		c.Network = d.Network
	}
	if c.BufferSize < 1 {
		c.BufferSize = d.BufferSize
	}
	if c.Concurrency < 1 {
		c.Concurrency = d.Concurrency
	}
	c.MaxRedeliveries = max(0, c.MaxRedeliveries)
	return c
}

// ConfigFromMap reads the factory map. Numbers may be any Go integer type
// or float64, and durations time.Duration, a string such as "250ms", or
// float64 nanoseconds.
func ConfigFromMap(m map[string]any) Config {
	c := defaults()
	if v, ok := m["network"].(string); ok && v != "" {
		c.Network = v
	}
	if v, ok := intValue(m["buffer_size"]); ok {
		c.BufferSize = v
	}
	if v, ok := intValue(m["concurrency"]); ok {
		c.Concurrency = v
	}
	if v, ok := intValue(m["max_redeliveries"]); ok {
		c.MaxRedeliveries = v
	}
	if v, ok := durationValue(m["redelivery_delay"]); ok {
		c.RedeliveryDelay = v
	}
	if v, ok := m["assign_ids"].(bool); ok {
		c.AssignIDs = v
	}
	return c.normalize()
}

// toMap is the inverse of ConfigFromMap. Zero fields are left out so the
// factory defaults apply.
func (c Config) toMap() map[string]any {
	m := map[string]any{"assign_ids": true}
	if c.Network != "" {
		m["network"] = c.Network
	}
	if c.BufferSize > 0 {
		m["buffer_size"] = c.BufferSize
	}
	if c.Concurrency > 0 {
		m["concurrency"] = c.Concurrency
	}
	if c.RedeliveryDelay > 0 {
		m["redelivery_delay"] = c.RedeliveryDelay
	}
	if c.MaxRedeliveries > 0 {
		m["max_redeliveries"] = c.MaxRedeliveries
	}
	return m
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func durationValue(v any) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case float64:
		return time.Duration(d), true
	case string:
		p, err := time.ParseDuration(d)
		return p, err == nil
	}
	return 0, false
}
