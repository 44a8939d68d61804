package redisstream

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config configures the Redis Streams transport. Each endpoint URI maps to
// one stream; the endpoint reads it through a consumer group.
type Config struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// StreamPrefix is prepended to endpoint URIs to form stream keys.
	StreamPrefix string
	// StrictDestinations fails publishes to streams that do not exist
	// with xmal.ErrDestinationUnknown.
	StrictDestinations bool

	// Group overrides the consumer group, which defaults to the
	// subscribing endpoint's URI.
	Group       string
	Consumer    string
	Concurrency int
	BatchSize   int
	Block       time.Duration
	AutoCreate  bool

	AutoDeleteOnAck bool
	DeadLetter      string
	MaxLenApprox    int64

	// Entries pending longer than ClaimMinIdle on any consumer are taken
	// over every ClaimInterval. Zero disables claiming.
	ClaimMinIdle  time.Duration
	ClaimBatch    int
	ClaimInterval time.Duration
}

// Defaults returns the configuration used for unset keys.
func Defaults() Config {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return Config{
		Addr:               "127.0.0.1:6379",
		StreamPrefix:       "xmal:",
		StrictDestinations: true,
		Consumer:           "xmal-" + host + "-" + strconv.Itoa(os.Getpid()),
		Concurrency:        8,
		BatchSize:          128,
		Block:              5 * time.Second,
		AutoCreate:         true,
		ClaimMinIdle:       time.Minute,
		ClaimBatch:         128,
		ClaimInterval:      15 * time.Second,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("redisstream: %s "+format, append([]any{field}, args...)...))
	}
	if c.Addr == "" {
		bad("addr", "is required")
	}
	if c.Consumer == "" {
		bad("consumer", "is required")
	}
	if c.Concurrency < 1 {
		bad("concurrency", "must be positive, got %d", c.Concurrency)
	}
	if c.BatchSize < 1 {
		bad("batch_size", "must be positive, got %d", c.BatchSize)
	}
	if c.Block <= 0 {
		bad("block", "must be positive, got %v", c.Block)
	}
	if c.ClaimMinIdle > 0 {
		if c.ClaimInterval <= 0 {
			bad("claim_interval", "must be positive when claim_min_idle is set")
		}
		if c.ClaimBatch < 1 {
			bad("claim_batch", "must be positive when claim_min_idle is set")
		}
	}
	return errors.Join(errs...)
}

// toMap converts Config to generic map for transport factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":               c.Addr,
		"username":           c.Username,
		"password":           c.Password,
		"db":                 c.DB,
		"tls":                c.TLS,
		"tls_server_name":    c.TLSServerName,
		"stream_prefix":      c.StreamPrefix,
		"strict":             c.StrictDestinations,
		"group":              c.Group,
		"consumer":           c.Consumer,
		"concurrency":        c.Concurrency,
		"batch_size":         c.BatchSize,
		"block":              c.Block,
		"auto_create":        c.AutoCreate,
		"auto_delete_on_ack": c.AutoDeleteOnAck,
		"dead_letter":        c.DeadLetter,
		"max_len_approx":     c.MaxLenApprox,
		"claim_min_idle":     c.ClaimMinIdle,
		"claim_batch":        c.ClaimBatch,
		"claim_interval":     c.ClaimInterval,
	}
}

// ConfigFromMap safely converts generic map to Config with defaults.
// Integers may arrive as int, int64 or float64 and durations as
// time.Duration or strings ("5s"), as decoded from TOML or JSON.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	str := func(k string, dst *string, allowEmpty bool) {
		if v, ok := m[k].(string); ok && (allowEmpty || v != "") {
			*dst = v
		}
	}
	num := func(k string) (int64, bool) {
		switch v := m[k].(type) {
		case int:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			return int64(v), true
		}
		return 0, false
	}
	positive := func(k string, dst *int) {
		if v, ok := num(k); ok && v > 0 {
			*dst = int(v)
		}
	}
	flag := func(k string, dst *bool) {
		if v, ok := m[k].(bool); ok {
			*dst = v
		}
	}
	dur := func(k string) (time.Duration, bool) {
		switch v := m[k].(type) {
		case time.Duration:
			return v, true
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				return d, true
			}
		}
		return 0, false
	}

	str("addr", &c.Addr, false)
	str("username", &c.Username, true)
	str("password", &c.Password, true)
	str("tls_server_name", &c.TLSServerName, true)
	str("stream_prefix", &c.StreamPrefix, true)
	str("group", &c.Group, false)
	str("consumer", &c.Consumer, false)
	str("dead_letter", &c.DeadLetter, true)

	if v, ok := num("db"); ok {
		c.DB = int(v)
	}
	positive("concurrency", &c.Concurrency)
	positive("batch_size", &c.BatchSize)
	positive("claim_batch", &c.ClaimBatch)
	if v, ok := num("max_len_approx"); ok && v > 0 {
		c.MaxLenApprox = v
	}

	flag("tls", &c.TLS)
	flag("strict", &c.StrictDestinations)
	flag("auto_create", &c.AutoCreate)
	flag("auto_delete_on_ack", &c.AutoDeleteOnAck)

	if v, ok := dur("block"); ok && v > 0 {
		c.Block = v
	}
	if v, ok := dur("claim_min_idle"); ok {
		c.ClaimMinIdle = v
	}
	if v, ok := dur("claim_interval"); ok && v > 0 {
		c.ClaimInterval = v
	}

	return c
}
