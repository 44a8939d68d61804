package natscore

import (
	"fmt"
	"os"
	"time"
)

// Config for the NATS core transport.
type Config struct {
	// Connection
	URL           string
	Name          string
	Username      string
	Password      string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration

	// Subjects
	SubjectPrefix string // subject = SubjectPrefix + sanitized endpoint URI
	// StrictDestinations publishes as a request the receiving transport
	// answers on arrival, so a URI nobody listens on fails with
	// xmal.ErrDestinationUnknown.
	StrictDestinations bool
	PublishTimeout     time.Duration

	// Consumption
	Concurrency     int
	BufferSize      int
	MaxRedeliveries int
}

// Defaults returns a Config for a local server.
func Defaults() Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "xmal"
	}
	return Config{
		URL:                "nats://127.0.0.1:4222",
		Name:               fmt.Sprintf("xmal-%s-%d", hostname, os.Getpid()),
		MaxReconnects:      -1,
		ReconnectWait:      2 * time.Second,
		Timeout:            2 * time.Second,
		SubjectPrefix:      "xmal.",
		StrictDestinations: true,
		PublishTimeout:     2 * time.Second,
		Concurrency:        4,
		BufferSize:         256,
		MaxRedeliveries:    3,
	}
}

// Validate checks Config.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("config: url required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("config: concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("config: buffer_size must be >= 1, got %d", c.BufferSize)
	}
	if c.StrictDestinations && c.PublishTimeout <= 0 {
		return fmt.Errorf("config: publish_timeout must be > 0 with strict destinations")
	}
	if c.MaxRedeliveries < 0 {
		return fmt.Errorf("config: max_redeliveries must be >= 0, got %d", c.MaxRedeliveries)
	}
	return nil
}

// toMap converts Config to the generic map for the transport factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"url":              c.URL,
		"name":             c.Name,
		"username":         c.Username,
		"password":         c.Password,
		"token":            c.Token,
		"max_reconnects":   c.MaxReconnects,
		"reconnect_wait":   c.ReconnectWait,
		"timeout":          c.Timeout,
		"subject_prefix":   c.SubjectPrefix,
		"strict":           c.StrictDestinations,
		"publish_timeout":  c.PublishTimeout,
		"concurrency":      c.Concurrency,
		"buffer_size":      c.BufferSize,
		"max_redeliveries": c.MaxRedeliveries,
	}
}

// ConfigFromMap converts a generic map to Config, starting from Defaults.
// Durations may be given as time.Duration or as strings ("500ms").
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	str := func(k string, dst *string, allowEmpty bool) {
		if v, ok := m[k].(string); ok && (allowEmpty || v != "") {
			*dst = v
		}
	}
	num := func(k string, dst *int) {
		switch v := m[k].(type) {
		case int:
			*dst = v
		case int64:
			*dst = int(v)
		case float64:
			*dst = int(v)
		}
	}
	dur := func(k string, dst *time.Duration) {
		switch v := m[k].(type) {
		case time.Duration:
			*dst = v
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("url", &c.URL, false)
	str("name", &c.Name, false)
	str("username", &c.Username, true)
	str("password", &c.Password, true)
	str("token", &c.Token, true)
	str("subject_prefix", &c.SubjectPrefix, true)
	num("max_reconnects", &c.MaxReconnects)
	num("concurrency", &c.Concurrency)
	num("buffer_size", &c.BufferSize)
	num("max_redeliveries", &c.MaxRedeliveries)
	dur("reconnect_wait", &c.ReconnectWait)
	dur("timeout", &c.Timeout)
	dur("publish_timeout", &c.PublishTimeout)
	if v, ok := m["strict"].(bool); ok {
		c.StrictDestinations = v
	}
	return c
}
