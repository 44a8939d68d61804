// Package config loads an endpoint description from TOML and applies it to
// an xmal.EndpointBuilder.
//
//	uri = "malmem://ground/tm"
//	codec = "split"
//	timeout = "10s"
//	domain = ["esa", "mission"]
//	broker = true
//
//	[transport]
//	name = "redis-streams"
//
//	[transport.options]
//	addr = "127.0.0.1:6379"
//	concurrency = 8
//
// Transport adapters register themselves on import; the program loading the
// file imports the ones it names.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/trickstertwo/xmal"
	"github.com/trickstertwo/xmal/message"
)

var ErrUnknownKeys = errors.New("config: unknown keys")

// Transport selects a registered transport and its options table.
type Transport struct {
	Name    string         `toml:"name"`
	Options map[string]any `toml:"options"`
}

// Observers sizes the async observer pool.
type Observers struct {
	Workers int `toml:"workers"`
	Buffer  int `toml:"buffer"`
}

// File is the decoded form of an endpoint file. Durations are Go duration
// strings.
type File struct {
	URI               string    `toml:"uri"`
	Codec             string    `toml:"codec"`
	AckTimeout        string    `toml:"ack_timeout"`
	Timeout           string    `toml:"timeout"`
	Broker            bool      `toml:"broker"`
	NotifyConcurrency int       `toml:"notify_concurrency"`
	Handlers          int       `toml:"handler_concurrency"`
	Domain            []string  `toml:"domain"`
	NetworkZone       string    `toml:"network_zone"`
	Session           string    `toml:"session"`
	SessionName       string    `toml:"session_name"`
	QoS               string    `toml:"qos"`
	Priority          int64     `toml:"priority"`
	AuthenticationID  string    `toml:"authentication_id"`
	Transport         Transport `toml:"transport"`
	Observers         Observers `toml:"observers"`

	meta toml.MetaData
}

// Load decodes the file at path.
func Load(path string) (*File, error) {
	var f File
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("load endpoint config: %w", err)
	}
	return f.checked(meta)
}

// Parse decodes TOML text.
func Parse(data string) (*File, error) {
	var f File
	meta, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint config: %w", err)
	}
	return f.checked(meta)
}

func (f *File) checked(meta toml.MetaData) (*File, error) {
	f.meta = meta
	var unknown []string
	for _, k := range meta.Undecoded() {
		// the options table belongs to the transport
		if len(k) > 2 && k[0] == "transport" && k[1] == "options" {
			continue
		}
		unknown = append(unknown, k.String())
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(unknown, ", "))
	}
	return f, nil
}

func (f *File) defined(key ...string) bool {
	return f.meta.IsDefined(key...)
}

// Apply sets every key present in the file on b. Keys left out keep the
// builder's values.
func (f *File) Apply(b *xmal.EndpointBuilder) error {
	if f.defined("uri") {
		b.WithURI(strings.TrimSpace(f.URI))
	}
	if f.defined("codec") {
		b.WithCodec(strings.TrimSpace(f.Codec))
	}
	if f.defined("ack_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(f.AckTimeout))
		if err != nil {
			return fmt.Errorf("parse ack_timeout: %w", err)
		}
		b.WithAckTimeout(d)
	}
	if f.defined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(f.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		b.WithTimeout(d)
	}
	if f.Broker {
		b.WithBroker()
	}
	if f.defined("notify_concurrency") {
		b.WithNotifyConcurrency(f.NotifyConcurrency)
	}
	if f.defined("handler_concurrency") {
		if f.Handlers < 1 {
			return fmt.Errorf("config: handler_concurrency must be positive, got %d", f.Handlers)
		}
		b.WithHandlerConcurrency(f.Handlers)
	}
	if f.defined("domain") {
		b.WithDomain(f.Domain...)
	}
	if f.defined("network_zone") {
		b.WithNetworkZone(f.NetworkZone)
	}
	if f.defined("session") {
		s, err := parseSession(f.Session)
		if err != nil {
			return err
		}
		b.WithSession(s, f.SessionName)
	}
	if f.defined("qos") {
		q, err := parseQoS(f.QoS)
		if err != nil {
			return err
		}
		b.WithQoS(q)
	}
	if f.defined("priority") {
		if f.Priority < 0 || f.Priority > int64(^uint32(0)) {
			return fmt.Errorf("config: priority %d out of range", f.Priority)
		}
		b.WithPriority(uint32(f.Priority))
	}
	if f.defined("authentication_id") {
		b.WithAuthenticationID([]byte(f.AuthenticationID))
	}
	if f.defined("transport", "name") {
		opts := f.Transport.Options
		if opts == nil {
			opts = map[string]any{}
		}
		b.WithTransport(strings.TrimSpace(f.Transport.Name), opts)
	}
	if f.defined("observers") {
		b.WithObserverPool(f.Observers.Workers, f.Observers.Buffer)
	}
	return nil
}

// Build loads path and builds the endpoint it describes. extra runs after
// the file is applied, so code can inject a logger, clock or middleware.
func Build(path string, extra ...func(*xmal.EndpointBuilder)) (*xmal.Endpoint, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	b := xmal.NewEndpointBuilder()
	if err := f.Apply(b); err != nil {
		return nil, err
	}
	for _, fn := range extra {
		if fn != nil {
			fn(b)
		}
	}
	return b.Build()
}

func parseSession(s string) (message.SessionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return message.Live, nil
	case "simulation":
		return message.Simulation, nil
	case "replay":
		return message.Replay, nil
	}
	return 0, fmt.Errorf("config: unknown session %q", s)
}

func parseQoS(s string) (message.QoSLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "best_effort", "besteffort":
		return message.BestEffort, nil
	case "assured":
		return message.Assured, nil
	case "queued":
		return message.Queued, nil
	case "timely":
		return message.Timely, nil
	}
	return 0, fmt.Errorf("config: unknown qos %q", s)
}
