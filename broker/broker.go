// Package broker keeps publisher and subscription state for PUBSUB
// interactions and turns published updates into per-subscriber notifies.
package broker

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/message"
)

var (
	ErrInvalidSubscription = errors.New("broker: subscription without id")
	ErrEmptyURI            = errors.New("broker: empty endpoint uri")
)

// KeyCountMismatch is the error text of a publish whose key values do not
// line up with the registered key names.
const KeyCountMismatch = "The number of published keys does not match!"

// Publisher is the record kept per publishing endpoint.
type Publisher struct {
	URI      string
	QoS      message.QoSLevel
	Domain   []string
	KeyNames []string
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// Broker is safe for concurrent use; mutations are serialized and publish
// sees a consistent view.
type Broker struct {
	mu         sync.RWMutex
	publishers map[string]*Publisher
	// subscriber uri -> subscription id -> subscription
	subs   map[string]map[string]*Subscription
	logger *xlog.Logger
}

func New(opts ...Option) *Broker {
	b := &Broker{
		publishers: make(map[string]*Publisher),
		subs:       make(map[string]map[string]*Subscription),
		logger:     xlog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// PublishRegister records uri as a publisher of keyNames within domain,
// replacing any earlier registration.
func (b *Broker) PublishRegister(uri string, qos message.QoSLevel, domain, keyNames []string) error {
	if uri == "" {
		return ErrEmptyURI
	}
	p := &Publisher{URI: uri, QoS: qos, Domain: slices.Clone(domain), KeyNames: slices.Clone(keyNames)}
	b.mu.Lock()
	b.publishers[uri] = p
	b.mu.Unlock()
	b.logger.Debug().Str("publisher", uri).Str("keys", fmt.Sprint(keyNames)).Msg("publisher registered")
	return nil
}

// PublishDeregister forgets the publisher. Unknown publishers are ignored.
func (b *Broker) PublishDeregister(uri string) {
	b.mu.Lock()
	delete(b.publishers, uri)
	b.mu.Unlock()
	b.logger.Debug().Str("publisher", uri).Msg("publisher deregistered")
}

// Register adds sub for subscriberURI, replacing one with the same id.
func (b *Broker) Register(subscriberURI string, sub *element.Subscription) error {
	if subscriberURI == "" {
		return ErrEmptyURI
	}
	if sub == nil || sub.SubscriptionID == "" {
		return ErrInvalidSubscription
	}
	s := newSubscription(subscriberURI, sub)
	b.mu.Lock()
	m, ok := b.subs[subscriberURI]
	if !ok {
		m = make(map[string]*Subscription)
		b.subs[subscriberURI] = m
	}
	m[s.ID] = s
	b.mu.Unlock()
	b.logger.Debug().Str("subscriber", subscriberURI).Str("subscription", s.ID).Msg("subscription registered")
	return nil
}

// Deregister removes the named subscriptions of subscriberURI and returns how many existed.
func (b *Broker) Deregister(subscriberURI string, ids ...string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[subscriberURI]
	n := 0
	for _, id := range ids {
		if _, ok := m[id]; ok {
			delete(m, id)
			n++
		}
	}
	if len(m) == 0 {
		delete(b.subs, subscriberURI)
	}
	return n
}

// RemoveEndpoint drops every record owned by uri, as on connection loss.
func (b *Broker) RemoveEndpoint(uri string) {
	b.mu.Lock()
	delete(b.publishers, uri)
	delete(b.subs, uri)
	b.mu.Unlock()
}

// CheckPublish validates a publish batch against the publisher's registration.
func (b *Broker) CheckPublish(h *message.Header, updates element.UpdateHeaderList) (*Publisher, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checkPublish(h, updates)
}

func (b *Broker) checkPublish(h *message.Header, updates element.UpdateHeaderList) (*Publisher, error) {
	p, ok := b.publishers[h.URIFrom]
	if !ok {
		return nil, message.NewStandardError(message.IncorrectState, "Provider not registered as publisher")
	}
	for _, u := range updates {
		if !Covers(p.Domain, updateDomain(u, h)) {
			b.logger.Warn().Str("publisher", p.URI).Msg("publish outside registered domain rejected")
			return nil, message.NewStandardError(message.Unknown, "Provider not allowed to publish to the domain")
		}
		if u == nil || len(u.KeyValues) != len(p.KeyNames) {
			b.logger.Warn().Str("publisher", p.URI).Msg(KeyCountMismatch)
			return nil, message.NewStandardError(message.Unknown, KeyCountMismatch)
		}
	}
	return p, nil
}

// Publish checks the batch, then builds the notifies for every matching
// subscription, keyed by subscriber URI. Subscribers without a match are absent.
func (b *Broker) Publish(h *message.Header, updates element.UpdateHeaderList, lists []element.Sequence) (map[string][]NotifyBody, error) {
	for i, l := range lists {
		if l != nil && l.Len() != len(updates) {
			return nil, message.NewStandardError(message.Unknown,
				fmt.Sprintf("update list %d has %d entries for %d updates", i, l.Len(), len(updates)))
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	p, err := b.checkPublish(h, updates)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]NotifyBody)
	for _, uri := range sortedKeys(b.subs) {
		subs := b.subs[uri]
		for _, id := range sortedKeys(subs) {
			nb, err := subs[id].GenerateNotifyMessage(h, h.Domain.Strings(), updates, lists, p.KeyNames)
			if err != nil {
				return nil, err
			}
			if nb != nil {
				out[uri] = append(out[uri], *nb)
			}
		}
	}
	b.logger.Debug().
		Str("publisher", p.URI).
		Str("updates", fmt.Sprint(len(updates))).
		Str("subscribers", fmt.Sprint(len(out))).
		Msg("publish matched")
	return out, nil
}

// Publishers returns a copy of the publisher records.
func (b *Broker) Publishers() []Publisher {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Publisher, 0, len(b.publishers))
	for _, uri := range sortedKeys(b.publishers) {
		p := b.publishers[uri]
		out = append(out, Publisher{URI: p.URI, QoS: p.QoS, Domain: slices.Clone(p.Domain), KeyNames: slices.Clone(p.KeyNames)})
	}
	return out
}

// Subscriptions returns a copy of the subscription records.
func (b *Broker) Subscriptions() []Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Subscription
	for _, uri := range sortedKeys(b.subs) {
		for _, id := range sortedKeys(b.subs[uri]) {
			out = append(out, b.subs[uri][id].clone())
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
