package broker

import (
	"slices"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/message"
)

// Filter is one key constraint of a subscription. No values, or a "*"
// among them, accepts any value.
type Filter struct {
	Key    string
	Values element.AttributeList
}

func (f Filter) acceptsAny() bool {
	return (&element.SubscriptionFilter{Name: element.Identifier(f.Key), Values: f.Values}).AcceptsAny()
}

func (f Filter) accepts(v element.Attribute) bool {
	if f.acceptsAny() {
		return true
	}
	for _, want := range f.Values {
		if element.AttributeEqual(want, v) {
			return true
		}
	}
	return false
}

// Subscription is the record kept per (subscriber, subscription id).
type Subscription struct {
	SubscriberURI string
	ID            string
	Domain        []string
	Filters       []Filter
}

func newSubscription(subscriberURI string, sub *element.Subscription) *Subscription {
	s := &Subscription{
		SubscriberURI: subscriberURI,
		ID:            string(sub.SubscriptionID),
		Domain:        sub.Domain.Strings(),
	}
	for _, f := range sub.Filters {
		if f == nil {
			continue
		}
		s.Filters = append(s.Filters, Filter{Key: string(f.Name), Values: slices.Clone(f.Values)})
	}
	return s
}

func (s *Subscription) clone() Subscription {
	c := *s
	c.Domain = slices.Clone(s.Domain)
	c.Filters = slices.Clone(s.Filters)
	return c
}

// Matches reports whether an update with the given domain and named key
// values passes this subscription. A filter on a key the publisher does not
// publish never matches.
func (s *Subscription) Matches(domain []string, keys element.NamedValueList) bool {
	if !Covers(s.Domain, domain) {
		return false
	}
	for _, f := range s.Filters {
		v, ok := keys.Get(f.Key)
		if !ok || !f.accepts(v) {
			return false
		}
	}
	return true
}

// GenerateNotifyMessage selects the updates matching this subscription and
// the aligned entries of every body list. It returns nil when nothing matches.
func (s *Subscription) GenerateNotifyMessage(h *message.Header, domain []string, updates element.UpdateHeaderList,
	lists []element.Sequence, keyNames []string) (*NotifyBody, error) {
	var (
		matched []int
		headers element.UpdateHeaderList
	)
	for i, u := range updates {
		if u == nil || len(u.KeyValues) != len(keyNames) {
			return nil, message.NewStandardError(message.Unknown, KeyCountMismatch)
		}
		keys := make(element.NamedValueList, len(keyNames))
		for j, name := range keyNames {
			keys[j] = &element.NamedValue{Name: element.Identifier(name), Value: u.KeyValues[j]}
		}
		d := domain
		if len(u.Domain) > 0 {
			d = u.Domain.Strings()
		} else if d == nil && h != nil {
			d = h.Domain.Strings()
		}
		if s.Matches(d, keys) {
			matched = append(matched, i)
			headers = append(headers, u)
		}
	}
	if len(headers) == 0 {
		return nil, nil
	}
	nb := &NotifyBody{SubscriptionID: s.ID, Updates: headers, Lists: make([]element.Sequence, len(lists))}
	for j, l := range lists {
		if l != nil {
			nb.Lists[j] = l.Subset(matched)
		}
	}
	return nb, nil
}
