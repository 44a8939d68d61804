package broker

import (
	"fmt"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/message"
)

// NotifyBody is the body of one NOTIFY message.
type NotifyBody struct {
	SubscriptionID string
	Updates        element.UpdateHeaderList
	Lists          []element.Sequence
}

// Body lays the notify out as [Identifier, UpdateHeaderList, lists...].
func (n *NotifyBody) Body() []element.Element {
	body := make([]element.Element, 0, 2+len(n.Lists))
	updates := n.Updates
	body = append(body, element.NewIdentifier(n.SubscriptionID), &updates)
	for _, l := range n.Lists {
		if l == nil {
			body = append(body, nil)
			continue
		}
		body = append(body, l)
	}
	return body
}

// PublishBody returns the body of a PUBLISH message: [UpdateHeaderList, lists...].
func PublishBody(updates element.UpdateHeaderList, lists ...element.Sequence) []element.Element {
	body := make([]element.Element, 0, 1+len(lists))
	body = append(body, &updates)
	for _, l := range lists {
		if l == nil {
			body = append(body, nil)
			continue
		}
		body = append(body, l)
	}
	return body
}

// ParsePublish splits a decoded PUBLISH body.
func ParsePublish(m *message.Message) (element.UpdateHeaderList, []element.Sequence, error) {
	if len(m.Body) == 0 {
		return nil, nil, fmt.Errorf("%w: empty publish body", message.ErrBodyMismatch)
	}
	updates, err := updateList(m.Body[0])
	if err != nil {
		return nil, nil, err
	}
	lists, err := sequences(m.Body[1:])
	return updates, lists, err
}

// ParseNotify splits a decoded NOTIFY body.
func ParseNotify(m *message.Message) (*NotifyBody, error) {
	if len(m.Body) < 2 {
		return nil, fmt.Errorf("%w: notify body has %d elements", message.ErrBodyMismatch, len(m.Body))
	}
	id, ok := m.Body[0].(*element.Identifier)
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: subscription id is %T", message.ErrBodyMismatch, m.Body[0])
	}
	updates, err := updateList(m.Body[1])
	if err != nil {
		return nil, err
	}
	lists, err := sequences(m.Body[2:])
	if err != nil {
		return nil, err
	}
	return &NotifyBody{SubscriptionID: string(*id), Updates: updates, Lists: lists}, nil
}

func updateList(e element.Element) (element.UpdateHeaderList, error) {
	switch v := e.(type) {
	case nil:
		return nil, nil
	case *element.UpdateHeaderList:
		return *v, nil
	}
	return nil, fmt.Errorf("%w: update headers are %T", message.ErrBodyMismatch, e)
}

func sequences(body []element.Element) ([]element.Sequence, error) {
	out := make([]element.Sequence, len(body))
	for i, e := range body {
		if e == nil {
			continue
		}
		s, ok := e.(element.Sequence)
		if !ok {
			return nil, fmt.Errorf("%w: update list %d is %T", message.ErrBodyMismatch, i, e)
		}
		out[i] = s
	}
	return out, nil
}
