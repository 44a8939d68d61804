package message

import (
	"bytes"
	"fmt"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/wire"
)

// Message is a header plus an ordered body of elements. Body entries may be nil.
type Message struct {
	Header *Header
	Body   []element.Element
}

func New(h *Header, body ...element.Element) *Message {
	return &Message{Header: h, Body: body}
}

// Element returns body element i, or nil when out of range.
func (m *Message) Element(i int) element.Element {
	if i < 0 || i >= len(m.Body) {
		return nil
	}
	return m.Body[i]
}

func (m *Message) String() string {
	if m.Header == nil {
		return "message(<nil header>)"
	}
	h := m.Header
	return fmt.Sprintf("message(%s %s tx=%d %s -> %s op=%s err=%t body=%d)",
		h.InteractionType, h.StageName(), h.TransactionID, h.URIFrom, h.URITo,
		h.OperationKey(), h.IsErrorMessage, len(m.Body))
}

// Encode writes the header and the body, following the layout of the header's stage.
func Encode(m *Message, scheme wire.Scheme, layouts *Layouts) ([]byte, error) {
	if m.Header == nil {
		return nil, ErrNilHeader
	}
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf, scheme)
	if err := enc.EncodeElement(m.Header); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	layout := layouts.Lookup(m.Header)
	if len(m.Body) < len(layout.Slots) {
		return nil, fmt.Errorf("%w: %s expects %d elements, got %d",
			ErrBodyMismatch, m.Header.StageName(), len(layout.Slots), len(m.Body))
	}
	for i, e := range m.Body {
		slot, ok := layout.slot(i)
		if !ok {
			return nil, fmt.Errorf("%w: %s takes %d elements, got %d",
				ErrBodyMismatch, m.Header.StageName(), len(layout.Slots), len(m.Body))
		}
		var err error
		if slot.Abstract {
			err = enc.EncodeAbstractElement(e)
		} else {
			if e != nil && e.ShortForm() != slot.ShortForm {
				return nil, fmt.Errorf("%w: element %d is %#x, want %#x",
					ErrBodyMismatch, i, int64(e.ShortForm()), int64(slot.ShortForm))
			}
			err = enc.EncodeNullableElement(e)
		}
		if err != nil {
			return nil, fmt.Errorf("encode body element %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Decode reads one message encoded by Encode with the same scheme.
func Decode(data []byte, scheme wire.Scheme, reg *element.Registry, layouts *Layouts) (*Message, error) {
	dec := wire.NewDecoder(data, scheme, reg)
	h := &Header{}
	if _, err := dec.DecodeElement(h); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	layout := layouts.Lookup(h)
	m := &Message{Header: h, Body: make([]element.Element, 0, len(layout.Slots))}
	for i, slot := range layout.Slots {
		e, err := decodeSlot(dec, slot)
		if err != nil {
			return nil, fmt.Errorf("decode body element %d: %w", i, err)
		}
		m.Body = append(m.Body, e)
	}
	for layout.Variadic && dec.Remaining() > 0 {
		e, err := dec.DecodeAbstractElement()
		if err != nil {
			return nil, fmt.Errorf("decode body element %d: %w", len(m.Body), err)
		}
		m.Body = append(m.Body, e)
	}
	if dec.Remaining() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s body", ErrBodyMismatch, dec.Remaining(), h.StageName())
	}
	return m, nil
}

func decodeSlot(dec *wire.Decoder, slot Slot) (element.Element, error) {
	if slot.Abstract {
		return dec.DecodeAbstractElement()
	}
	empty, err := dec.Create(slot.ShortForm)
	if err != nil {
		return nil, err
	}
	return dec.DecodeNullableElement(empty)
}
