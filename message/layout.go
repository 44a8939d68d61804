package message

import (
	"sync"

	"github.com/trickstertwo/xmal/element"
)

// Slot is one body position: a concrete short form, or Abstract when the
// element travels with its own short form.
type Slot struct {
	ShortForm element.ShortForm
	Abstract  bool
}

// Concrete returns a slot holding an element of type sf.
func Concrete(sf element.ShortForm) Slot { return Slot{ShortForm: sf} }

// AbstractSlot is a slot whose type is resolved through the registry.
var AbstractSlot = Slot{Abstract: true}

// Layout describes the body of one stage. When Variadic is set, abstract
// elements follow the declared slots until the message bytes are exhausted.
type Layout struct {
	Slots    []Slot
	Variadic bool
}

func (l Layout) slot(i int) (Slot, bool) {
	if i < len(l.Slots) {
		return l.Slots[i], true
	}
	return AbstractSlot, l.Variadic
}

var (
	// DefaultLayout applies to stages without a declared layout.
	DefaultLayout = Layout{Variadic: true}

	// ErrorLayout is the body of every error message.
	ErrorLayout = Layout{Slots: []Slot{Concrete(element.AttributeShortForm(element.UIntegerType)), AbstractSlot}}

	emptyLayout = Layout{}

	pubSubLayouts = map[Stage]Layout{
		RegisterStage:             {Slots: []Slot{Concrete(element.SubscriptionShortForm)}},
		RegisterAckStage:          emptyLayout,
		PublishRegisterStage:      {Slots: []Slot{Concrete(element.IdentifierListShortForm)}},
		PublishRegisterAckStage:   emptyLayout,
		PublishStage:              {Slots: []Slot{Concrete(element.UpdateHeaderListShortForm)}, Variadic: true},
		NotifyStage:               {Slots: []Slot{Concrete(element.AttributeShortForm(element.IdentifierType)), Concrete(element.UpdateHeaderListShortForm)}, Variadic: true},
		DeregisterStage:           {Slots: []Slot{Concrete(element.IdentifierListShortForm)}},
		DeregisterAckStage:        emptyLayout,
		PublishDeregisterStage:    emptyLayout,
		PublishDeregisterAckStage: emptyLayout,
	}
)

type layoutKey struct {
	op    OperationKey
	typ   InteractionType
	stage Stage
}

// Layouts maps operation stages to body layouts.
type Layouts struct {
	mu sync.RWMutex
	m  map[layoutKey]Layout
}

func NewLayouts() *Layouts {
	return &Layouts{m: make(map[layoutKey]Layout)}
}

// Register declares the body layout of one stage of op.
func (l *Layouts) Register(op OperationKey, typ InteractionType, stage Stage, layout Layout) {
	l.mu.Lock()
	l.m[layoutKey{op, typ, stage}] = layout
	l.mu.Unlock()
}

// Lookup returns the layout for h. Error messages and PUBSUB stages use the
// built-in layouts; a nil receiver only knows the built-ins.
func (l *Layouts) Lookup(h *Header) Layout {
	if h.IsErrorMessage {
		return ErrorLayout
	}
	if h.InteractionType == PubSub {
		if layout, ok := pubSubLayouts[h.InteractionStage]; ok {
			return layout
		}
	}
	if l == nil {
		return DefaultLayout
	}
	l.mu.RLock()
	layout, ok := l.m[layoutKey{h.OperationKey(), h.InteractionType, h.InteractionStage}]
	l.mu.RUnlock()
	if !ok {
		return DefaultLayout
	}
	return layout
}
