package xmal

import (
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/message"
	"github.com/trickstertwo/xmal/wire"
)

// BinaryCodec encodes messages with one wire scheme. Abstract body elements
// resolve through Registry; operation bodies follow Layouts.
type BinaryCodec struct {
	Scheme   wire.Scheme
	Registry *element.Registry
	Layouts  *message.Layouts
}

func (c BinaryCodec) Marshal(msg *message.Message) ([]byte, error) {
	return message.Encode(msg, c.Scheme, c.Layouts)
}

func (c BinaryCodec) Unmarshal(data []byte) (*message.Message, error) {
	return message.Decode(data, c.Scheme, c.Registry, c.Layouts)
}

func (c BinaryCodec) Name() string { return c.Scheme.Name() }

// CodecFactory constructs codecs via Factory pattern. The endpoint passes
// its element registry and body layouts.
type CodecFactory func(reg *element.Registry, layouts *message.Layouts) Codec

func schemeCodec(s wire.Scheme) CodecFactory {
	return func(reg *element.Registry, layouts *message.Layouts) Codec {
		return BinaryCodec{Scheme: s, Registry: reg, Layouts: layouts}
	}
}

var codecs = func() *factories[CodecFactory] {
	r := &factories[CodecFactory]{}
	for _, s := range []wire.Scheme{wire.Fixed, wire.Variable, wire.Split} {
		_ = r.register(s.Name(), schemeCodec(s), false)
	}
	return r
}()

// RegisterCodec registers a codec factory by name.
func RegisterCodec(name string, factory CodecFactory) error {
	return codecs.register(name, factory, factory == nil)
}

// NewCodec constructs a codec by name or returns ErrUnknownCodec.
func NewCodec(name string, reg *element.Registry, layouts *message.Layouts) (Codec, error) {
	f, ok := codecs.lookup(name)
	if !ok {
		return nil, ErrUnknownCodec{name: name}
	}
	return f(reg, layouts), nil
}

// Codecs lists the registered codec names.
func Codecs() []string { return codecs.names() }
