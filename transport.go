package xmal

// TransportFactory constructs a transport from its option table.
type TransportFactory func(cfg map[string]any) (Transport, error)

var transports factories[TransportFactory]

// RegisterTransport makes a transport adapter available by name. Adapters
// call it from init.
func RegisterTransport(name string, factory TransportFactory) error {
	return transports.register(name, factory, factory == nil)
}

// NewTransport constructs the transport registered as name.
func NewTransport(name string, cfg map[string]any) (Transport, error) {
	f, ok := transports.lookup(name)
	if !ok {
		return nil, ErrUnknownTransport{name: name}
	}
	return f(cfg)
}

// Transports lists the registered transport names.
func Transports() []string { return transports.names() }
