package xmal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"golang.org/x/sync/semaphore"

	"github.com/trickstertwo/xmal/broker"
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
	"github.com/trickstertwo/xmal/wire"
)

// URIScheme prefixes generated endpoint URIs.
const URIScheme = "malmem://"

// EndpointBuilder constructs Endpoint instances (Builder pattern).
type EndpointBuilder struct {
	uri string

	transportName string
	transportCfg  map[string]any
	transportInst Transport

	codecName string
	codecInst Codec
	registry  *element.Registry
	layouts   *message.Layouts

	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock
	ackTimeout  time.Duration
	syncTimeout time.Duration

	poolWorkers int
	poolBuffer  int

	hostBroker         bool
	notifyConcurrency  int
	handlerConcurrency int

	defaults headerDefaults
}

// NewEndpointBuilder returns a new builder with sensible defaults.
func NewEndpointBuilder() *EndpointBuilder {
	return &EndpointBuilder{
		codecName:   wire.Variable.Name(),
		ackTimeout:  5 * time.Second,
		syncTimeout: 30 * time.Second,
		poolWorkers: 4,
		poolBuffer:  1024,

		handlerConcurrency: 256,
		defaults: headerDefaults{
			qos:     message.BestEffort,
			session: message.Live,
		},
	}
}

// WithURI sets the address the endpoint listens on (default: malmem://<uuid>).
func (eb *EndpointBuilder) WithURI(uri string) *EndpointBuilder {
	eb.uri = uri
	return eb
}

func (eb *EndpointBuilder) WithTransport(name string, cfg map[string]any) *EndpointBuilder {
	eb.transportName = name
	eb.transportCfg = cfg
	return eb
}

// WithTransportInstance accepts a ready Transport. The endpoint does not
// close a transport it was given.
func (eb *EndpointBuilder) WithTransportInstance(t Transport) *EndpointBuilder {
	eb.transportInst = t
	return eb
}

// WithCodec selects a wire scheme by name: "fixed", "variable" or "split".
func (eb *EndpointBuilder) WithCodec(name string) *EndpointBuilder {
	eb.codecName = name
	return eb
}

func (eb *EndpointBuilder) WithCodecInstance(c Codec) *EndpointBuilder {
	eb.codecInst = c
	return eb
}

// WithRegistry sets the element registry used to decode abstract elements.
func (eb *EndpointBuilder) WithRegistry(r *element.Registry) *EndpointBuilder {
	eb.registry = r
	return eb
}

// WithLayouts sets the operation body layouts.
func (eb *EndpointBuilder) WithLayouts(l *message.Layouts) *EndpointBuilder {
	eb.layouts = l
	return eb
}

func (eb *EndpointBuilder) WithMiddleware(mw ...Middleware) *EndpointBuilder {
	eb.middlewares = append(eb.middlewares, mw...)
	return eb
}

func (eb *EndpointBuilder) WithObserver(obs ...Observer) *EndpointBuilder {
	for _, o := range obs {
		if o != nil {
			eb.observers = append(eb.observers, o)
		}
	}
	return eb
}

// WithObserverPool sizes the async observer pool.
func (eb *EndpointBuilder) WithObserverPool(workers, bufferSize int) *EndpointBuilder {
	if workers > 0 {
		eb.poolWorkers = workers
	}
	if bufferSize > 0 {
		eb.poolBuffer = bufferSize
	}
	return eb
}

func (eb *EndpointBuilder) WithLogger(l *xlog.Logger) *EndpointBuilder {
	eb.logger = l
	return eb
}

func (eb *EndpointBuilder) WithClock(c xclock.Clock) *EndpointBuilder {
	eb.clock = c
	return eb
}

func (eb *EndpointBuilder) WithAckTimeout(d time.Duration) *EndpointBuilder {
	if d > 0 {
		eb.ackTimeout = d
	}
	return eb
}

// WithTimeout bounds synchronous calls whose context has no deadline.
// Zero waits for the context alone.
func (eb *EndpointBuilder) WithTimeout(d time.Duration) *EndpointBuilder {
	if d >= 0 {
		eb.syncTimeout = d
	}
	return eb
}

// WithBroker makes the endpoint host a PUBSUB broker.
func (eb *EndpointBuilder) WithBroker() *EndpointBuilder {
	eb.hostBroker = true
	return eb
}

// WithNotifyConcurrency caps concurrent per-subscriber notify fan-out (0 = unbounded).
func (eb *EndpointBuilder) WithNotifyConcurrency(n int) *EndpointBuilder {
	if n >= 0 {
		eb.notifyConcurrency = n
	}
	return eb
}

// WithHandlerConcurrency caps provider handlers running at once (default:
// 256). Deliveries of new interactions wait for a free slot.
func (eb *EndpointBuilder) WithHandlerConcurrency(n int) *EndpointBuilder {
	if n > 0 {
		eb.handlerConcurrency = n
	}
	return eb
}

// WithDomain sets the domain stamped on initiated messages.
func (eb *EndpointBuilder) WithDomain(parts ...string) *EndpointBuilder {
	eb.defaults.domain = parts
	return eb
}

func (eb *EndpointBuilder) WithNetworkZone(zone string) *EndpointBuilder {
	eb.defaults.networkZone = zone
	return eb
}

func (eb *EndpointBuilder) WithSession(t message.SessionType, name string) *EndpointBuilder {
	eb.defaults.session = t
	eb.defaults.sessionName = name
	return eb
}

func (eb *EndpointBuilder) WithQoS(q message.QoSLevel) *EndpointBuilder {
	eb.defaults.qos = q
	return eb
}

func (eb *EndpointBuilder) WithPriority(p uint32) *EndpointBuilder {
	eb.defaults.priority = p
	return eb
}

func (eb *EndpointBuilder) WithAuthenticationID(id []byte) *EndpointBuilder {
	eb.defaults.authID = id
	return eb
}

// Build wires the endpoint and starts listening on its URI.
func (eb *EndpointBuilder) Build() (*Endpoint, error) {
	var (
		tr    Transport
		owned bool
		err   error
	)
	switch {
	case eb.transportInst != nil:
		tr = eb.transportInst
	case eb.transportName != "":
		tr, err = NewTransport(eb.transportName, eb.transportCfg)
		if err != nil {
			return nil, err
		}
		owned = true
	default:
		return nil, ErrNoTransportConfigured
	}

	reg := eb.registry
	if reg == nil {
		reg = element.NewRegistry()
	}
	layouts := eb.layouts
	if layouts == nil {
		layouts = message.NewLayouts()
	}

	cd := eb.codecInst
	if cd == nil {
		cd, err = NewCodec(eb.codecName, reg, layouts)
		if err != nil {
			return nil, err
		}
	}

	clk := eb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := eb.logger
	if lg == nil {
		lg = xlog.Default()
	}
	uri := eb.uri
	if uri == "" {
		uri = URIScheme + uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		uri:               uri,
		transport:         tr,
		ownsTransport:     owned,
		codec:             cd,
		registry:          reg,
		layouts:           layouts,
		clock:             clk,
		logger:            lg,
		ackTimeout:        eb.ackTimeout,
		syncTimeout:       eb.syncTimeout,
		defaults:          eb.defaults,
		transactions:      interaction.NewTransactions(lg),
		notifyConcurrency: eb.notifyConcurrency,
		handlerSlots:      semaphore.NewWeighted(int64(eb.handlerConcurrency)),
		handlers:          make(map[message.OperationKey]ProviderHandler),
		notifyListeners:   make(map[string]interaction.Listener),
		publishListeners:  make(map[message.OperationKey]interaction.Listener),
		observerPool:      NewObserverPool(eb.poolWorkers, eb.poolBuffer, lg),
		cancel:            cancel,
		metrics:           &endpointMetrics{},
	}
	if eb.hostBroker {
		e.broker = broker.New(broker.WithLogger(lg))
	}
	e.baseCtx = injectEndpoint(InjectAll(ctx, cd, lg, clk), e)

	// recovery always wraps the dispatcher first
	e.dispatch = Chain(RecoveryMiddleware()(e.OnMessageReceived), eb.middlewares...)

	hasLoggingObserver := false
	for _, o := range eb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		e.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range eb.observers {
		e.AddObserver(o)
	}

	if err := e.listen(); err != nil {
		cancel()
		_ = e.observerPool.Close(time.Second)
		if owned {
			_ = tr.Close(context.Background())
		}
		return nil, err
	}
	return e, nil
}

// New constructs an Endpoint via Builder and returns a close func for convenience.
func New(init func(b *EndpointBuilder)) (*Endpoint, func() error, error) {
	b := NewEndpointBuilder()
	if init != nil {
		init(b)
	}
	e, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return e.Close(context.Background()) }
	return e, closeFn, nil
}
