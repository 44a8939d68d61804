package xmal

import (
	"context"
	"sync"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
)

var (
	defaultEndpoint   *Endpoint
	defaultEndpointMu sync.RWMutex
)

// Default returns the process-wide endpoint installed by SetDefault or an
// adapter's Use.
func Default() (*Endpoint, error) {
	defaultEndpointMu.RLock()
	defer defaultEndpointMu.RUnlock()
	if defaultEndpoint == nil {
		return nil, ErrDefaultEndpointNotSet
	}
	return defaultEndpoint, nil
}

// SetDefault replaces the process-wide default endpoint.
func SetDefault(e *Endpoint) {
	if e == nil {
		panic("xmal: SetDefault called with nil Endpoint")
	}
	defaultEndpointMu.Lock()
	defaultEndpoint = e
	defaultEndpointMu.Unlock()
}

// Send is the Facade using the default endpoint.
func Send(ctx context.Context, to string, op message.OperationKey, body ...element.Element) error {
	e, err := Default()
	if err != nil {
		return err
	}
	return e.Send(ctx, to, op, body...)
}

// Submit is the Facade using the default endpoint.
func Submit(ctx context.Context, to string, op message.OperationKey, body ...element.Element) error {
	e, err := Default()
	if err != nil {
		return err
	}
	return e.Submit(ctx, to, op, body...)
}

// Request is the Facade using the default endpoint.
func Request(ctx context.Context, to string, op message.OperationKey, body ...element.Element) (*message.Message, error) {
	e, err := Default()
	if err != nil {
		return nil, err
	}
	return e.Request(ctx, to, op, body...)
}

// Invoke is the Facade using the default endpoint.
func Invoke(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (*message.Message, error) {
	e, err := Default()
	if err != nil {
		return nil, err
	}
	return e.Invoke(ctx, to, op, l, body...)
}

// Progress is the Facade using the default endpoint.
func Progress(ctx context.Context, to string, op message.OperationKey, l interaction.Listener, body ...element.Element) (*message.Message, error) {
	e, err := Default()
	if err != nil {
		return nil, err
	}
	return e.Progress(ctx, to, op, l, body...)
}

// Publish is the Facade using the default endpoint.
func Publish(ctx context.Context, brokerURI string, op message.OperationKey, updates element.UpdateHeaderList, lists ...element.Sequence) error {
	e, err := Default()
	if err != nil {
		return err
	}
	return e.Publish(ctx, brokerURI, op, updates, lists...)
}

// Handle is the Facade using the default endpoint.
func Handle(op message.OperationKey, h ProviderHandler) error {
	e, err := Default()
	if err != nil {
		return err
	}
	e.Handle(op, h)
	return nil
}
