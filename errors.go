package xmal

import (
	"errors"
	"fmt"
)

type ErrUnknownTransport struct{ name string }

func (e ErrUnknownTransport) Error() string { return fmt.Sprintf("unknown transport: %s", e.name) }

type ErrUnknownCodec struct{ name string }

func (e ErrUnknownCodec) Error() string { return fmt.Sprintf("unknown codec: %s", e.name) }

var (
	ErrEndpointClosed              = errors.New("xmal: endpoint closed")
	ErrNoTransportConfigured       = errors.New("xmal: no transport configured")
	ErrInvalidDestination          = errors.New("xmal: empty destination uri")
	ErrDestinationUnknown          = errors.New("xmal: destination unknown")
	ErrResponseTimeout             = errors.New("xmal: no response before deadline")
	ErrNoBroker                    = errors.New("xmal: endpoint does not host a broker")
	ErrReplyNotAllowed             = errors.New("xmal: reply not allowed at this stage")
	ErrHandlerPanic                = errors.New("xmal: handler panic")
	ErrObserverPoolShutdownTimeout = errors.New("xmal: observer pool shutdown timeout")
	ErrDefaultEndpointNotSet       = errors.New("xmal: default endpoint not initialized")
)
