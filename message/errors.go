package message

import (
	"errors"
	"fmt"

	"github.com/trickstertwo/xmal/element"
)

var (
	ErrBodyMismatch = errors.New("message: body does not match layout")
	ErrNotError     = errors.New("message: not an error message")
	ErrNilHeader    = errors.New("message: nil header")
)

// MAL standard error codes.
const (
	DeliveryFailed       uint32 = 65536
	DeliveryTimedOut     uint32 = 65537
	DeliveryDelayed      uint32 = 65538
	DestinationUnknown   uint32 = 65539
	DestinationTransient uint32 = 65540
	DestinationLost      uint32 = 65541
	AuthenticationFail   uint32 = 65542
	AuthorisationFail    uint32 = 65543
	EncryptionFail       uint32 = 65544
	UnsupportedArea      uint32 = 65545
	UnsupportedOperation uint32 = 65546
	UnsupportedVersion   uint32 = 65547
	BadEncoding          uint32 = 65548
	Internal             uint32 = 65549
	Unknown              uint32 = 65550
	IncorrectState       uint32 = 65551
	TooMany              uint32 = 65552
	Shutdown             uint32 = 65553
)

var codeNames = map[uint32]string{
	DeliveryFailed:       "DELIVERY_FAILED",
	DeliveryTimedOut:     "DELIVERY_TIMEDOUT",
	DeliveryDelayed:      "DELIVERY_DELAYED",
	DestinationUnknown:   "DESTINATION_UNKNOWN",
	DestinationTransient: "DESTINATION_TRANSIENT",
	DestinationLost:      "DESTINATION_LOST",
	AuthenticationFail:   "AUTHENTICATION_FAIL",
	AuthorisationFail:    "AUTHORISATION_FAIL",
	EncryptionFail:       "ENCRYPTION_FAIL",
	UnsupportedArea:      "UNSUPPORTED_AREA",
	UnsupportedOperation: "UNSUPPORTED_OPERATION",
	UnsupportedVersion:   "UNSUPPORTED_VERSION",
	BadEncoding:          "BAD_ENCODING",
	Internal:             "INTERNAL",
	Unknown:              "UNKNOWN",
	IncorrectState:       "INCORRECT_STATE",
	TooMany:              "TOO_MANY",
	Shutdown:             "SHUTDOWN",
}

// CodeName returns the MAL name of a standard error code.
func CodeName(code uint32) string {
	if n, ok := codeNames[code]; ok {
		return n
	}
	return fmt.Sprintf("ERROR(%d)", code)
}

// StandardError is the structured error carried in an error message body.
type StandardError struct {
	Code      uint32
	ExtraInfo element.Element
}

// NewStandardError builds an error whose extra info is a String, or nil when msg is empty.
func NewStandardError(code uint32, msg string) *StandardError {
	e := &StandardError{Code: code}
	if msg != "" {
		e.ExtraInfo = element.NewString(msg)
	}
	return e
}

func (e *StandardError) Error() string {
	switch v := e.ExtraInfo.(type) {
	case nil:
		return fmt.Sprintf("mal: %s (%d)", CodeName(e.Code), e.Code)
	case *element.String:
		return fmt.Sprintf("mal: %s (%d): %s", CodeName(e.Code), e.Code, string(*v))
	case *element.Identifier:
		return fmt.Sprintf("mal: %s (%d): %s", CodeName(e.Code), e.Code, string(*v))
	default:
		return fmt.Sprintf("mal: %s (%d): %#x", CodeName(e.Code), e.Code, int64(v.ShortForm()))
	}
}

// Is matches another StandardError by code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Code == e.Code
}

// Body returns the error body: [UInteger code, abstract extra info].
func (e *StandardError) Body() []element.Element {
	return []element.Element{element.NewUInteger(e.Code), e.ExtraInfo}
}

// StandardErrorFrom extracts the error carried by an error message.
func StandardErrorFrom(m *Message) (*StandardError, error) {
	if m == nil || m.Header == nil || !m.Header.IsErrorMessage {
		return nil, ErrNotError
	}
	if len(m.Body) == 0 {
		return nil, fmt.Errorf("%w: empty error body", ErrBodyMismatch)
	}
	code, ok := m.Body[0].(*element.UInteger)
	if !ok || code == nil {
		return nil, fmt.Errorf("%w: error code is %T", ErrBodyMismatch, m.Body[0])
	}
	e := &StandardError{Code: uint32(*code)}
	if len(m.Body) > 1 {
		e.ExtraInfo = m.Body[1]
	}
	return e, nil
}

// AsStandardError converts err to a StandardError, mapping anything else to INTERNAL.
func AsStandardError(err error) *StandardError {
	var se *StandardError
	if errors.As(err, &se) {
		return se
	}
	return NewStandardError(Internal, err.Error())
}
