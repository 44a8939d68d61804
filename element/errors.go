package element

import (
	"errors"
	"fmt"
)

var (
	ErrNotRegistered  = errors.New("element: short form not registered")
	ErrRegistrySealed = errors.New("element: registry is sealed")
	ErrNilFactory     = errors.New("element: factory must not be nil")
	ErrNotAttribute   = errors.New("element: value is not an attribute")
)

// ErrDuplicate reports a second registration for the same short form.
type ErrDuplicate struct{ sf ShortForm }

func (e ErrDuplicate) Error() string {
	return fmt.Sprintf("element: short form %#x already registered", int64(e.sf))
}
