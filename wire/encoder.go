package wire

import (
	"bytes"
	"io"
	"math"
	"time"

	"github.com/trickstertwo/xmal/element"
)

var _ element.Encoder = (*Encoder)(nil)

// Encoder writes MAL values to w using one Scheme. It is not safe for
// concurrent use.
type Encoder struct {
	w      io.Writer
	scheme Scheme
	buf    []byte
}

// NewEncoder returns an encoder appending to w.
func NewEncoder(w io.Writer, scheme Scheme) *Encoder {
	if scheme == nil {
		scheme = Variable
	}
	return &Encoder{w: w, scheme: scheme, buf: make([]byte, 0, 16)}
}

// Marshal encodes a single element with scheme.
func Marshal(scheme Scheme, e element.Element) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf, scheme).EncodeElement(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Scheme returns the active scheme.
func (e *Encoder) Scheme() Scheme { return e.scheme }

func (e *Encoder) flush(b []byte, err error) error {
	if err != nil {
		return err
	}
	_, err = e.w.Write(b)
	e.buf = b[:0]
	return err
}

func (e *Encoder) EncodeBoolean(v bool) error {
	var c byte
	if v {
		c = 1
	}
	return e.flush(append(e.buf[:0], c), nil)
}

func (e *Encoder) EncodeOctet(v int8) error {
	return e.flush(append(e.buf[:0], byte(v)), nil)
}

func (e *Encoder) EncodeUOctet(v uint8) error {
	return e.flush(append(e.buf[:0], v), nil)
}

func (e *Encoder) EncodeShort(v int16) error {
	return e.flush(e.scheme.AppendSigned(e.buf[:0], int64(v), 16))
}

func (e *Encoder) EncodeUShort(v uint16) error {
	return e.flush(e.scheme.AppendUnsigned(e.buf[:0], uint64(v), 16))
}

func (e *Encoder) EncodeInteger(v int32) error {
	return e.flush(e.scheme.AppendSigned(e.buf[:0], int64(v), 32))
}

func (e *Encoder) EncodeUInteger(v uint32) error {
	return e.flush(e.scheme.AppendUnsigned(e.buf[:0], uint64(v), 32))
}

func (e *Encoder) EncodeLong(v int64) error {
	return e.flush(e.scheme.AppendSigned(e.buf[:0], v, 64))
}

func (e *Encoder) EncodeULong(v uint64) error {
	return e.flush(e.scheme.AppendUnsigned(e.buf[:0], v, 64))
}

// EncodeFloat writes the IEEE-754 bits through the signed 32-bit path.
func (e *Encoder) EncodeFloat(v float32) error {
	return e.EncodeInteger(int32(math.Float32bits(v)))
}

// EncodeDouble writes the IEEE-754 bits through the signed 64-bit path.
func (e *Encoder) EncodeDouble(v float64) error {
	return e.EncodeLong(int64(math.Float64bits(v)))
}

func (e *Encoder) EncodeString(v string) error {
	if uint64(len(v)) > math.MaxUint32 {
		return ErrStringTooLong
	}
	if err := e.flush(e.scheme.AppendLength(e.buf[:0], uint64(len(v)))); err != nil {
		return err
	}
	_, err := io.WriteString(e.w, v)
	return err
}

func (e *Encoder) EncodeBlob(v []byte) error {
	if err := e.flush(e.scheme.AppendLength(e.buf[:0], uint64(len(v)))); err != nil {
		return err
	}
	_, err := e.w.Write(v)
	return err
}

func (e *Encoder) EncodeIdentifier(v string) error { return e.EncodeString(v) }

func (e *Encoder) EncodeURI(v string) error { return e.EncodeString(v) }

// EncodeTime writes milliseconds since the Unix epoch.
func (e *Encoder) EncodeTime(v time.Time) error { return e.EncodeLong(v.UnixMilli()) }

// EncodeFineTime writes nanoseconds since the Unix epoch.
func (e *Encoder) EncodeFineTime(v time.Time) error { return e.EncodeLong(v.UnixNano()) }

func (e *Encoder) EncodeDuration(seconds float64) error { return e.EncodeDouble(seconds) }

func nullable[T any](e *Encoder, v *T, enc func(T) error) error {
	if v == nil {
		return e.EncodeBoolean(false)
	}
	if err := e.EncodeBoolean(true); err != nil {
		return err
	}
	return enc(*v)
}

func (e *Encoder) EncodeNullableBoolean(v *bool) error  { return nullable(e, v, e.EncodeBoolean) }
func (e *Encoder) EncodeNullableOctet(v *int8) error    { return nullable(e, v, e.EncodeOctet) }
func (e *Encoder) EncodeNullableUOctet(v *uint8) error  { return nullable(e, v, e.EncodeUOctet) }
func (e *Encoder) EncodeNullableShort(v *int16) error   { return nullable(e, v, e.EncodeShort) }
func (e *Encoder) EncodeNullableUShort(v *uint16) error { return nullable(e, v, e.EncodeUShort) }
func (e *Encoder) EncodeNullableInteger(v *int32) error { return nullable(e, v, e.EncodeInteger) }
func (e *Encoder) EncodeNullableUInteger(v *uint32) error {
	return nullable(e, v, e.EncodeUInteger)
}
func (e *Encoder) EncodeNullableLong(v *int64) error     { return nullable(e, v, e.EncodeLong) }
func (e *Encoder) EncodeNullableULong(v *uint64) error   { return nullable(e, v, e.EncodeULong) }
func (e *Encoder) EncodeNullableFloat(v *float32) error  { return nullable(e, v, e.EncodeFloat) }
func (e *Encoder) EncodeNullableDouble(v *float64) error { return nullable(e, v, e.EncodeDouble) }
func (e *Encoder) EncodeNullableString(v *string) error  { return nullable(e, v, e.EncodeString) }
func (e *Encoder) EncodeNullableURI(v *string) error     { return nullable(e, v, e.EncodeURI) }
func (e *Encoder) EncodeNullableTime(v *time.Time) error { return nullable(e, v, e.EncodeTime) }
func (e *Encoder) EncodeNullableFineTime(v *time.Time) error {
	return nullable(e, v, e.EncodeFineTime)
}
func (e *Encoder) EncodeNullableDuration(seconds *float64) error {
	return nullable(e, seconds, e.EncodeDuration)
}

// EncodeNullableBlob treats a nil slice as null.
func (e *Encoder) EncodeNullableBlob(v []byte) error {
	if v == nil {
		return e.EncodeBoolean(false)
	}
	if err := e.EncodeBoolean(true); err != nil {
		return err
	}
	return e.EncodeBlob(v)
}

// EncodeNullableIdentifier always writes an explicit presence boolean ahead of
// the identifier, whatever the scheme.
func (e *Encoder) EncodeNullableIdentifier(v *string) error {
	if err := e.EncodeBoolean(v != nil); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return e.EncodeIdentifier(*v)
}

func (e *Encoder) EncodeElement(el element.Element) error {
	if el == nil {
		return ErrNullElement
	}
	return el.Encode(e)
}

func (e *Encoder) EncodeNullableElement(el element.Element) error {
	if el == nil {
		return e.EncodeBoolean(false)
	}
	if err := e.EncodeBoolean(true); err != nil {
		return err
	}
	return el.Encode(e)
}

// EncodeAbstractElement writes presence, the full short form, then the body.
func (e *Encoder) EncodeAbstractElement(el element.Element) error {
	if el == nil {
		return e.EncodeBoolean(false)
	}
	if err := e.EncodeBoolean(true); err != nil {
		return err
	}
	if err := e.EncodeLong(int64(el.ShortForm())); err != nil {
		return err
	}
	return el.Encode(e)
}

// EncodeAttribute writes presence, the attribute type as one octet, then the value.
func (e *Encoder) EncodeAttribute(a element.Attribute) error {
	if a == nil {
		return e.EncodeBoolean(false)
	}
	if err := e.EncodeBoolean(true); err != nil {
		return err
	}
	if err := e.EncodeUOctet(a.AttributeType() - 1); err != nil {
		return err
	}
	return a.Encode(e)
}

// ListEncoder writes the element count; items follow through the returned encoder.
func (e *Encoder) ListEncoder(size int) (element.Encoder, error) {
	if err := e.flush(e.scheme.AppendLength(e.buf[:0], uint64(size))); err != nil {
		return nil, err
	}
	return e, nil
}
