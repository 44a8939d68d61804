package wire

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/trickstertwo/xmal/element"
)

var (
	_ element.Decoder     = (*Decoder)(nil)
	_ element.ListDecoder = (*ListDecoder)(nil)
)

// Decoder reads MAL values from one message's bytes. A failed call leaves the
// decoder unusable but never touches another decoder's state.
type Decoder struct {
	data   []byte
	pos    int
	scheme Scheme
	reg    *element.Registry
}

// NewDecoder reads src with scheme; reg resolves abstract elements and may be
// nil when none are expected.
func NewDecoder(src []byte, scheme Scheme, reg *element.Registry) *Decoder {
	if scheme == nil {
		scheme = Variable
	}
	return &Decoder{data: src, scheme: scheme, reg: reg}
}

// Unmarshal decodes data into empty with scheme.
func Unmarshal(scheme Scheme, reg *element.Registry, data []byte, empty element.Element) error {
	_, err := NewDecoder(data, scheme, reg).DecodeElement(empty)
	return err
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int { return d.pos }

func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, fmt.Errorf("%w: need 1 byte", ErrTruncated)
	}
	c := d.data[d.pos]
	d.pos++
	return c, nil
}

// Next returns the next n bytes without copying.
func (d *Decoder) Next(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrTruncated, n, d.Remaining())
	}
	p := d.data[d.pos : d.pos+n : d.pos+n]
	d.pos += n
	return p, nil
}

func (d *Decoder) DecodeBoolean() (bool, error) {
	c, err := d.ReadByte()
	return c != 0, err
}

func (d *Decoder) DecodeOctet() (int8, error) {
	c, err := d.ReadByte()
	return int8(c), err
}

func (d *Decoder) DecodeUOctet() (uint8, error) {
	return d.ReadByte()
}

func (d *Decoder) DecodeShort() (int16, error) {
	v, err := d.scheme.Signed(d, 16)
	return int16(v), err
}

func (d *Decoder) DecodeUShort() (uint16, error) {
	v, err := d.scheme.Unsigned(d, 16)
	return uint16(v), err
}

func (d *Decoder) DecodeInteger() (int32, error) {
	v, err := d.scheme.Signed(d, 32)
	return int32(v), err
}

func (d *Decoder) DecodeUInteger() (uint32, error) {
	v, err := d.scheme.Unsigned(d, 32)
	return uint32(v), err
}

func (d *Decoder) DecodeLong() (int64, error) {
	return d.scheme.Signed(d, 64)
}

func (d *Decoder) DecodeULong() (uint64, error) {
	return d.scheme.Unsigned(d, 64)
}

func (d *Decoder) DecodeFloat() (float32, error) {
	v, err := d.DecodeInteger()
	return math.Float32frombits(uint32(v)), err
}

func (d *Decoder) DecodeDouble() (float64, error) {
	v, err := d.DecodeLong()
	return math.Float64frombits(uint64(v)), err
}

func (d *Decoder) readLengthPrefixed() ([]byte, error) {
	n, err := d.scheme.Length(d)
	if err != nil {
		return nil, err
	}
	if n > uint64(d.Remaining()) {
		return nil, fmt.Errorf("%w: prefix %d, have %d", ErrTruncated, n, d.Remaining())
	}
	return d.Next(int(n))
}

func (d *Decoder) DecodeString() (string, error) {
	p, err := d.readLengthPrefixed()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func (d *Decoder) DecodeBlob() ([]byte, error) {
	p, err := d.readLengthPrefixed()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

func (d *Decoder) DecodeIdentifier() (string, error) { return d.DecodeString() }

func (d *Decoder) DecodeURI() (string, error) { return d.DecodeString() }

func (d *Decoder) DecodeTime() (time.Time, error) {
	ms, err := d.DecodeLong()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (d *Decoder) DecodeFineTime() (time.Time, error) {
	ns, err := d.DecodeLong()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ns).UTC(), nil
}

func (d *Decoder) DecodeDuration() (float64, error) { return d.DecodeDouble() }

func decodeNullable[T any](d *Decoder, dec func() (T, error)) (*T, error) {
	present, err := d.DecodeBoolean()
	if err != nil || !present {
		return nil, err
	}
	v, err := dec()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (d *Decoder) DecodeNullableBoolean() (*bool, error)  { return decodeNullable(d, d.DecodeBoolean) }
func (d *Decoder) DecodeNullableOctet() (*int8, error)    { return decodeNullable(d, d.DecodeOctet) }
func (d *Decoder) DecodeNullableUOctet() (*uint8, error)  { return decodeNullable(d, d.DecodeUOctet) }
func (d *Decoder) DecodeNullableShort() (*int16, error)   { return decodeNullable(d, d.DecodeShort) }
func (d *Decoder) DecodeNullableUShort() (*uint16, error) { return decodeNullable(d, d.DecodeUShort) }
func (d *Decoder) DecodeNullableInteger() (*int32, error) { return decodeNullable(d, d.DecodeInteger) }
func (d *Decoder) DecodeNullableUInteger() (*uint32, error) {
	return decodeNullable(d, d.DecodeUInteger)
}
func (d *Decoder) DecodeNullableLong() (*int64, error)     { return decodeNullable(d, d.DecodeLong) }
func (d *Decoder) DecodeNullableULong() (*uint64, error)   { return decodeNullable(d, d.DecodeULong) }
func (d *Decoder) DecodeNullableFloat() (*float32, error)  { return decodeNullable(d, d.DecodeFloat) }
func (d *Decoder) DecodeNullableDouble() (*float64, error) { return decodeNullable(d, d.DecodeDouble) }
func (d *Decoder) DecodeNullableString() (*string, error)  { return decodeNullable(d, d.DecodeString) }
func (d *Decoder) DecodeNullableURI() (*string, error)     { return decodeNullable(d, d.DecodeURI) }
func (d *Decoder) DecodeNullableTime() (*time.Time, error) { return decodeNullable(d, d.DecodeTime) }
func (d *Decoder) DecodeNullableFineTime() (*time.Time, error) {
	return decodeNullable(d, d.DecodeFineTime)
}
func (d *Decoder) DecodeNullableDuration() (*float64, error) {
	return decodeNullable(d, d.DecodeDuration)
}
func (d *Decoder) DecodeNullableIdentifier() (*string, error) {
	return decodeNullable(d, d.DecodeIdentifier)
}

func (d *Decoder) DecodeNullableBlob() ([]byte, error) {
	present, err := d.DecodeBoolean()
	if err != nil || !present {
		return nil, err
	}
	return d.DecodeBlob()
}

// DecodeElement fills empty and returns it.
func (d *Decoder) DecodeElement(empty element.Element) (element.Element, error) {
	if empty == nil {
		return nil, ErrNullElement
	}
	if err := empty.Decode(d); err != nil {
		return nil, err
	}
	return empty, nil
}

func (d *Decoder) DecodeNullableElement(empty element.Element) (element.Element, error) {
	present, err := d.DecodeBoolean()
	if err != nil || !present {
		return nil, err
	}
	return d.DecodeElement(empty)
}

// DecodeAbstractElement reads presence and a short form, instantiates the
// concrete type through the registry, then decodes into it.
func (d *Decoder) DecodeAbstractElement() (element.Element, error) {
	present, err := d.DecodeBoolean()
	if err != nil || !present {
		return nil, err
	}
	sf, err := d.DecodeLong()
	if err != nil {
		return nil, err
	}
	empty, err := d.Create(element.ShortForm(sf))
	if err != nil {
		return nil, err
	}
	return d.DecodeElement(empty)
}

// DecodeAttribute reads the built-in attribute encoding written by EncodeAttribute.
func (d *Decoder) DecodeAttribute() (element.Attribute, error) {
	present, err := d.DecodeBoolean()
	if err != nil || !present {
		return nil, err
	}
	t, err := d.DecodeUOctet()
	if err != nil {
		return nil, err
	}
	empty, err := d.Create(element.AttributeShortForm(t + 1))
	if err != nil {
		return nil, err
	}
	a, ok := empty.(element.Attribute)
	if !ok {
		return nil, ErrNotAttribute
	}
	if err := a.Decode(d); err != nil {
		return nil, err
	}
	return a, nil
}

// Create resolves sf through the registry.
func (d *Decoder) Create(sf element.ShortForm) (element.Element, error) {
	if d.reg == nil {
		return nil, ErrNoRegistry
	}
	e, err := d.reg.Create(sf)
	if err != nil {
		if errors.Is(err, element.ErrNotRegistered) {
			return nil, fmt.Errorf("%w: %w", ErrUnknownShortForm, err)
		}
		return nil, err
	}
	return e, nil
}

// ListDecoder reads a list count and returns an iterator over the items.
func (d *Decoder) ListDecoder() (element.ListDecoder, error) {
	n, err := d.scheme.Length(d)
	if err != nil {
		return nil, err
	}
	// every item takes at least one byte
	if n > uint64(d.Remaining()) {
		return nil, fmt.Errorf("%w: list of %d, have %d bytes", ErrTruncated, n, d.Remaining())
	}
	return &ListDecoder{Decoder: d, size: int(n), remaining: int(n)}, nil
}

// ListDecoder walks the items of one list, sharing the parent decoder's position.
type ListDecoder struct {
	*Decoder
	size      int
	remaining int
}

// Size returns the declared item count.
func (l *ListDecoder) Size() int { return l.size }

// HasNext consumes one item slot, returning false once all are read.
func (l *ListDecoder) HasNext() bool {
	if l.remaining == 0 {
		return false
	}
	l.remaining--
	return true
}
