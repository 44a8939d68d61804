// Package element holds the MAL data model shared by the codec, the message
// layer and the broker: attribute values, lists, structures and the explicit
// short-form registry used for polymorphic decoding.
package element

import "time"

// ShortForm identifies a concrete type across area, service and version.
// Layout: area (16 bits) | service (16 bits) | version (8 bits) | type (24 bits, signed).
type ShortForm int64

const (
	typeMask = 0xFFFFFF
	listBit  = 0x800000
)

// MAL area coordinates for the built-in types.
const (
	MALArea        uint16 = 1
	MALService     uint16 = 0
	MALAreaVersion uint8  = 1
)

// NewShortForm composes a short form. Negative type numbers denote lists.
func NewShortForm(area, service uint16, version uint8, typ int32) ShortForm {
	return ShortForm(int64(area)<<48 | int64(service)<<32 | int64(version)<<24 | int64(uint32(typ)&typeMask))
}

// Area returns the area number.
func (s ShortForm) Area() uint16 { return uint16(uint64(s) >> 48) }

// Service returns the service number.
func (s ShortForm) Service() uint16 { return uint16(uint64(s) >> 32) }

// Version returns the area version.
func (s ShortForm) Version() uint8 { return uint8(uint64(s) >> 24) }

// Type returns the signed 24-bit type number.
func (s ShortForm) Type() int32 {
	t := int32(uint64(s) & typeMask)
	if t&listBit != 0 {
		t |= ^int32(typeMask)
	}
	return t
}

// IsList reports whether s identifies a list type.
func (s ShortForm) IsList() bool { return s.Type() < 0 }

// List returns the short form of the list of s.
func (s ShortForm) List() ShortForm {
	if s.IsList() {
		return s
	}
	return NewShortForm(s.Area(), s.Service(), s.Version(), -s.Type())
}

// Item returns the short form of the items of list s.
func (s ShortForm) Item() ShortForm {
	if !s.IsList() {
		return s
	}
	return NewShortForm(s.Area(), s.Service(), s.Version(), -s.Type())
}

// Element is any value that can travel in a MAL message body.
type Element interface {
	ShortForm() ShortForm
	Encode(enc Encoder) error
	Decode(dec Decoder) error
}

// Attribute is the closed set of MAL built-in value types.
type Attribute interface {
	Element
	AttributeType() uint8
}

// Sequence is a list element whose items can be subset by position.
type Sequence interface {
	Element
	Len() int
	Subset(indexes []int) Sequence
}

// Encoder writes MAL values in one binary scheme.
type Encoder interface {
	EncodeBoolean(v bool) error
	EncodeOctet(v int8) error
	EncodeUOctet(v uint8) error
	EncodeShort(v int16) error
	EncodeUShort(v uint16) error
	EncodeInteger(v int32) error
	EncodeUInteger(v uint32) error
	EncodeLong(v int64) error
	EncodeULong(v uint64) error
	EncodeFloat(v float32) error
	EncodeDouble(v float64) error
	EncodeString(v string) error
	EncodeBlob(v []byte) error
	EncodeIdentifier(v string) error
	EncodeURI(v string) error
	EncodeTime(v time.Time) error
	EncodeFineTime(v time.Time) error
	EncodeDuration(seconds float64) error

	EncodeNullableBoolean(v *bool) error
	EncodeNullableOctet(v *int8) error
	EncodeNullableUOctet(v *uint8) error
	EncodeNullableShort(v *int16) error
	EncodeNullableUShort(v *uint16) error
	EncodeNullableInteger(v *int32) error
	EncodeNullableUInteger(v *uint32) error
	EncodeNullableLong(v *int64) error
	EncodeNullableULong(v *uint64) error
	EncodeNullableFloat(v *float32) error
	EncodeNullableDouble(v *float64) error
	EncodeNullableString(v *string) error
	EncodeNullableBlob(v []byte) error
	EncodeNullableIdentifier(v *string) error
	EncodeNullableURI(v *string) error
	EncodeNullableTime(v *time.Time) error
	EncodeNullableFineTime(v *time.Time) error
	EncodeNullableDuration(seconds *float64) error

	EncodeElement(e Element) error
	EncodeNullableElement(e Element) error
	EncodeAbstractElement(e Element) error
	EncodeAttribute(a Attribute) error
	ListEncoder(size int) (Encoder, error)
}

// Decoder reads MAL values in one binary scheme.
type Decoder interface {
	DecodeBoolean() (bool, error)
	DecodeOctet() (int8, error)
	DecodeUOctet() (uint8, error)
	DecodeShort() (int16, error)
	DecodeUShort() (uint16, error)
	DecodeInteger() (int32, error)
	DecodeUInteger() (uint32, error)
	DecodeLong() (int64, error)
	DecodeULong() (uint64, error)
	DecodeFloat() (float32, error)
	DecodeDouble() (float64, error)
	DecodeString() (string, error)
	DecodeBlob() ([]byte, error)
	DecodeIdentifier() (string, error)
	DecodeURI() (string, error)
	DecodeTime() (time.Time, error)
	DecodeFineTime() (time.Time, error)
	DecodeDuration() (float64, error)

	DecodeNullableBoolean() (*bool, error)
	DecodeNullableOctet() (*int8, error)
	DecodeNullableUOctet() (*uint8, error)
	DecodeNullableShort() (*int16, error)
	DecodeNullableUShort() (*uint16, error)
	DecodeNullableInteger() (*int32, error)
	DecodeNullableUInteger() (*uint32, error)
	DecodeNullableLong() (*int64, error)
	DecodeNullableULong() (*uint64, error)
	DecodeNullableFloat() (*float32, error)
	DecodeNullableDouble() (*float64, error)
	DecodeNullableString() (*string, error)
	DecodeNullableBlob() ([]byte, error)
	DecodeNullableIdentifier() (*string, error)
	DecodeNullableURI() (*string, error)
	DecodeNullableTime() (*time.Time, error)
	DecodeNullableFineTime() (*time.Time, error)
	DecodeNullableDuration() (*float64, error)

	DecodeElement(empty Element) (Element, error)
	DecodeNullableElement(empty Element) (Element, error)
	DecodeAbstractElement() (Element, error)
	DecodeAttribute() (Attribute, error)
	ListDecoder() (ListDecoder, error)

	// Create instantiates an empty element through the decoder's registry.
	Create(sf ShortForm) (Element, error)
}

// ListDecoder iterates over the items of one encoded list.
type ListDecoder interface {
	Decoder
	Size() int
	HasNext() bool
}
