package element

import (
	"bytes"
	"time"
)

// Attribute type numbers within the MAL area.
const (
	BlobType uint8 = iota + 1
	BooleanType
	DurationType
	FloatType
	DoubleType
	IdentifierType
	OctetType
	UOctetType
	ShortType
	UShortType
	IntegerType
	UIntegerType
	LongType
	ULongType
	StringType
	TimeType
	FineTimeType
	URIType

	AttributeTypeCount = URIType
)

// AttributeShortForm returns the short form of a built-in attribute type.
func AttributeShortForm(t uint8) ShortForm {
	return NewShortForm(MALArea, MALService, MALAreaVersion, int32(t))
}

// NewAttribute returns an empty attribute of type t, or nil if t is unknown.
func NewAttribute(t uint8) Attribute {
	switch t {
	case BlobType:
		return new(Blob)
	case BooleanType:
		return new(Boolean)
	case DurationType:
		return new(Duration)
	case FloatType:
		return new(Float)
	case DoubleType:
		return new(Double)
	case IdentifierType:
		return new(Identifier)
	case OctetType:
		return new(Octet)
	case UOctetType:
		return new(UOctet)
	case ShortType:
		return new(Short)
	case UShortType:
		return new(UShort)
	case IntegerType:
		return new(Integer)
	case UIntegerType:
		return new(UInteger)
	case LongType:
		return new(Long)
	case ULongType:
		return new(ULong)
	case StringType:
		return new(String)
	case TimeType:
		return new(Time)
	case FineTimeType:
		return new(FineTime)
	case URIType:
		return new(URI)
	}
	return nil
}

type (
	Blob       []byte
	Boolean    bool
	Duration   float64 // seconds
	Float      float32
	Double     float64
	Identifier string
	Octet      int8
	UOctet     uint8
	Short      int16
	UShort     uint16
	Integer    int32
	UInteger   uint32
	Long       int64
	ULong      uint64
	String     string
	URI        string
	Time       struct{ time.Time } // millisecond resolution on the wire
	FineTime   struct{ time.Time } // nanosecond resolution on the wire
)

func NewBlob(v []byte) *Blob             { b := Blob(v); return &b }
func NewBoolean(v bool) *Boolean         { b := Boolean(v); return &b }
func NewDuration(s float64) *Duration    { d := Duration(s); return &d }
func NewFloat(v float32) *Float          { f := Float(v); return &f }
func NewDouble(v float64) *Double        { d := Double(v); return &d }
func NewIdentifier(v string) *Identifier { i := Identifier(v); return &i }
func NewOctet(v int8) *Octet             { o := Octet(v); return &o }
func NewUOctet(v uint8) *UOctet          { o := UOctet(v); return &o }
func NewShort(v int16) *Short            { s := Short(v); return &s }
func NewUShort(v uint16) *UShort         { s := UShort(v); return &s }
func NewInteger(v int32) *Integer        { i := Integer(v); return &i }
func NewUInteger(v uint32) *UInteger     { i := UInteger(v); return &i }
func NewLong(v int64) *Long              { l := Long(v); return &l }
func NewULong(v uint64) *ULong           { l := ULong(v); return &l }
func NewString(v string) *String         { s := String(v); return &s }
func NewURI(v string) *URI               { u := URI(v); return &u }
func NewTime(v time.Time) *Time          { return &Time{v} }
func NewFineTime(v time.Time) *FineTime  { return &FineTime{v} }

func (*Blob) AttributeType() uint8       { return BlobType }
func (*Boolean) AttributeType() uint8    { return BooleanType }
func (*Duration) AttributeType() uint8   { return DurationType }
func (*Float) AttributeType() uint8      { return FloatType }
func (*Double) AttributeType() uint8     { return DoubleType }
func (*Identifier) AttributeType() uint8 { return IdentifierType }
func (*Octet) AttributeType() uint8      { return OctetType }
func (*UOctet) AttributeType() uint8     { return UOctetType }
func (*Short) AttributeType() uint8      { return ShortType }
func (*UShort) AttributeType() uint8     { return UShortType }
func (*Integer) AttributeType() uint8    { return IntegerType }
func (*UInteger) AttributeType() uint8   { return UIntegerType }
func (*Long) AttributeType() uint8       { return LongType }
func (*ULong) AttributeType() uint8      { return ULongType }
func (*String) AttributeType() uint8     { return StringType }
func (*Time) AttributeType() uint8       { return TimeType }
func (*FineTime) AttributeType() uint8   { return FineTimeType }
func (*URI) AttributeType() uint8        { return URIType }

func (v *Blob) ShortForm() ShortForm       { return AttributeShortForm(v.AttributeType()) }
func (v *Boolean) ShortForm() ShortForm    { return AttributeShortForm(v.AttributeType()) }
func (v *Duration) ShortForm() ShortForm   { return AttributeShortForm(v.AttributeType()) }
func (v *Float) ShortForm() ShortForm      { return AttributeShortForm(v.AttributeType()) }
func (v *Double) ShortForm() ShortForm     { return AttributeShortForm(v.AttributeType()) }
func (v *Identifier) ShortForm() ShortForm { return AttributeShortForm(v.AttributeType()) }
func (v *Octet) ShortForm() ShortForm      { return AttributeShortForm(v.AttributeType()) }
func (v *UOctet) ShortForm() ShortForm     { return AttributeShortForm(v.AttributeType()) }
func (v *Short) ShortForm() ShortForm      { return AttributeShortForm(v.AttributeType()) }
func (v *UShort) ShortForm() ShortForm     { return AttributeShortForm(v.AttributeType()) }
func (v *Integer) ShortForm() ShortForm    { return AttributeShortForm(v.AttributeType()) }
func (v *UInteger) ShortForm() ShortForm   { return AttributeShortForm(v.AttributeType()) }
func (v *Long) ShortForm() ShortForm       { return AttributeShortForm(v.AttributeType()) }
func (v *ULong) ShortForm() ShortForm      { return AttributeShortForm(v.AttributeType()) }
func (v *String) ShortForm() ShortForm     { return AttributeShortForm(v.AttributeType()) }
func (v *Time) ShortForm() ShortForm       { return AttributeShortForm(v.AttributeType()) }
func (v *FineTime) ShortForm() ShortForm   { return AttributeShortForm(v.AttributeType()) }
func (v *URI) ShortForm() ShortForm        { return AttributeShortForm(v.AttributeType()) }

func (v *Blob) Encode(enc Encoder) error       { return enc.EncodeBlob(*v) }
func (v *Boolean) Encode(enc Encoder) error    { return enc.EncodeBoolean(bool(*v)) }
func (v *Duration) Encode(enc Encoder) error   { return enc.EncodeDuration(float64(*v)) }
func (v *Float) Encode(enc Encoder) error      { return enc.EncodeFloat(float32(*v)) }
func (v *Double) Encode(enc Encoder) error     { return enc.EncodeDouble(float64(*v)) }
func (v *Identifier) Encode(enc Encoder) error { return enc.EncodeIdentifier(string(*v)) }
func (v *Octet) Encode(enc Encoder) error      { return enc.EncodeOctet(int8(*v)) }
func (v *UOctet) Encode(enc Encoder) error     { return enc.EncodeUOctet(uint8(*v)) }
func (v *Short) Encode(enc Encoder) error      { return enc.EncodeShort(int16(*v)) }
func (v *UShort) Encode(enc Encoder) error     { return enc.EncodeUShort(uint16(*v)) }
func (v *Integer) Encode(enc Encoder) error    { return enc.EncodeInteger(int32(*v)) }
func (v *UInteger) Encode(enc Encoder) error   { return enc.EncodeUInteger(uint32(*v)) }
func (v *Long) Encode(enc Encoder) error       { return enc.EncodeLong(int64(*v)) }
func (v *ULong) Encode(enc Encoder) error      { return enc.EncodeULong(uint64(*v)) }
func (v *String) Encode(enc Encoder) error     { return enc.EncodeString(string(*v)) }
func (v *Time) Encode(enc Encoder) error       { return enc.EncodeTime(v.Time) }
func (v *FineTime) Encode(enc Encoder) error   { return enc.EncodeFineTime(v.Time) }
func (v *URI) Encode(enc Encoder) error        { return enc.EncodeURI(string(*v)) }

func (v *Blob) Decode(dec Decoder) error {
	b, err := dec.DecodeBlob()
	if err != nil {
		return err
	}
	*v = b
	return nil
}

func (v *Boolean) Decode(dec Decoder) error {
	b, err := dec.DecodeBoolean()
	if err != nil {
		return err
	}
	*v = Boolean(b)
	return nil
}

func (v *Duration) Decode(dec Decoder) error {
	d, err := dec.DecodeDuration()
	if err != nil {
		return err
	}
	*v = Duration(d)
	return nil
}

func (v *Float) Decode(dec Decoder) error {
	f, err := dec.DecodeFloat()
	if err != nil {
		return err
	}
	*v = Float(f)
	return nil
}

func (v *Double) Decode(dec Decoder) error {
	d, err := dec.DecodeDouble()
	if err != nil {
		return err
	}
	*v = Double(d)
	return nil
}

func (v *Identifier) Decode(dec Decoder) error {
	s, err := dec.DecodeIdentifier()
	if err != nil {
		return err
	}
	*v = Identifier(s)
	return nil
}

func (v *Octet) Decode(dec Decoder) error {
	o, err := dec.DecodeOctet()
	if err != nil {
		return err
	}
	*v = Octet(o)
	return nil
}

func (v *UOctet) Decode(dec Decoder) error {
	o, err := dec.DecodeUOctet()
	if err != nil {
		return err
	}
	*v = UOctet(o)
	return nil
}

func (v *Short) Decode(dec Decoder) error {
	s, err := dec.DecodeShort()
	if err != nil {
		return err
	}
	*v = Short(s)
	return nil
}

func (v *UShort) Decode(dec Decoder) error {
	s, err := dec.DecodeUShort()
	if err != nil {
		return err
	}
	*v = UShort(s)
	return nil
}

func (v *Integer) Decode(dec Decoder) error {
	i, err := dec.DecodeInteger()
	if err != nil {
		return err
	}
	*v = Integer(i)
	return nil
}

func (v *UInteger) Decode(dec Decoder) error {
	i, err := dec.DecodeUInteger()
	if err != nil {
		return err
	}
	*v = UInteger(i)
	return nil
}

func (v *Long) Decode(dec Decoder) error {
	l, err := dec.DecodeLong()
	if err != nil {
		return err
	}
	*v = Long(l)
	return nil
}

func (v *ULong) Decode(dec Decoder) error {
	l, err := dec.DecodeULong()
	if err != nil {
		return err
	}
	*v = ULong(l)
	return nil
}

func (v *String) Decode(dec Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	*v = String(s)
	return nil
}

func (v *Time) Decode(dec Decoder) error {
	t, err := dec.DecodeTime()
	if err != nil {
		return err
	}
	v.Time = t
	return nil
}

func (v *FineTime) Decode(dec Decoder) error {
	t, err := dec.DecodeFineTime()
	if err != nil {
		return err
	}
	v.Time = t
	return nil
}

func (v *URI) Decode(dec Decoder) error {
	s, err := dec.DecodeURI()
	if err != nil {
		return err
	}
	*v = URI(s)
	return nil
}

// AttributeEqual reports whether a and b hold the same type and value.
// Two nil attributes are equal.
func AttributeEqual(a, b Attribute) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.AttributeType() != b.AttributeType() {
		return false
	}
	switch x := a.(type) {
	case *Blob:
		return bytes.Equal(*x, *b.(*Blob))
	case *Boolean:
		return *x == *b.(*Boolean)
	case *Duration:
		return *x == *b.(*Duration)
	case *Float:
		return *x == *b.(*Float)
	case *Double:
		return *x == *b.(*Double)
	case *Identifier:
		return *x == *b.(*Identifier)
	case *Octet:
		return *x == *b.(*Octet)
	case *UOctet:
		return *x == *b.(*UOctet)
	case *Short:
		return *x == *b.(*Short)
	case *UShort:
		return *x == *b.(*UShort)
	case *Integer:
		return *x == *b.(*Integer)
	case *UInteger:
		return *x == *b.(*UInteger)
	case *Long:
		return *x == *b.(*Long)
	case *ULong:
		return *x == *b.(*ULong)
	case *String:
		return *x == *b.(*String)
	case *Time:
		return x.Equal(b.(*Time).Time)
	case *FineTime:
		return x.Equal(b.(*FineTime).Time)
	case *URI:
		return *x == *b.(*URI)
	}
	return false
}

// IsWildcard reports whether a is the "*" identifier or string.
func IsWildcard(a Attribute) bool {
	switch x := a.(type) {
	case *Identifier:
		return x != nil && *x == Wildcard
	case *String:
		return x != nil && *x == Wildcard
	}
	return false
}

// Wildcard matches any value in domains and subscription filters.
const Wildcard = "*"
