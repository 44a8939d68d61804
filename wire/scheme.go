package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Source is the byte source a Scheme reads integers from.
type Source interface {
	ReadByte() (byte, error)
	Next(n int) ([]byte, error)
}

// Scheme is the Strategy deciding how integers, lengths and counts are laid
// out. Octets, booleans and raw bytes are scheme independent.
type Scheme interface {
	Name() string
	AppendUnsigned(b []byte, v uint64, bits int) ([]byte, error)
	AppendSigned(b []byte, v int64, bits int) ([]byte, error)
	AppendLength(b []byte, n uint64) ([]byte, error)
	Unsigned(src Source, bits int) (uint64, error)
	Signed(src Source, bits int) (int64, error)
	Length(src Source) (uint64, error)
}

var (
	// Fixed lays integers out big-endian at their declared width.
	Fixed Scheme = fixedScheme{}
	// Variable uses base-128 varints, zig-zag for signed values.
	Variable Scheme = variableScheme{}
	// Split is the TCP/IP refinement of Variable: 32-bit unsigned values,
	// lengths and counts use a varint capped at four bytes.
	Split Scheme = splitScheme{}
)

// SchemeByName returns one of the built-in schemes.
func SchemeByName(name string) (Scheme, error) {
	switch name {
	case Fixed.Name():
		return Fixed, nil
	case Variable.Name():
		return Variable, nil
	case Split.Name():
		return Split, nil
	}
	return nil, fmt.Errorf("wire: unknown scheme %q", name)
}

type fixedScheme struct{}

func (fixedScheme) Name() string { return "fixed" }

func (fixedScheme) AppendUnsigned(b []byte, v uint64, bits int) ([]byte, error) {
	if !fitsUnsigned(v, bits) {
		return b, ErrValueOverflow
	}
	switch bits {
	case 8:
		return append(b, byte(v)), nil
	case 16:
		return binary.BigEndian.AppendUint16(b, uint16(v)), nil
	case 32:
		return binary.BigEndian.AppendUint32(b, uint32(v)), nil
	case 64:
		return binary.BigEndian.AppendUint64(b, v), nil
	}
	return b, ErrUnsupportedWidth
}

func (s fixedScheme) AppendSigned(b []byte, v int64, bits int) ([]byte, error) {
	if !fitsSigned(v, bits) {
		return b, ErrValueOverflow
	}
	if bits < 64 {
		return s.AppendUnsigned(b, uint64(v)&(1<<uint(bits)-1), bits)
	}
	return s.AppendUnsigned(b, uint64(v), bits)
}

func (s fixedScheme) AppendLength(b []byte, n uint64) ([]byte, error) {
	if n > math.MaxUint32 {
		return b, ErrValueOverflow
	}
	return s.AppendUnsigned(b, n, 32)
}

func (fixedScheme) Unsigned(src Source, bits int) (uint64, error) {
	if bits%8 != 0 || bits == 0 || bits > 64 {
		return 0, ErrUnsupportedWidth
	}
	p, err := src.Next(bits / 8)
	if err != nil {
		return 0, err
	}
	switch bits {
	case 8:
		return uint64(p[0]), nil
	case 16:
		return uint64(binary.BigEndian.Uint16(p)), nil
	case 32:
		return uint64(binary.BigEndian.Uint32(p)), nil
	case 64:
		return binary.BigEndian.Uint64(p), nil
	}
	return 0, ErrUnsupportedWidth
}

func (s fixedScheme) Signed(src Source, bits int) (int64, error) {
	u, err := s.Unsigned(src, bits)
	if err != nil {
		return 0, err
	}
	switch bits {
	case 8:
		return int64(int8(u)), nil
	case 16:
		return int64(int16(u)), nil
	case 32:
		return int64(int32(u)), nil
	}
	return int64(u), nil
}

func (s fixedScheme) Length(src Source) (uint64, error) {
	return s.Unsigned(src, 32)
}

type variableScheme struct{}

func (variableScheme) Name() string { return "variable" }

func (variableScheme) AppendUnsigned(b []byte, v uint64, bits int) ([]byte, error) {
	if !fitsUnsigned(v, bits) {
		return b, ErrValueOverflow
	}
	return appendUvarint(b, v), nil
}

func (variableScheme) AppendSigned(b []byte, v int64, bits int) ([]byte, error) {
	if !fitsSigned(v, bits) {
		return b, ErrValueOverflow
	}
	return appendUvarint(b, zigzag(v)), nil
}

func (variableScheme) AppendLength(b []byte, n uint64) ([]byte, error) {
	if n > math.MaxUint32 {
		return b, ErrValueOverflow
	}
	return appendUvarint(b, n), nil
}

func (variableScheme) Unsigned(src Source, bits int) (uint64, error) {
	v, err := readUvarint(src)
	if err != nil {
		return 0, err
	}
	if !fitsUnsigned(v, bits) {
		return 0, ErrValueOverflow
	}
	return v, nil
}

func (variableScheme) Signed(src Source, bits int) (int64, error) {
	raw, err := readUvarint(src)
	if err != nil {
		return 0, err
	}
	v := unzigzag(raw)
	if !fitsSigned(v, bits) {
		return 0, ErrValueOverflow
	}
	return v, nil
}

func (s variableScheme) Length(src Source) (uint64, error) {
	return s.Unsigned(src, 32)
}

type splitScheme struct{ variableScheme }

func (splitScheme) Name() string { return "split" }

func (s splitScheme) AppendUnsigned(b []byte, v uint64, bits int) ([]byte, error) {
	if bits == 32 {
		return appendSplitUvarint(b, v)
	}
	return s.variableScheme.AppendUnsigned(b, v, bits)
}

func (splitScheme) AppendLength(b []byte, n uint64) ([]byte, error) {
	return appendSplitUvarint(b, n)
}

func (s splitScheme) Unsigned(src Source, bits int) (uint64, error) {
	if bits == 32 {
		return readSplitUvarint(src)
	}
	return s.variableScheme.Unsigned(src, bits)
}

func (splitScheme) Length(src Source) (uint64, error) {
	return readSplitUvarint(src)
}
