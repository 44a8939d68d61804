package wire

import "fmt"

const (
	maxVarintBytes = 10
	// The TCP/IP split varint carries 32-bit values: four groups of 7 bits
	// and a fifth byte holding the top 4.
	splitMaxBytes = 5
	splitMaxValue = 1<<32 - 1
)

// appendUvarint writes v least-significant group first, continuation bit on
// every byte but the last.
func appendUvarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func readUvarint(src Source) (uint64, error) {
	var v uint64
	for shift := uint(0); shift < 7*maxVarintBytes; shift += 7 {
		c, err := src.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: missing terminal byte", ErrMalformedVarint)
		}
		if shift == 63 && c > 1 {
			return 0, ErrVarintOverflow
		}
		v |= uint64(c&0x7F) << shift
		if c&0x80 == 0 {
			return v, nil
		}
	}
	return 0, ErrVarintOverflow
}

func appendSplitUvarint(b []byte, v uint64) ([]byte, error) {
	if v > splitMaxValue {
		return b, fmt.Errorf("%w: %d exceeds 32 bits", ErrVarintOverflow, v)
	}
	return appendUvarint(b, v), nil
}

func readSplitUvarint(src Source) (uint64, error) {
	var v uint64
	for i := 0; i < splitMaxBytes; i++ {
		c, err := src.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: missing terminal byte", ErrMalformedVarint)
		}
		if i == splitMaxBytes-1 {
			if c&0x80 != 0 {
				return 0, fmt.Errorf("%w: more than %d bytes", ErrMalformedVarint, splitMaxBytes)
			}
			if c > 0x0F {
				return 0, fmt.Errorf("%w: exceeds 32 bits", ErrVarintOverflow)
			}
		}
		v |= uint64(c&0x7F) << (7 * i)
		if c&0x80 == 0 {
			return v, nil
		}
	}
	return v, nil
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// unzigzag splits sign from magnitude:
// (((raw << 63) >> 63) ^ raw) >> 1, then restores the top bit.
func unzigzag(raw uint64) int64 {
	temp := (int64(raw<<63)>>63 ^ int64(raw)) >> 1
	return temp ^ int64(raw&(1<<63))
}

func fitsUnsigned(v uint64, bits int) bool {
	return bits >= 64 || v>>uint(bits) == 0
}

func fitsSigned(v int64, bits int) bool {
	if bits >= 64 {
		return true
	}
	lim := int64(1) << uint(bits-1)
	return v >= -lim && v < lim
}
