package wire

import "errors"

var (
	ErrMalformedVarint  = errors.New("wire: malformed varint")
	ErrVarintOverflow   = errors.New("wire: varint overflow")
	ErrValueOverflow    = errors.New("wire: value exceeds declared width")
	ErrTruncated        = errors.New("wire: length exceeds available bytes")
	ErrStringTooLong    = errors.New("wire: string longer than 2^32-1 bytes")
	ErrUnknownShortForm = errors.New("wire: unknown element short form")
	ErrNullElement      = errors.New("wire: null value for non-nullable element")
	ErrNotAttribute     = errors.New("wire: decoded element is not an attribute")
	ErrNoRegistry       = errors.New("wire: decoder has no element registry")
	ErrUnsupportedWidth = errors.New("wire: unsupported integer width")
)
