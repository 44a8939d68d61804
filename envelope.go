package xmal

import (
	"time"
)

// Metadata keys set on every envelope, readable without decoding the payload.
const (
	MetaCodec       = "mal.codec"
	MetaInteraction = "mal.interaction"
	MetaStage       = "mal.stage"
	MetaTransaction = "mal.tx"
)

// Envelope is the unit a Transport moves. The Payload is one message encoded via Codec.
type Envelope struct {
	// ID is a unique envelope identifier (transport may assign if empty).
	ID string
	// To is the destination endpoint URI.
	To string
	// From is the sending endpoint URI.
	From string
	// Payload is the encoded message.
	Payload []byte
	// Metadata carries codec name and routing hints.
	Metadata map[string]string
	// ProducedAt is the production timestamp (from injected clock).
	ProducedAt time.Time
}
