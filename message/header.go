package message

import (
	"time"

	"github.com/trickstertwo/xmal/element"
)

// HeaderShortForm is the short form of the message header structure.
var HeaderShortForm = element.NewShortForm(element.MALArea, element.MALService, element.MALAreaVersion, 32)

// Header identifies one protocol message. Fields are encoded in declaration order.
type Header struct {
	URIFrom string
	// AuthenticationID travels as a plain blob, so nil and empty are the
	// same value; decoding yields nil for both.
	AuthenticationID []byte
	URITo            string
	Timestamp        time.Time
	QoSLevel         QoSLevel
	Priority         uint32
	Domain           element.IdentifierList
	NetworkZone      string
	Session          SessionType
	SessionName      string
	InteractionType  InteractionType
	InteractionStage Stage
	TransactionID    int64
	ServiceArea      uint16
	Service          uint16
	Operation        uint16
	AreaVersion      uint8
	IsErrorMessage   bool
}

// OperationKey returns the operation the message addresses.
func (h *Header) OperationKey() OperationKey {
	return OperationKey{Area: h.ServiceArea, Service: h.Service, Version: h.AreaVersion, Operation: h.Operation}
}

// SetOperation copies k into the header.
func (h *Header) SetOperation(k OperationKey) {
	h.ServiceArea, h.Service, h.AreaVersion, h.Operation = k.Area, k.Service, k.Version, k.Operation
}

// StageName returns the protocol name of the header's stage.
func (h *Header) StageName() string {
	return StageName(h.InteractionType, h.InteractionStage)
}

// Reply derives the header of a reply: URIs swapped, correlation kept.
func (h *Header) Reply(stage Stage, isError bool, now time.Time) *Header {
	r := *h
	r.URIFrom, r.URITo = h.URITo, h.URIFrom
	r.InteractionStage = stage
	r.IsErrorMessage = isError
	r.Timestamp = now
	return &r
}

func (h *Header) ShortForm() element.ShortForm { return HeaderShortForm }

func (h *Header) Encode(enc element.Encoder) error {
	steps := []func() error{
		func() error { return enc.EncodeURI(h.URIFrom) },
		func() error { return enc.EncodeBlob(h.AuthenticationID) },
		func() error { return enc.EncodeURI(h.URITo) },
		func() error { return enc.EncodeTime(h.Timestamp) },
		func() error { return enc.EncodeUOctet(uint8(h.QoSLevel)) },
		func() error { return enc.EncodeUInteger(h.Priority) },
		func() error {
			domain := h.Domain
			if domain == nil {
				domain = element.IdentifierList{}
			}
			return enc.EncodeElement(&domain)
		},
		func() error { return enc.EncodeIdentifier(h.NetworkZone) },
		func() error { return enc.EncodeUOctet(uint8(h.Session)) },
		func() error { return enc.EncodeIdentifier(h.SessionName) },
		func() error { return enc.EncodeUOctet(uint8(h.InteractionType)) },
		func() error { return enc.EncodeUOctet(uint8(h.InteractionStage)) },
		func() error { return enc.EncodeLong(h.TransactionID) },
		func() error { return enc.EncodeUShort(h.ServiceArea) },
		func() error { return enc.EncodeUShort(h.Service) },
		func() error { return enc.EncodeUShort(h.Operation) },
		func() error { return enc.EncodeUOctet(h.AreaVersion) },
		func() error { return enc.EncodeBoolean(h.IsErrorMessage) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Header) Decode(dec element.Decoder) error {
	var (
		err  error
		u8   uint8
		blob []byte
	)
	if h.URIFrom, err = dec.DecodeURI(); err != nil {
		return err
	}
	if blob, err = dec.DecodeBlob(); err != nil {
		return err
	}
	h.AuthenticationID = nil
	if len(blob) > 0 {
		h.AuthenticationID = blob
	}
	if h.URITo, err = dec.DecodeURI(); err != nil {
		return err
	}
	if h.Timestamp, err = dec.DecodeTime(); err != nil {
		return err
	}
	if u8, err = dec.DecodeUOctet(); err != nil {
		return err
	}
	h.QoSLevel = QoSLevel(u8)
	if h.Priority, err = dec.DecodeUInteger(); err != nil {
		return err
	}
	h.Domain = nil
	if _, err = dec.DecodeElement(&h.Domain); err != nil {
		return err
	}
	if h.NetworkZone, err = dec.DecodeIdentifier(); err != nil {
		return err
	}
	if u8, err = dec.DecodeUOctet(); err != nil {
		return err
	}
	h.Session = SessionType(u8)
	if h.SessionName, err = dec.DecodeIdentifier(); err != nil {
		return err
	}
	if u8, err = dec.DecodeUOctet(); err != nil {
		return err
	}
	h.InteractionType = InteractionType(u8)
	if u8, err = dec.DecodeUOctet(); err != nil {
		return err
	}
	h.InteractionStage = Stage(u8)
	if h.TransactionID, err = dec.DecodeLong(); err != nil {
		return err
	}
	if h.ServiceArea, err = dec.DecodeUShort(); err != nil {
		return err
	}
	if h.Service, err = dec.DecodeUShort(); err != nil {
		return err
	}
	if h.Operation, err = dec.DecodeUShort(); err != nil {
		return err
	}
	if h.AreaVersion, err = dec.DecodeUOctet(); err != nil {
		return err
	}
	h.IsErrorMessage, err = dec.DecodeBoolean()
	return err
}
