package message

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/wire"
)

var schemes = []wire.Scheme{wire.Fixed, wire.Variable, wire.Split}

func testHeader(typ InteractionType, stage Stage) *Header {
	return &Header{
		URIFrom:          "malmem://consumer",
		AuthenticationID: []byte{0xCA, 0xFE},
		URITo:            "malmem://provider",
		Timestamp:        time.UnixMilli(1_700_000_000_123).UTC(),
		QoSLevel:         Assured,
		Priority:         7,
		Domain:           element.NewIdentifierList("esa", "mission"),
		NetworkZone:      "ground",
		Session:          Live,
		SessionName:      "LIVE",
		InteractionType:  typ,
		InteractionStage: stage,
		TransactionID:    42,
		ServiceArea:      200,
		Service:          1,
		Operation:        3,
		AreaVersion:      1,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, s := range schemes {
		t.Run(s.Name(), func(t *testing.T) {
			h := testHeader(Request, RequestStage)
			data, err := Encode(New(h), s, nil)
			require.NoError(t, err)

			m, err := Decode(data, s, element.NewRegistry(), nil)
			require.NoError(t, err)
			assert.Equal(t, h, m.Header)
			assert.Empty(t, m.Body)
		})
	}
}

func TestHeaderEmptyAuthenticationIDDecodesNil(t *testing.T) {
	for _, id := range [][]byte{nil, {}} {
		h := testHeader(Send, SendStage)
		h.AuthenticationID = id
		data, err := Encode(New(h), wire.Split, nil)
		require.NoError(t, err)
		m, err := Decode(data, wire.Split, element.NewRegistry(), nil)
		require.NoError(t, err)
		assert.Nil(t, m.Header.AuthenticationID)
	}
}

func TestHeaderFullPriorityRange(t *testing.T) {
	for _, s := range schemes {
		for _, p := range []uint32{1 << 28, math.MaxUint32} {
			h := testHeader(Request, RequestStage)
			h.Priority = p
			data, err := Encode(New(h), s, nil)
			require.NoError(t, err, "%s %d", s.Name(), p)
			m, err := Decode(data, s, element.NewRegistry(), nil)
			require.NoError(t, err)
			assert.Equal(t, p, m.Header.Priority)
		}
	}
}

func TestHeaderNilDomainEncodesEmpty(t *testing.T) {
	h := testHeader(Send, SendStage)
	h.Domain = nil
	data, err := Encode(New(h), wire.Variable, nil)
	require.NoError(t, err)
	m, err := Decode(data, wire.Variable, element.NewRegistry(), nil)
	require.NoError(t, err)
	assert.Empty(t, m.Header.Domain)
}

func TestDefaultLayoutIsAbstract(t *testing.T) {
	reg := element.NewRegistry()
	body := []element.Element{element.NewString("hello"), nil, element.NewUInteger(9)}
	for _, s := range schemes {
		data, err := Encode(New(testHeader(Invoke, InvokeStage), body...), s, NewLayouts())
		require.NoError(t, err)
		m, err := Decode(data, s, reg, NewLayouts())
		require.NoError(t, err)
		require.Len(t, m.Body, 3)
		assert.Equal(t, element.String("hello"), *m.Body[0].(*element.String))
		assert.Nil(t, m.Body[1])
		assert.Equal(t, element.UInteger(9), *m.Body[2].(*element.UInteger))
	}
}

func TestDeclaredLayout(t *testing.T) {
	reg := element.NewRegistry()
	op := OperationKey{Area: 200, Service: 1, Version: 1, Operation: 3}
	layouts := NewLayouts()
	layouts.Register(op, Request, RequestStage, Layout{Slots: []Slot{
		Concrete(element.AttributeShortForm(element.StringType)),
		AbstractSlot,
	}})

	data, err := Encode(New(testHeader(Request, RequestStage), element.NewString("a"), element.NewLong(5)), wire.Fixed, layouts)
	require.NoError(t, err)
	m, err := Decode(data, wire.Fixed, reg, layouts)
	require.NoError(t, err)
	assert.Equal(t, element.String("a"), *m.Body[0].(*element.String))
	assert.Equal(t, element.Long(5), *m.Body[1].(*element.Long))

	// decoding without the layout reads garbage as abstract elements
	_, err = Decode(data, wire.Fixed, reg, nil)
	assert.Error(t, err)

	_, err = Encode(New(testHeader(Request, RequestStage), element.NewString("a")), wire.Fixed, layouts)
	assert.ErrorIs(t, err, ErrBodyMismatch)
	_, err = Encode(New(testHeader(Request, RequestStage), element.NewString("a"), nil, nil), wire.Fixed, layouts)
	assert.ErrorIs(t, err, ErrBodyMismatch)
	_, err = Encode(New(testHeader(Request, RequestStage), element.NewLong(1), nil), wire.Fixed, layouts)
	assert.ErrorIs(t, err, ErrBodyMismatch)
}

func TestPubSubLayouts(t *testing.T) {
	reg := element.NewRegistry()
	updates := element.UpdateHeaderList{{Source: "s", KeyValues: element.AttributeList{element.NewString("x")}}}
	values := element.NewList(element.AttributeShortForm(element.StringType), element.NewString("v"))

	cases := []struct {
		stage Stage
		body  []element.Element
	}{
		{RegisterStage, []element.Element{&element.Subscription{SubscriptionID: "sub1"}}},
		{RegisterAckStage, nil},
		{PublishRegisterStage, []element.Element{ptr(element.NewIdentifierList("K1"))}},
		{PublishStage, []element.Element{&updates, values}},
		{NotifyStage, []element.Element{element.NewIdentifier("sub1"), &updates, values}},
		{DeregisterStage, []element.Element{ptr(element.NewIdentifierList("sub1"))}},
		{PublishDeregisterStage, nil},
	}
	for _, c := range cases {
		t.Run(StageName(PubSub, c.stage), func(t *testing.T) {
			for _, s := range schemes {
				data, err := Encode(New(testHeader(PubSub, c.stage), c.body...), s, nil)
				require.NoError(t, err)
				m, err := Decode(data, s, reg, nil)
				require.NoError(t, err)
				require.Len(t, m.Body, len(c.body))
				for i := range c.body {
					assert.Equal(t, c.body[i].ShortForm(), m.Body[i].ShortForm())
				}
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	reg := element.NewRegistry()
	h := testHeader(Submit, SubmitStage).Reply(SubmitAckStage, true, time.UnixMilli(5).UTC())
	se := NewStandardError(Unknown, "The number of published keys does not match!")

	data, err := Encode(New(h, se.Body()...), wire.Split, nil)
	require.NoError(t, err)
	m, err := Decode(data, wire.Split, reg, nil)
	require.NoError(t, err)

	got, err := StandardErrorFrom(m)
	require.NoError(t, err)
	assert.Equal(t, Unknown, got.Code)
	assert.ErrorIs(t, got, &StandardError{Code: Unknown})
	assert.Contains(t, got.Error(), "UNKNOWN (65550): The number of published keys does not match!")

	_, err = StandardErrorFrom(New(testHeader(Send, SendStage)))
	assert.ErrorIs(t, err, ErrNotError)
}

func TestErrorWithoutExtraInfo(t *testing.T) {
	h := testHeader(Request, RequestStage).Reply(RequestResponseStage, true, time.Time{})
	data, err := Encode(New(h, NewStandardError(Shutdown, "").Body()...), wire.Variable, nil)
	require.NoError(t, err)
	m, err := Decode(data, wire.Variable, element.NewRegistry(), nil)
	require.NoError(t, err)
	se, err := StandardErrorFrom(m)
	require.NoError(t, err)
	assert.Nil(t, se.ExtraInfo)
	assert.Equal(t, "mal: SHUTDOWN (65553)", se.Error())
}

func TestReply(t *testing.T) {
	h := testHeader(Invoke, InvokeStage)
	r := h.Reply(InvokeAckStage, false, time.UnixMilli(1).UTC())
	assert.Equal(t, h.URITo, r.URIFrom)
	assert.Equal(t, h.URIFrom, r.URITo)
	assert.Equal(t, h.TransactionID, r.TransactionID)
	assert.Equal(t, InvokeAckStage, r.InteractionStage)
	assert.Equal(t, InvokeStage, h.InteractionStage)
	assert.Equal(t, "INVOKE_ACK", r.StageName())
}

func TestTrailingBytes(t *testing.T) {
	data, err := Encode(New(testHeader(PubSub, RegisterAckStage)), wire.Variable, nil)
	require.NoError(t, err)
	_, err = Decode(append(data, 0x01), wire.Variable, element.NewRegistry(), nil)
	assert.ErrorIs(t, err, ErrBodyMismatch)
}

func TestAsStandardError(t *testing.T) {
	se := NewStandardError(TooMany, "x")
	assert.Same(t, se, AsStandardError(se))
	assert.Equal(t, Internal, AsStandardError(assert.AnError).Code)
}

func ptr[T any](v T) *T { return &v }
