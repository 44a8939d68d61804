package element

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortFormLayout(t *testing.T) {
	sf := NewShortForm(4, 2, 3, 17)
	assert.Equal(t, uint16(4), sf.Area())
	assert.Equal(t, uint16(2), sf.Service())
	assert.Equal(t, uint8(3), sf.Version())
	assert.Equal(t, int32(17), sf.Type())
	assert.False(t, sf.IsList())

	list := sf.List()
	assert.True(t, list.IsList())
	assert.Equal(t, int32(-17), list.Type())
	assert.Equal(t, sf, list.Item())
	assert.Equal(t, list, list.List())
}

func TestAttributeShortForms(t *testing.T) {
	for typ := uint8(1); typ <= AttributeTypeCount; typ++ {
		a := NewAttribute(typ)
		require.NotNil(t, a, "type %d", typ)
		assert.Equal(t, typ, a.AttributeType())
		assert.Equal(t, AttributeShortForm(typ), a.ShortForm())
		assert.Equal(t, MALArea, a.ShortForm().Area())
	}
	assert.Nil(t, NewAttribute(0))
	assert.Nil(t, NewAttribute(AttributeTypeCount+1))
}

func TestRegistry(t *testing.T) {
	r := NewEmptyRegistry()
	sf := NewShortForm(200, 1, 1, 1)

	_, err := r.Create(sf)
	assert.ErrorIs(t, err, ErrNotRegistered)

	require.NoError(t, r.Register(sf, func() Element { return &NamedValue{} }))
	var dup ErrDuplicate
	assert.ErrorAs(t, r.Register(sf, func() Element { return &NamedValue{} }), &dup)
	assert.ErrorIs(t, r.Register(sf, nil), ErrNilFactory)

	e, err := r.Create(sf)
	require.NoError(t, err)
	assert.IsType(t, &NamedValue{}, e)

	// generic list form of a registered item
	l, err := r.Create(sf.List())
	require.NoError(t, err)
	list, ok := l.(*List)
	require.True(t, ok)
	assert.Equal(t, sf, list.ItemShortForm())

	r.Seal()
	assert.ErrorIs(t, r.Register(NewShortForm(200, 1, 1, 2), func() Element { return &NamedValue{} }), ErrRegistrySealed)
	assert.Equal(t, 1, r.Len())
}

func TestBuiltinRegistry(t *testing.T) {
	r := NewRegistry()
	for _, sf := range []ShortForm{
		IdentifierListShortForm,
		AttributeListShortForm,
		UpdateHeaderShortForm,
		UpdateHeaderListShortForm,
		SubscriptionShortForm,
		SubscriptionFilterListShortForm,
		NamedValueListShortForm,
		AttributeShortForm(StringType),
		AttributeShortForm(StringType).List(),
	} {
		_, err := r.Create(sf)
		assert.NoError(t, err, "short form %#x", int64(sf))
	}
	e, err := r.Create(IdentifierListShortForm)
	require.NoError(t, err)
	assert.IsType(t, &IdentifierList{}, e)
}

func TestAttributeEqual(t *testing.T) {
	ts := time.Unix(100, 0)
	assert.True(t, AttributeEqual(NewString("x"), NewString("x")))
	assert.False(t, AttributeEqual(NewString("x"), NewIdentifier("x")))
	assert.False(t, AttributeEqual(NewUInteger(1), NewUInteger(2)))
	assert.True(t, AttributeEqual(NewBlob([]byte{1}), NewBlob([]byte{1})))
	assert.True(t, AttributeEqual(NewTime(ts), NewTime(ts.UTC())))
	assert.True(t, AttributeEqual(nil, nil))
	assert.False(t, AttributeEqual(nil, NewLong(0)))
}

func TestWildcards(t *testing.T) {
	assert.True(t, IsWildcard(NewIdentifier("*")))
	assert.True(t, IsWildcard(NewString("*")))
	assert.False(t, IsWildcard(NewString("x")))
	assert.False(t, IsWildcard(NewLong(0)))

	assert.True(t, (&SubscriptionFilter{Name: "K"}).AcceptsAny())
	assert.True(t, (&SubscriptionFilter{Name: "K", Values: AttributeList{NewString("a"), NewString("*")}}).AcceptsAny())
	assert.False(t, (&SubscriptionFilter{Name: "K", Values: AttributeList{NewString("a")}}).AcceptsAny())
}

func TestSequenceSubset(t *testing.T) {
	l := NewList(AttributeShortForm(StringType), NewString("a"), NewString("b"), NewString("c"))
	sub := l.Subset([]int{0, 2}).(*List)
	require.Equal(t, 2, sub.Len())
	assert.Equal(t, String("a"), *sub.Items[0].(*String))
	assert.Equal(t, String("c"), *sub.Items[1].(*String))
	assert.Equal(t, l.ShortForm(), sub.ShortForm())

	headers := UpdateHeaderList{{Source: "s1"}, {Source: "s2"}}
	hs := headers.Subset([]int{1}).(*UpdateHeaderList)
	require.Len(t, *hs, 1)
	assert.Equal(t, Identifier("s2"), (*hs)[0].Source)

	ids := NewIdentifierList("x", "y")
	assert.Equal(t, []string{"y"}, (*ids.Subset([]int{1}).(*IdentifierList)).Strings())
}

func TestNamedValueListGet(t *testing.T) {
	l := NamedValueList{{Name: "K1", Value: NewString("x")}, nil, {Name: "K2", Value: nil}}
	v, ok := l.Get("K1")
	require.True(t, ok)
	assert.True(t, AttributeEqual(NewString("x"), v))
	v, ok = l.Get("K2")
	assert.True(t, ok)
	assert.Nil(t, v)
	_, ok = l.Get("K3")
	assert.False(t, ok)
}
