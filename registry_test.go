package xmal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/message"
)

func TestBuiltinCodecsAreRegistered(t *testing.T) {
	assert.Subset(t, Codecs(), []string{"fixed", "split", "variable"})

	c, err := NewCodec("split", element.NewRegistry(), message.NewLayouts())
	require.NoError(t, err)
	assert.Equal(t, "split", c.Name())

	_, err = NewCodec("xml", nil, nil)
	var unknown ErrUnknownCodec
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "xml")
}

func TestTransportRegistry(t *testing.T) {
	boom := errors.New("no backend")
	require.NoError(t, RegisterTransport("registry-test", func(map[string]any) (Transport, error) {
		return nil, boom
	}))
	assert.Contains(t, Transports(), "registry-test")

	_, err := NewTransport("registry-test", nil)
	assert.ErrorIs(t, err, boom)

	_, err = NewTransport("absent", nil)
	var unknown ErrUnknownTransport
	assert.ErrorAs(t, err, &unknown)

	assert.Error(t, RegisterTransport("", func(map[string]any) (Transport, error) { return nil, nil }))
	assert.Error(t, RegisterTransport("nil-factory", nil))
	assert.Error(t, RegisterCodec("nil-codec", nil))
}
