package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xmal"
)

func newTransport(t *testing.T, cfg Config) *Transport {
	t.Helper()
	if cfg.Network == "" {
		cfg.Network = t.Name()
	}
	tr := NewTransport(ConfigFromMap(cfg.toMap()))
	t.Cleanup(func() { _ = tr.Close(context.Background()) })
	return tr
}

func TestConfigFromMapDefaults(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{})
	assert.Equal(t, DefaultNetwork, cfg.Network)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxRedeliveries)
	assert.True(t, cfg.AssignIDs)

	cfg = ConfigFromMap(map[string]any{"redelivery_delay": "250ms", "concurrency": float64(2), "network": "n1"})
	assert.Equal(t, 250*time.Millisecond, cfg.RedeliveryDelay)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "n1", cfg.Network)
}

func TestPublishToUnknownDestination(t *testing.T) {
	tr := newTransport(t, Config{})
	err := tr.Publish(context.Background(), "malmem://nobody", &xmal.Envelope{Payload: []byte{1}})
	require.ErrorIs(t, err, xmal.ErrDestinationUnknown)
	assert.Equal(t, uint64(1), tr.Stats().PublishErrors)
}

func TestTransportsShareNetwork(t *testing.T) {
	a := newTransport(t, Config{})
	b := newTransport(t, Config{})

	got := make(chan *xmal.Envelope, 1)
	_, err := b.Subscribe(context.Background(), "malmem://b", "malmem://b", func(d xmal.Delivery) {
		got <- d.Envelope()
		_ = d.Ack(context.Background())
	})
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), "malmem://b", &xmal.Envelope{From: "malmem://a", Payload: []byte("x")}))
	select {
	case env := <-got:
		assert.Equal(t, "x", string(env.Payload))
		assert.NotEmpty(t, env.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("not delivered")
	}

	other := NewTransport(Config{Network: t.Name() + "-other"})
	defer other.Close(context.Background())
	assert.ErrorIs(t, other.Publish(context.Background(), "malmem://b", &xmal.Envelope{}), xmal.ErrDestinationUnknown)
}

func TestSenderOrderIsPreserved(t *testing.T) {
	tr := newTransport(t, Config{Concurrency: 8})

	const n = 200
	var (
		mu  sync.Mutex
		seq = map[string][]int{}
		wg  sync.WaitGroup
	)
	wg.Add(2 * n)
	_, err := tr.Subscribe(context.Background(), "malmem://sink", "malmem://sink", func(d xmal.Delivery) {
		defer wg.Done()
		env := d.Envelope()
		i, _ := strconv.Atoi(string(env.Payload))
		mu.Lock()
		seq[env.From] = append(seq[env.From], i)
		mu.Unlock()
		_ = d.Ack(context.Background())
	})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		for _, from := range []string{"malmem://p1", "malmem://p2"} {
			require.NoError(t, tr.Publish(context.Background(), "malmem://sink",
				&xmal.Envelope{From: from, Payload: []byte(strconv.Itoa(i))}))
		}
	}
	wg.Wait()

	for from, got := range seq {
		require.Len(t, got, n, from)
		for i, v := range got {
			require.Equal(t, i, v, "%s out of order", from)
		}
	}
}

func TestNackRedeliversUpToLimit(t *testing.T) {
	tr := newTransport(t, Config{MaxRedeliveries: 2})

	var attempts atomic.Int32
	_, err := tr.Subscribe(context.Background(), "malmem://flaky", "malmem://flaky", func(d xmal.Delivery) {
		attempts.Add(1)
		_ = d.Nack(context.Background(), errors.New("not yet"))
	})
	require.NoError(t, err)

	require.NoError(t, tr.Publish(context.Background(), "malmem://flaky", &xmal.Envelope{}))
	assert.Eventually(t, func() bool { return tr.Stats().Dropped == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, uint64(2), tr.Stats().Redelivered)
}

func TestAckAndNackAreExclusive(t *testing.T) {
	tr := newTransport(t, Config{})

	done := make(chan struct{})
	_, err := tr.Subscribe(context.Background(), "malmem://once", "malmem://once", func(d xmal.Delivery) {
		_ = d.Ack(context.Background())
		_ = d.Nack(context.Background(), errors.New("late"))
		close(done)
	})
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), "malmem://once", &xmal.Envelope{}))
	<-done

	st := tr.Stats()
	assert.Equal(t, uint64(1), st.Acked)
	assert.Equal(t, uint64(0), st.Nacked)
}

func TestClosedSubscriptionLeavesNetwork(t *testing.T) {
	tr := newTransport(t, Config{})
	sub, err := tr.Subscribe(context.Background(), "malmem://gone", "malmem://gone", func(d xmal.Delivery) {
		_ = d.Ack(context.Background())
	})
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), "malmem://gone", &xmal.Envelope{}))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.ErrorIs(t, tr.Publish(context.Background(), "malmem://gone", &xmal.Envelope{}), xmal.ErrDestinationUnknown)
}

func TestClosedTransportRejects(t *testing.T) {
	tr := NewTransport(Config{Network: t.Name()})
	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, tr.Close(context.Background()))

	assert.ErrorIs(t, tr.Publish(context.Background(), "x", &xmal.Envelope{}), ErrTransportClosed)
	_, err := tr.Subscribe(context.Background(), "x", "x", func(xmal.Delivery) {})
	assert.ErrorIs(t, err, ErrTransportClosed)
}
