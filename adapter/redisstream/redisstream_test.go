package redisstream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xmal"
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/message"
)

func redisAddr() string {
	if a := os.Getenv("XMAL_REDIS_ADDR"); a != "" {
		return a
	}
	return "127.0.0.1:6379"
}

// redisClient returns a connected client or skips the test.
func redisClient(t testing.TB) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr(),
		Password: os.Getenv("XMAL_REDIS_PASSWORD"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available at %s: %v", redisAddr(), err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// testConfig isolates each test under its own stream prefix.
func testConfig(t testing.TB) Config {
	cfg := Defaults()
	cfg.Addr = redisAddr()
	cfg.Password = os.Getenv("XMAL_REDIS_PASSWORD")
	cfg.StreamPrefix = "xmal-test:" + uuid.NewString() + ":"
	cfg.Block = 200 * time.Millisecond
	return cfg
}

func cleanupPrefix(t testing.TB, client *redis.Client, prefix string) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{})
	assert.Equal(t, Defaults().Addr, cfg.Addr)
	assert.Equal(t, "xmal:", cfg.StreamPrefix)
	assert.True(t, cfg.StrictDestinations)
	assert.Empty(t, cfg.Group)

	cfg = ConfigFromMap(map[string]any{
		"addr":           "redis:6380",
		"stream_prefix":  "mo:",
		"strict":         false,
		"group":          "shared",
		"concurrency":    3,
		"block":          time.Second,
		"claim_min_idle": time.Minute,
	})
	assert.Equal(t, "redis:6380", cfg.Addr)
	assert.Equal(t, "mo:", cfg.StreamPrefix)
	assert.False(t, cfg.StrictDestinations)
	assert.Equal(t, "shared", cfg.Group)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, time.Second, cfg.Block)
	assert.Equal(t, time.Minute, cfg.ClaimMinIdle)

	assert.Equal(t, cfg, ConfigFromMap(cfg.toMap()))

	// as decoded from TOML
	cfg = ConfigFromMap(map[string]any{"concurrency": int64(5), "block": "750ms", "db": int64(2)})
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 750*time.Millisecond, cfg.Block)
	assert.Equal(t, 2, cfg.DB)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())

	cases := map[string]func(*Config){
		"addr":        func(c *Config) { c.Addr = "" },
		"consumer":    func(c *Config) { c.Consumer = "" },
		"concurrency": func(c *Config) { c.Concurrency = 0 },
		"batch_size":  func(c *Config) { c.BatchSize = 0 },
		"block":       func(c *Config) { c.Block = 0 },
		"claim_batch": func(c *Config) { c.ClaimBatch = 0 },
		"claim_interval": func(c *Config) {
			c.ClaimMinIdle = time.Second
			c.ClaimInterval = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestDecodeEnvelope(t *testing.T) {
	now := time.Now()
	env := decodeEnvelope("1-0", map[string]any{
		fieldID:                 "env-1",
		fieldTo:                 "malmem://to",
		fieldFrom:               []byte("malmem://from"),
		fieldPayload:            "\x01\x02",
		fieldProducedAt:         strconv.FormatInt(now.UnixNano(), 10),
		fieldMetaPrefix + "k":   "v",
		fieldMetaPrefix + "mal": 7,
		"unrelated":             "x",
	})
	assert.Equal(t, "env-1", env.ID)
	assert.Equal(t, "malmem://to", env.To)
	assert.Equal(t, "malmem://from", env.From)
	assert.Equal(t, []byte{1, 2}, env.Payload)
	assert.Equal(t, now.UnixNano(), env.ProducedAt.UnixNano())
	assert.Equal(t, map[string]string{"k": "v", "mal": "7"}, env.Metadata)

	env = decodeEnvelope("2-0", map[string]any{})
	assert.Equal(t, "2-0", env.ID)
	assert.True(t, env.ProducedAt.IsZero())
}

func TestPublishToUnknownStream(t *testing.T) {
	redisClient(t)
	tr, err := NewTransport(testConfig(t))
	require.NoError(t, err)
	defer tr.Close(context.Background())

	err = tr.Publish(context.Background(), "malmem://nobody", &xmal.Envelope{Payload: []byte{1}})
	require.ErrorIs(t, err, xmal.ErrDestinationUnknown)
}

func TestPublishSubscribePreservesSenderOrder(t *testing.T) {
	client := redisClient(t)
	cfg := testConfig(t)
	cleanupPrefix(t, client, cfg.StreamPrefix)

	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	defer tr.Close(context.Background())

	const n = 100
	var (
		mu  sync.Mutex
		seq = map[string][]int{}
		wg  sync.WaitGroup
	)
	wg.Add(2 * n)
	sub, err := tr.Subscribe(context.Background(), "malmem://sink", "malmem://sink", func(d xmal.Delivery) {
		defer wg.Done()
		env := d.Envelope()
		i, _ := strconv.Atoi(string(env.Payload))
		mu.Lock()
		seq[env.From] = append(seq[env.From], i)
		mu.Unlock()
		_ = d.Ack(context.Background())
	})
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < n; i++ {
		for _, from := range []string{"malmem://p1", "malmem://p2"} {
			require.NoError(t, tr.Publish(context.Background(), "malmem://sink", &xmal.Envelope{
				To:         "malmem://sink",
				From:       from,
				Payload:    []byte(strconv.Itoa(i)),
				Metadata:   map[string]string{xmal.MetaCodec: "variable"},
				ProducedAt: time.Now(),
			}))
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("entries not consumed")
	}

	for from, got := range seq {
		require.Len(t, got, n, from)
		for i, v := range got {
			require.Equal(t, i, v, "%s out of order", from)
		}
	}
}

func TestNackWritesDeadLetter(t *testing.T) {
	client := redisClient(t)
	cfg := testConfig(t)
	cfg.DeadLetter = cfg.StreamPrefix + "dlq"
	cleanupPrefix(t, client, cfg.StreamPrefix)

	tr, err := NewTransport(cfg)
	require.NoError(t, err)
	defer tr.Close(context.Background())

	nacked := make(chan struct{})
	sub, err := tr.Subscribe(context.Background(), "malmem://poison", "malmem://poison", func(d xmal.Delivery) {
		_ = d.Nack(context.Background(), errors.New("cannot decode"))
		close(nacked)
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, tr.Publish(context.Background(), "malmem://poison",
		&xmal.Envelope{From: "malmem://a", Payload: []byte("bad")}))

	select {
	case <-nacked:
	case <-time.After(5 * time.Second):
		t.Fatal("entry not delivered")
	}

	require.Eventually(t, func() bool {
		entries, err := client.XRange(context.Background(), cfg.DeadLetter, "-", "+").Result()
		if err != nil || len(entries) != 1 {
			return false
		}
		v := entries[0].Values
		return v["error"] == "cannot decode" && strings.HasSuffix(fmt.Sprint(v["orig_stream"]), "malmem://poison")
	}, 5*time.Second, 50*time.Millisecond)

	st := tr.(*transport).Stats()
	assert.Equal(t, uint64(1), st.Nacked)
	assert.Equal(t, uint64(1), st.DeadLettered)
	assert.Equal(t, uint64(1), st.Acked)
}

func TestEntryValuesRoundTrip(t *testing.T) {
	at := time.Unix(0, 1_700_000_000_123_456_789)
	in := &xmal.Envelope{
		ID:         "e-1",
		To:         "malmem://b",
		From:       "malmem://a",
		Payload:    []byte{0, 1, 2},
		Metadata:   map[string]string{xmal.MetaCodec: "split"},
		ProducedAt: at,
	}
	vals := entryValues(in)
	assert.Equal(t, "split", vals[fieldMetaPrefix+xmal.MetaCodec])

	out := decodeEnvelope("9-0", vals)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.From, out.From)
	assert.Equal(t, in.Payload, out.Payload)
	assert.True(t, at.Equal(out.ProducedAt))
	assert.Equal(t, in.Metadata, out.Metadata)

	_, hasID := entryValues(&xmal.Envelope{})[fieldID]
	assert.False(t, hasID)
}

func TestEndpointsOverRedis(t *testing.T) {
	client := redisClient(t)
	cfg := testConfig(t)
	cleanupPrefix(t, client, cfg.StreamPrefix)

	op := message.OperationKey{Area: 200, Service: 1, Version: 1, Operation: 1}
	build := func(uri string) *xmal.Endpoint {
		ep, err := xmal.NewEndpointBuilder().
			WithURI(uri).
			WithTransport(TransportName, cfg.toMap()).
			WithTimeout(5 * time.Second).
			Build()
		require.NoError(t, err)
		t.Cleanup(func() { _ = ep.Close(context.Background()) })
		return ep
	}

	provider := build("malmem://redis/provider")
	provider.Handle(op, func(ctx context.Context, in *xmal.Interaction) error {
		s, _ := in.Body()[0].(*element.String)
		return in.Respond(ctx, element.NewString(strings.ToUpper(string(*s))))
	})
	consumer := build("malmem://redis/consumer")

	resp, err := consumer.Request(context.Background(), provider.URI(), op, element.NewString("ping"))
	require.NoError(t, err)
	s, ok := resp.Element(0).(*element.String)
	require.True(t, ok)
	assert.Equal(t, "PING", string(*s))
}

func BenchmarkPublish(b *testing.B) {
	redisClient(b)
	cfg := testConfig(b)
	cfg.StrictDestinations = false
	tr, err := NewTransport(cfg)
	require.NoError(b, err)
	defer tr.Close(context.Background())

	env := &xmal.Envelope{From: "malmem://bench", Payload: make([]byte, 256)}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := tr.Publish(context.Background(), "malmem://bench-sink", env); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	client := redisClient(b)
	_ = client.Del(context.Background(), cfg.StreamPrefix+"malmem://bench-sink").Err()
}
