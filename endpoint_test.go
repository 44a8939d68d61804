package xmal_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xmal"
	"github.com/trickstertwo/xmal/adapter/memory"
	"github.com/trickstertwo/xmal/broker"
	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
)

var (
	echoOp   = message.OperationKey{Area: 200, Service: 1, Version: 1, Operation: 1}
	statusOp = message.OperationKey{Area: 200, Service: 2, Version: 1, Operation: 1}
)

func newEndpoint(t *testing.T, uri string, opts ...func(*xmal.EndpointBuilder)) *xmal.Endpoint {
	t.Helper()
	b := xmal.NewEndpointBuilder().
		WithURI(uri).
		WithTransport(memory.TransportName, map[string]any{"network": t.Name()}).
		WithTimeout(2 * time.Second)
	for _, o := range opts {
		o(b)
	}
	ep, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Close(context.Background()) })
	return ep
}

func str(m *message.Message, i int) string {
	s, ok := m.Element(i).(*element.String)
	if !ok || s == nil {
		return ""
	}
	return string(*s)
}

func upper(ctx context.Context, in *xmal.Interaction) error {
	s, _ := in.Body()[0].(*element.String)
	return in.Respond(ctx, element.NewString(strings.ToUpper(string(*s))))
}

func TestRequestResponse(t *testing.T) {
	for _, codec := range []string{"fixed", "variable", "split"} {
		t.Run(codec, func(t *testing.T) {
			withCodec := func(b *xmal.EndpointBuilder) { b.WithCodec(codec) }
			provider := newEndpoint(t, "malmem://provider", withCodec)
			provider.Handle(echoOp, upper)
			consumer := newEndpoint(t, "malmem://consumer", withCodec)

			resp, err := consumer.Request(context.Background(), provider.URI(), echoOp, element.NewString("ping"))
			require.NoError(t, err)
			assert.Equal(t, "PING", str(resp, 0))
			assert.Equal(t, message.RequestResponseStage, resp.Header.InteractionStage)
			assert.Equal(t, provider.URI(), resp.Header.URIFrom)
			assert.Equal(t, 0, consumer.GetMetrics().OpenTransactions)
		})
	}
}

func TestSplitCarriesHighPriority(t *testing.T) {
	split := func(b *xmal.EndpointBuilder) { b.WithCodec("split").WithPriority(1 << 28) }
	provider := newEndpoint(t, "malmem://provider", split)
	provider.Handle(echoOp, upper)
	consumer := newEndpoint(t, "malmem://consumer", split)

	resp, err := consumer.Request(context.Background(), provider.URI(), echoOp, element.NewString("ping"))
	require.NoError(t, err)
	assert.Equal(t, "PING", str(resp, 0))
	assert.Equal(t, uint32(1<<28), resp.Header.Priority)
}

func TestSendDeliversWithoutReply(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	got := make(chan string, 1)
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		got <- str(in.Message(), 0)
		return nil
	})
	consumer := newEndpoint(t, "malmem://consumer")

	require.NoError(t, consumer.Send(context.Background(), provider.URI(), echoOp, element.NewString("fire")))
	select {
	case v := <-got:
		assert.Equal(t, "fire", v)
	case <-time.After(2 * time.Second):
		t.Fatal("send not delivered")
	}
	assert.Equal(t, 0, consumer.GetMetrics().OpenTransactions)
}

func TestHandlerCallsBackItsCaller(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			transport := func(b *xmal.EndpointBuilder) {
				b.WithTransport(memory.TransportName, map[string]any{"network": t.Name(), "concurrency": workers})
			}
			provider := newEndpoint(t, "malmem://provider", transport)
			consumer := newEndpoint(t, "malmem://consumer", transport)
			third := newEndpoint(t, "malmem://third", transport)

			status := func(name string) xmal.ProviderHandler {
				return func(ctx context.Context, in *xmal.Interaction) error {
					return in.Respond(ctx, element.NewString(name))
				}
			}
			consumer.Handle(statusOp, status("consumer"))
			third.Handle(statusOp, status("third"))

			provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
				ctx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				back, err := provider.Request(ctx, in.Header().URIFrom, statusOp)
				if err != nil {
					return err
				}
				other, err := provider.Request(ctx, third.URI(), statusOp)
				if err != nil {
					return err
				}
				return in.Respond(ctx, element.NewString(str(back, 0)+"+"+str(other, 0)))
			})

			resp, err := consumer.Request(context.Background(), provider.URI(), echoOp)
			require.NoError(t, err)
			assert.Equal(t, "consumer+third", str(resp, 0))
		})
	}
}

func TestHandlerConcurrencyLimit(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider", func(b *xmal.EndpointBuilder) { b.WithHandlerConcurrency(1) })
	consumer := newEndpoint(t, "malmem://consumer")

	var (
		mu            sync.Mutex
		running, peak int
	)
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return upper(ctx, in)
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := consumer.Request(context.Background(), provider.URI(), echoOp, element.NewString("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

func TestSubmitAck(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		return in.Ack(ctx)
	})
	consumer := newEndpoint(t, "malmem://consumer")

	require.NoError(t, consumer.Submit(context.Background(), provider.URI(), echoOp, element.NewUInteger(1)))
}

func TestInvokeAckThenResponse(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		if err := in.Ack(ctx); err != nil {
			return err
		}
		return in.Respond(ctx, element.NewString("done"))
	})
	consumer := newEndpoint(t, "malmem://consumer")

	events := make(chan interaction.Event, 1)
	ack, err := consumer.Invoke(context.Background(), provider.URI(), echoOp,
		func(ev interaction.Event) { events <- ev }, element.NewString("job"))
	require.NoError(t, err)
	assert.Equal(t, message.InvokeAckStage, ack.Header.InteractionStage)

	select {
	case ev := <-events:
		assert.Equal(t, interaction.OutcomeResponse, ev.Outcome)
		assert.Equal(t, "done", str(ev.Message, 0))
	case <-time.After(2 * time.Second):
		t.Fatal("no invoke response")
	}
}

func TestProgressUpdates(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		if err := in.Ack(ctx); err != nil {
			return err
		}
		for _, step := range []string{"1", "2", "3"} {
			if err := in.Update(ctx, element.NewString(step)); err != nil {
				return err
			}
		}
		return in.Respond(ctx, element.NewString("end"))
	})
	consumer := newEndpoint(t, "malmem://consumer")

	var (
		mu       sync.Mutex
		received []string
		done     = make(chan struct{})
	)
	_, err := consumer.Progress(context.Background(), provider.URI(), echoOp, func(ev interaction.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev.Outcome.String()+":"+str(ev.Message, 0))
		if ev.Outcome == interaction.OutcomeResponse {
			close(done)
		}
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no progress response")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"update:1", "update:2", "update:3", "response:end"}, received)
	assert.Equal(t, 0, consumer.GetMetrics().OpenTransactions)
}

func TestHandlerErrorBecomesErrorReply(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		return message.NewStandardError(message.TooMany, "busy")
	})
	consumer := newEndpoint(t, "malmem://consumer")

	_, err := consumer.Request(context.Background(), provider.URI(), echoOp, element.NewString("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, message.NewStandardError(message.TooMany, "")))

	var ie *interaction.Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, message.RequestResponseStage, ie.Stage)
	assert.Contains(t, err.Error(), "busy")
}

func TestPlainHandlerErrorIsInternal(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		return errors.New("disk on fire")
	})
	consumer := newEndpoint(t, "malmem://consumer")

	err := consumer.Submit(context.Background(), provider.URI(), echoOp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, message.NewStandardError(message.Internal, "")))
}

func TestUnsupportedOperation(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	consumer := newEndpoint(t, "malmem://consumer")

	_, err := consumer.Request(context.Background(), provider.URI(), echoOp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, message.NewStandardError(message.UnsupportedOperation, "")))
}

func TestRequestTimeout(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		return nil
	})
	consumer := newEndpoint(t, "malmem://consumer")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := consumer.Request(ctx, provider.URI(), echoOp)
	require.ErrorIs(t, err, xmal.ErrResponseTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, consumer.GetMetrics().OpenTransactions)
}

func TestUnknownDestination(t *testing.T) {
	consumer := newEndpoint(t, "malmem://consumer")

	err := consumer.Send(context.Background(), "malmem://nobody", echoOp)
	require.ErrorIs(t, err, xmal.ErrDestinationUnknown)

	_, err = consumer.Request(context.Background(), "malmem://nobody", echoOp)
	require.ErrorIs(t, err, xmal.ErrDestinationUnknown)
	assert.Equal(t, 0, consumer.GetMetrics().OpenTransactions)
}

func TestReplyAfterFinalIsRejected(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	second := make(chan error, 1)
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		if err := in.Respond(ctx); err != nil {
			return err
		}
		second <- in.Respond(ctx)
		return nil
	})
	consumer := newEndpoint(t, "malmem://consumer")

	_, err := consumer.Request(context.Background(), provider.URI(), echoOp)
	require.NoError(t, err)
	assert.ErrorIs(t, <-second, xmal.ErrReplyNotAllowed)
}

func TestUpdateOutsideProgressIsRejected(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		if err := in.Update(ctx); !errors.Is(err, xmal.ErrReplyNotAllowed) {
			return errors.New("update accepted for request")
		}
		return in.Respond(ctx)
	})
	consumer := newEndpoint(t, "malmem://consumer")

	_, err := consumer.Request(context.Background(), provider.URI(), echoOp)
	require.NoError(t, err)
}

func TestCloseFailsPendingCalls(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	started := make(chan struct{})
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		close(started)
		return nil
	})
	consumer := newEndpoint(t, "malmem://consumer")

	errc := make(chan error, 1)
	go func() {
		_, err := consumer.Request(context.Background(), provider.URI(), echoOp)
		errc <- err
	}()
	<-started
	require.NoError(t, consumer.Close(context.Background()))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, xmal.ErrEndpointClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not released")
	}
	assert.ErrorIs(t, consumer.Send(context.Background(), provider.URI(), echoOp), xmal.ErrEndpointClosed)
	assert.Equal(t, "unhealthy", consumer.Health(context.Background()).Status)
}

func TestPubSubEndToEnd(t *testing.T) {
	brk := newEndpoint(t, "malmem://broker", func(b *xmal.EndpointBuilder) { b.WithBroker() })
	domain := func(b *xmal.EndpointBuilder) { b.WithDomain("esa", "mission") }
	publisher := newEndpoint(t, "malmem://publisher", domain)
	consumer := newEndpoint(t, "malmem://consumer", domain)
	ctx := context.Background()

	notifies := make(chan interaction.Event, 4)
	sub := &element.Subscription{
		SubscriptionID: "sub-1",
		Domain:         element.NewIdentifierList("esa", "*"),
		Filters: element.SubscriptionFilterList{
			{Name: "K1", Values: element.AttributeList{element.NewString("A")}},
		},
	}
	require.NoError(t, consumer.Register(ctx, brk.URI(), statusOp, sub, func(ev interaction.Event) { notifies <- ev }))
	require.NoError(t, publisher.PublishRegister(ctx, brk.URI(), statusOp, []string{"K1"}, nil))
	require.Len(t, brk.Broker().Subscriptions(), 1)
	require.Len(t, brk.Broker().Publishers(), 1)

	updates := element.UpdateHeaderList{
		{Source: "s1", KeyValues: element.AttributeList{element.NewString("A")}},
		{Source: "s2", KeyValues: element.AttributeList{element.NewString("B")}},
	}
	values := element.AttributeList{element.NewUInteger(1), element.NewUInteger(2)}
	require.NoError(t, publisher.Publish(ctx, brk.URI(), statusOp, updates, &values))

	select {
	case ev := <-notifies:
		assert.Equal(t, interaction.OutcomeNotify, ev.Outcome)
		nb, err := broker.ParseNotify(ev.Message)
		require.NoError(t, err)
		assert.Equal(t, "sub-1", nb.SubscriptionID)
		require.Len(t, nb.Updates, 1)
		assert.Equal(t, element.Identifier("s1"), nb.Updates[0].Source)
		require.Len(t, nb.Lists, 1)
		require.Equal(t, 1, nb.Lists[0].Len())
	case <-time.After(2 * time.Second):
		t.Fatal("no notify")
	}

	require.NoError(t, consumer.Deregister(ctx, brk.URI(), statusOp, "sub-1"))
	assert.Empty(t, brk.Broker().Subscriptions())
	require.NoError(t, publisher.PublishDeregister(ctx, brk.URI(), statusOp))
	assert.Empty(t, brk.Broker().Publishers())
}

func TestPublishRejectionReachesPublisher(t *testing.T) {
	brk := newEndpoint(t, "malmem://broker", func(b *xmal.EndpointBuilder) { b.WithBroker() })
	publisher := newEndpoint(t, "malmem://publisher")
	ctx := context.Background()

	rejected := make(chan interaction.Event, 1)
	require.NoError(t, publisher.PublishRegister(ctx, brk.URI(), statusOp, []string{"K1"},
		func(ev interaction.Event) { rejected <- ev }))

	updates := element.UpdateHeaderList{
		{Source: "s1", KeyValues: element.AttributeList{element.NewString("A"), element.NewString("extra")}},
	}
	require.NoError(t, publisher.Publish(ctx, brk.URI(), statusOp, updates))

	select {
	case ev := <-rejected:
		assert.Equal(t, interaction.OutcomeError, ev.Outcome)
		require.NotNil(t, ev.Err)
		assert.True(t, errors.Is(ev.Err, message.NewStandardError(message.Unknown, "")))
		assert.Contains(t, ev.Err.Error(), broker.KeyCountMismatch)
	case <-time.After(2 * time.Second):
		t.Fatal("no publish error")
	}
}

func TestRegisterWithoutBroker(t *testing.T) {
	plain := newEndpoint(t, "malmem://plain")
	consumer := newEndpoint(t, "malmem://consumer")

	err := consumer.Register(context.Background(), plain.URI(), statusOp,
		&element.Subscription{SubscriptionID: "s"}, func(interaction.Event) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, message.NewStandardError(message.UnsupportedOperation, "")))
}

func TestNotifyToVanishedSubscriberIsDropped(t *testing.T) {
	brk := newEndpoint(t, "malmem://broker", func(b *xmal.EndpointBuilder) { b.WithBroker() })
	publisher := newEndpoint(t, "malmem://publisher")
	consumer := newEndpoint(t, "malmem://consumer")
	ctx := context.Background()

	require.NoError(t, consumer.Register(ctx, brk.URI(), statusOp, &element.Subscription{SubscriptionID: "s"}, func(interaction.Event) {}))
	require.NoError(t, publisher.PublishRegister(ctx, brk.URI(), statusOp, nil, nil))
	require.NoError(t, consumer.Close(ctx))

	require.NoError(t, publisher.Publish(ctx, brk.URI(), statusOp, element.UpdateHeaderList{{Source: "s1"}}))
	assert.Eventually(t, func() bool { return len(brk.Broker().Subscriptions()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestObserverSeesTraffic(t *testing.T) {
	var (
		mu    sync.Mutex
		types = map[xmal.EventType]int{}
	)
	obs := xmal.ObserverFunc(func(e xmal.Event) {
		mu.Lock()
		types[e.Type]++
		mu.Unlock()
	})
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, upper)
	consumer := newEndpoint(t, "malmem://consumer", func(b *xmal.EndpointBuilder) { b.WithObserver(obs) })

	_, err := consumer.Request(context.Background(), provider.URI(), echoOp, element.NewString("a"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return types[xmal.SendDone] >= 1 && types[xmal.ReceiveDone] >= 1
	}, 2*time.Second, 10*time.Millisecond)

	m := consumer.GetMetrics()
	assert.Equal(t, uint64(1), m.Sent)
	assert.Equal(t, uint64(1), m.Received)
	assert.Equal(t, "healthy", consumer.Health(context.Background()).Status)
}

func TestBuildWithoutTransport(t *testing.T) {
	_, err := xmal.NewEndpointBuilder().Build()
	assert.ErrorIs(t, err, xmal.ErrNoTransportConfigured)

	_, err = xmal.NewEndpointBuilder().WithTransport("carrier-pigeon", nil).Build()
	var unknown xmal.ErrUnknownTransport
	assert.ErrorAs(t, err, &unknown)

	_, err = xmal.NewEndpointBuilder().WithTransport(memory.TransportName, nil).WithCodec("morse").Build()
	var unknownCodec xmal.ErrUnknownCodec
	assert.ErrorAs(t, err, &unknownCodec)
}

func TestFacadeUsesDefault(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, upper)
	consumer := memory.Use(memory.Config{Network: t.Name()}, memory.WithURI("malmem://facade"))
	t.Cleanup(func() { _ = consumer.Close(context.Background()) })

	resp, err := xmal.Request(context.Background(), provider.URI(), echoOp, element.NewString("hi"))
	require.NoError(t, err)
	assert.Equal(t, "HI", str(resp, 0))
}

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	provider := newEndpoint(t, "malmem://provider")
	provider.Handle(echoOp, func(ctx context.Context, in *xmal.Interaction) error {
		panic("boom")
	})
	consumer := newEndpoint(t, "malmem://consumer")

	_, err := consumer.Request(context.Background(), provider.URI(), echoOp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, message.NewStandardError(message.Internal, "")))
	assert.Contains(t, err.Error(), "boom")
}
