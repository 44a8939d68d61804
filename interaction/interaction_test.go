package interaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xmal/message"
)

func reply(tx int64, typ message.InteractionType, stage message.Stage) *message.Message {
	return message.New(&message.Header{
		URIFrom:          "malmem://provider",
		URITo:            "malmem://consumer",
		TransactionID:    tx,
		InteractionType:  typ,
		InteractionStage: stage,
	})
}

func errorReply(tx int64, typ message.InteractionType, stage message.Stage, code uint32) *message.Message {
	m := reply(tx, typ, stage)
	m.Header.IsErrorMessage = true
	m.Body = message.NewStandardError(code, "boom").Body()
	return m
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, Allowed(message.Invoke, message.InvokeStage, message.InvokeAckStage))
	assert.False(t, Allowed(message.Invoke, message.InvokeStage, message.InvokeResponseStage))
	assert.True(t, Allowed(message.Progress, message.ProgressUpdateStage, message.ProgressUpdateStage))
	assert.False(t, Allowed(message.Request, message.RequestResponseStage, message.RequestResponseStage))
	assert.True(t, Allowed(message.PubSub, message.RegisterStage, message.RegisterAckStage))

	assert.True(t, IsInitial(message.PubSub, message.NotifyStage))
	assert.False(t, IsInitial(message.Invoke, message.InvokeAckStage))

	assert.True(t, IsTerminal(message.Submit, message.SubmitAckStage))
	assert.False(t, IsTerminal(message.Progress, message.ProgressUpdateStage))

	assert.False(t, ExpectsReply(message.Send, message.SendStage))
	assert.False(t, ExpectsReply(message.PubSub, message.PublishStage))
	assert.True(t, ExpectsReply(message.PubSub, message.PublishRegisterStage))
}

func TestHolderSignalOnce(t *testing.T) {
	h := NewResponseHolder()
	first := reply(1, message.Request, message.RequestResponseStage)
	require.True(t, h.Signal(first))
	assert.False(t, h.Signal(reply(1, message.Request, message.RequestResponseStage)))
	assert.False(t, h.Fail(errors.New("late")))

	m, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, m)
}

func TestHolderWaitDeadline(t *testing.T) {
	h := NewResponseHolder()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a late reply is accepted and dropped
	assert.True(t, h.Signal(reply(1, message.Request, message.RequestResponseStage)))
}

func TestCorrelationByID(t *testing.T) {
	tx := NewTransactions(nil)
	a, b := tx.Next(), tx.Next()
	require.NotEqual(t, a, b)

	ha, hb := NewResponseHolder(), NewResponseHolder()
	require.NoError(t, tx.Register(a, &Record{Type: message.Request, Stage: message.RequestStage, Holder: ha}))
	require.NoError(t, tx.Register(b, &Record{Type: message.Request, Stage: message.RequestStage, Holder: hb}))
	assert.ErrorIs(t, tx.Register(a, &Record{}), ErrDuplicateID)

	require.NoError(t, tx.Deliver(reply(b, message.Request, message.RequestResponseStage)))
	select {
	case <-hb.Done():
	default:
		t.Fatal("holder b not signalled")
	}
	select {
	case <-ha.Done():
		t.Fatal("holder a signalled by b's reply")
	default:
	}
	assert.Equal(t, 1, tx.Len())
}

func TestUnknownTransactionDiscarded(t *testing.T) {
	tx := NewTransactions(nil)
	err := tx.Deliver(reply(99, message.Submit, message.SubmitAckStage))
	assert.ErrorIs(t, err, ErrUnknownTransaction)
}

func TestOutOfSequenceReply(t *testing.T) {
	tx := NewTransactions(nil)
	id := tx.Next()
	h := NewResponseHolder()
	require.NoError(t, tx.Register(id, &Record{Type: message.Invoke, Stage: message.InvokeStage, Holder: h}))

	err := tx.Deliver(reply(id, message.Invoke, message.InvokeResponseStage))
	assert.ErrorIs(t, err, ErrUnexpectedStage)
	assert.Equal(t, 1, tx.Len())
}

func TestErrorPropagation(t *testing.T) {
	tx := NewTransactions(nil)
	id := tx.Next()
	h := NewResponseHolder()
	require.NoError(t, tx.Register(id, &Record{Type: message.Submit, Stage: message.SubmitStage, Holder: h}))

	require.NoError(t, tx.Deliver(errorReply(id, message.Submit, message.SubmitAckStage, message.TooMany)))
	_, err := h.Wait(context.Background())
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, message.TooMany, ie.Standard.Code)
	assert.ErrorIs(t, err, &message.StandardError{Code: message.TooMany})
	assert.Zero(t, tx.Len())
}

func TestInvokeAckThenListener(t *testing.T) {
	tx := NewTransactions(nil)
	id := tx.Next()
	h := NewResponseHolder()
	var (
		mu     sync.Mutex
		events []Event
	)
	listener := func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}
	require.NoError(t, tx.Register(id, &Record{Type: message.Invoke, Stage: message.InvokeStage, Holder: h, Listener: listener}))

	require.NoError(t, tx.Deliver(reply(id, message.Invoke, message.InvokeAckStage)))
	ack, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, message.InvokeAckStage, ack.Header.InteractionStage)

	require.NoError(t, tx.Deliver(reply(id, message.Invoke, message.InvokeResponseStage)))
	require.Len(t, events, 1)
	assert.Equal(t, OutcomeResponse, events[0].Outcome)
	assert.Zero(t, tx.Len())
}

func TestProgressUpdates(t *testing.T) {
	tx := NewTransactions(nil)
	id := tx.Next()
	var outcomes []Outcome
	require.NoError(t, tx.Register(id, &Record{Type: message.Progress, Stage: message.ProgressStage,
		Listener: func(ev Event) { outcomes = append(outcomes, ev.Outcome) }}))

	for _, s := range []message.Stage{
		message.ProgressAckStage, message.ProgressUpdateStage, message.ProgressUpdateStage, message.ProgressResponseStage,
	} {
		require.NoError(t, tx.Deliver(reply(id, message.Progress, s)))
	}
	assert.Equal(t, []Outcome{OutcomeAck, OutcomeUpdate, OutcomeUpdate, OutcomeResponse}, outcomes)
	assert.Zero(t, tx.Len())
}

func TestProgressErrorAfterUpdate(t *testing.T) {
	tx := NewTransactions(nil)
	id := tx.Next()
	var last Event
	require.NoError(t, tx.Register(id, &Record{Type: message.Progress, Stage: message.ProgressStage,
		Listener: func(ev Event) { last = ev }}))
	require.NoError(t, tx.Deliver(reply(id, message.Progress, message.ProgressAckStage)))
	require.NoError(t, tx.Deliver(errorReply(id, message.Progress, message.ProgressUpdateStage, message.Internal)))
	assert.Equal(t, OutcomeError, last.Outcome)
	require.NotNil(t, last.Err)
	assert.Equal(t, message.Internal, last.Err.Standard.Code)
	assert.Zero(t, tx.Len())
}

func TestAbort(t *testing.T) {
	tx := NewTransactions(nil)
	h := NewResponseHolder()
	require.NoError(t, tx.Register(tx.Next(), &Record{Type: message.Request, Stage: message.RequestStage, Holder: h}))
	tx.Abort(ErrAbandoned)
	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Zero(t, tx.Len())
}

func TestConcurrentDeliver(t *testing.T) {
	tx := NewTransactions(nil)
	const n = 64
	holders := make([]*ResponseHolder, n)
	ids := make([]int64, n)
	for i := range holders {
		holders[i] = NewResponseHolder()
		ids[i] = tx.Next()
		require.NoError(t, tx.Register(ids[i], &Record{Type: message.Request, Stage: message.RequestStage, Holder: holders[i]}))
	}
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = tx.Deliver(reply(id, message.Request, message.RequestResponseStage))
		}(ids[i])
	}
	wg.Wait()
	for i, h := range holders {
		m, err := h.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ids[i], m.Header.TransactionID)
	}
}
