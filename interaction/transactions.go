package interaction

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xmal/message"
)

// Record is an open consumer-side interaction.
type Record struct {
	Type message.InteractionType
	// Stage is the last stage seen, starting with the initiating stage.
	Stage message.Stage
	// Holder receives the first reply when set; later replies go to Listener.
	Holder   *ResponseHolder
	Listener Listener
}

// Transactions correlates inbound replies with open interactions by
// transaction id. Safe for concurrent use.
type Transactions struct {
	next   atomic.Int64
	mu     sync.Mutex
	open   map[int64]*Record
	logger *xlog.Logger
}

// NewTransactions returns an empty table; a nil logger uses xlog.Default().
func NewTransactions(logger *xlog.Logger) *Transactions {
	if logger == nil {
		logger = xlog.Default()
	}
	return &Transactions{open: make(map[int64]*Record), logger: logger}
}

// Next allocates a transaction id, unique and increasing for this table.
func (t *Transactions) Next() int64 { return t.next.Add(1) }

// Register opens a transaction.
func (t *Transactions) Register(id int64, rec *Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.open[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	t.open[id] = rec
	return nil
}

// Remove drops a transaction; replies arriving afterwards are discarded.
func (t *Transactions) Remove(id int64) {
	t.mu.Lock()
	delete(t.open, id)
	t.mu.Unlock()
}

// Len returns the number of open transactions.
func (t *Transactions) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Deliver routes an inbound reply to its transaction. The first reply
// completes the holder, if any; the rest go to the listener. Terminal
// stages and error replies close the transaction.
func (t *Transactions) Deliver(m *message.Message) error {
	h := m.Header
	t.mu.Lock()
	rec, ok := t.open[h.TransactionID]
	if !ok {
		t.mu.Unlock()
		t.logger.Debug().
			Str("tx", strconv.FormatInt(h.TransactionID, 10)).
			Str("stage", h.StageName()).
			Str("from", h.URIFrom).
			Msg("reply for unknown transaction discarded")
		return fmt.Errorf("%w: %d", ErrUnknownTransaction, h.TransactionID)
	}
	if rec.Type != h.InteractionType || !Allowed(rec.Type, rec.Stage, h.InteractionStage) {
		t.mu.Unlock()
		t.logger.Warn().
			Str("tx", strconv.FormatInt(h.TransactionID, 10)).
			Str("after", message.StageName(rec.Type, rec.Stage)).
			Str("stage", h.StageName()).
			Msg("reply out of sequence discarded")
		return fmt.Errorf("%w: %s after %s", ErrUnexpectedStage, h.StageName(), message.StageName(rec.Type, rec.Stage))
	}
	rec.Stage = h.InteractionStage
	if h.IsErrorMessage || IsTerminal(rec.Type, rec.Stage) {
		delete(t.open, h.TransactionID)
	}
	holder, listener := rec.Holder, rec.Listener
	t.mu.Unlock()

	if holder != nil && holder.Signal(m) {
		return nil
	}
	if listener != nil {
		listener(NewEvent(m))
		return nil
	}
	t.logger.Debug().
		Str("tx", strconv.FormatInt(h.TransactionID, 10)).
		Str("stage", h.StageName()).
		Msg("reply without listener dropped")
	return nil
}

// Abort fails every open transaction with err and empties the table.
func (t *Transactions) Abort(err error) {
	t.mu.Lock()
	open := t.open
	t.open = make(map[int64]*Record)
	t.mu.Unlock()
	for _, rec := range open {
		if rec.Holder != nil {
			rec.Holder.Fail(err)
		}
	}
}
