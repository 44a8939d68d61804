package interaction

import (
	"context"
	"sync"

	"github.com/trickstertwo/xmal/message"
)

// ResponseHolder carries the first reply of a synchronous call to the
// blocked caller. It completes exactly once; later signals are dropped.
type ResponseHolder struct {
	mu   sync.Mutex
	done chan struct{}
	msg  *message.Message
	err  error
}

func NewResponseHolder() *ResponseHolder {
	return &ResponseHolder{done: make(chan struct{})}
}

// Signal completes the holder with m. It returns false if already complete.
func (h *ResponseHolder) Signal(m *message.Message) bool {
	var err error
	if m != nil && m.Header != nil && m.Header.IsErrorMessage {
		err = NewError(m)
	}
	return h.complete(m, err)
}

// Fail completes the holder with err.
func (h *ResponseHolder) Fail(err error) bool {
	return h.complete(nil, err)
}

func (h *ResponseHolder) complete(m *message.Message, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.msg, h.err = m, err
	close(h.done)
	return true
}

// Done is closed once the holder completes.
func (h *ResponseHolder) Done() <-chan struct{} { return h.done }

// Wait blocks until the holder completes or ctx ends.
func (h *ResponseHolder) Wait(ctx context.Context) (*message.Message, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome; for an error reply the error is an *Error.
func (h *ResponseHolder) Result() (*message.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msg, h.err
}
