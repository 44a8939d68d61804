package xmal

import (
	"context"
	"fmt"
	"sync"

	"github.com/trickstertwo/xmal/element"
	"github.com/trickstertwo/xmal/interaction"
	"github.com/trickstertwo/xmal/message"
)

// ProviderHandler serves one inbound interaction. Replies are sent through
// in; a returned error becomes an error reply when the pattern still
// expects one.
type ProviderHandler func(ctx context.Context, in *Interaction) error

// Handle binds h to op, replacing any previous handler.
func (e *Endpoint) Handle(op message.OperationKey, h ProviderHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	if h == nil {
		delete(e.handlers, op)
		return
	}
	e.handlers[op] = h
}

func (e *Endpoint) handler(op message.OperationKey) ProviderHandler {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	return e.handlers[op]
}

var (
	ackStages = map[message.InteractionType]message.Stage{
		message.Submit:   message.SubmitAckStage,
		message.Invoke:   message.InvokeAckStage,
		message.Progress: message.ProgressAckStage,
	}
	responseStages = map[message.InteractionType]message.Stage{
		message.Request:  message.RequestResponseStage,
		message.Invoke:   message.InvokeResponseStage,
		message.Progress: message.ProgressResponseStage,
	}
)

// Interaction is the provider side of one open interaction. Each reply is
// checked against the pattern's transitions, so a handler cannot send an
// out-of-sequence stage or reply after the interaction has ended.
type Interaction struct {
	e   *Endpoint
	req *message.Message

	mu    sync.Mutex
	stage message.Stage
	done  bool
}

func newInteraction(e *Endpoint, req *message.Message) *Interaction {
	return &Interaction{e: e, req: req, stage: req.Header.InteractionStage}
}

// Message returns the initiating message.
func (in *Interaction) Message() *message.Message { return in.req }

// Header returns the initiating header.
func (in *Interaction) Header() *message.Header { return in.req.Header }

// Body returns the initiating body.
func (in *Interaction) Body() []element.Element { return in.req.Body }

// Done reports whether a terminal or error reply was sent.
func (in *Interaction) Done() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.done
}

// Ack sends the acknowledgement stage of the pattern.
func (in *Interaction) Ack(ctx context.Context, body ...element.Element) error {
	t := in.req.Header.InteractionType
	stage, ok := ackStages[t]
	if t == message.PubSub {
		if next := interaction.Next(t, in.req.Header.InteractionStage); len(next) > 0 {
			stage, ok = next[0], true
		}
	}
	if !ok {
		return in.notAllowed("ACK")
	}
	return in.reply(ctx, stage, false, body)
}

// Update sends one PROGRESS_UPDATE.
func (in *Interaction) Update(ctx context.Context, body ...element.Element) error {
	if in.req.Header.InteractionType != message.Progress {
		return in.notAllowed("UPDATE")
	}
	return in.reply(ctx, message.ProgressUpdateStage, false, body)
}

// Respond sends the final response stage of the pattern.
func (in *Interaction) Respond(ctx context.Context, body ...element.Element) error {
	stage, ok := responseStages[in.req.Header.InteractionType]
	if !ok {
		return in.notAllowed("RESPONSE")
	}
	return in.reply(ctx, stage, false, body)
}

// Error ends the interaction with se at the last stage that may follow the
// current one.
func (in *Interaction) Error(ctx context.Context, se *message.StandardError) error {
	in.mu.Lock()
	next := interaction.Next(in.req.Header.InteractionType, in.stage)
	in.mu.Unlock()
	if len(next) == 0 {
		return in.notAllowed("ERROR")
	}
	return in.reply(ctx, next[len(next)-1], true, se.Body())
}

func (in *Interaction) reply(ctx context.Context, stage message.Stage, isError bool, body []element.Element) error {
	h := in.req.Header
	in.mu.Lock()
	if in.done || !interaction.Allowed(h.InteractionType, in.stage, stage) {
		from := in.stage
		in.mu.Unlock()
		return fmt.Errorf("%w: %s after %s", ErrReplyNotAllowed,
			message.StageName(h.InteractionType, stage), message.StageName(h.InteractionType, from))
	}
	in.stage = stage
	if isError || interaction.IsTerminal(h.InteractionType, stage) {
		in.done = true
	}
	in.mu.Unlock()

	rh := h.Reply(stage, isError, in.e.clock.Now())
	rh.URIFrom = in.e.uri
	return in.e.SendMessage(ctx, message.New(rh, body...))
}

func (in *Interaction) notAllowed(what string) error {
	return fmt.Errorf("%w: %s in %s", ErrReplyNotAllowed, what, in.req.Header.InteractionType)
}

// serve runs the provider handler bound to the message's operation.
func (e *Endpoint) serve(ctx context.Context, msg *message.Message) error {
	h := msg.Header
	in := newInteraction(e, msg)
	expects := interaction.ExpectsReply(h.InteractionType, h.InteractionStage)

	handler := e.handler(h.OperationKey())
	if handler == nil {
		if expects {
			return e.replyError(ctx, in, message.NewStandardError(message.UnsupportedOperation, h.OperationKey().String()))
		}
		e.discard(msg, fmt.Errorf("no handler for %s", h.OperationKey()))
		return nil
	}

	err := runHandler(ctx, handler, in)
	if err == nil {
		return nil
	}
	if !expects {
		return err
	}
	if in.Done() {
		e.logger.Warn().Err(err).Str("op", h.OperationKey().String()).Msg("xmal: handler failed after final reply")
		return nil
	}
	return e.replyError(ctx, in, message.AsStandardError(err))
}

func (e *Endpoint) replyError(ctx context.Context, in *Interaction, se *message.StandardError) error {
	if err := in.Error(ctx, se); err != nil {
		e.logger.Warn().Err(err).
			Str("op", in.Header().OperationKey().String()).
			Str("to", in.Header().URIFrom).
			Msg("xmal: error reply failed")
	}
	return nil
}

// runHandler turns a handler panic into an error so the consumer still
// gets an error reply.
func runHandler(ctx context.Context, h ProviderHandler, in *Interaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, in)
}
