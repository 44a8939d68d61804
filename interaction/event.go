package interaction

import "github.com/trickstertwo/xmal/message"

// Outcome classifies an inbound reply.
type Outcome uint8

const (
	OutcomeAck Outcome = iota + 1
	OutcomeUpdate
	OutcomeResponse
	OutcomeNotify
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeUpdate:
		return "update"
	case OutcomeResponse:
		return "response"
	case OutcomeNotify:
		return "notify"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// Event is one inbound reply delivered to an asynchronous listener.
type Event struct {
	Type    message.InteractionType
	Stage   message.Stage
	Outcome Outcome
	Message *message.Message
	Err     *Error
}

// Listener receives the replies of asynchronous interactions. It must not block.
type Listener func(Event)

// NewEvent classifies m.
func NewEvent(m *message.Message) Event {
	h := m.Header
	ev := Event{Type: h.InteractionType, Stage: h.InteractionStage, Message: m}
	if h.IsErrorMessage {
		ev.Outcome = OutcomeError
		ev.Err = NewError(m)
		return ev
	}
	ev.Outcome = outcomeOf(h.InteractionType, h.InteractionStage)
	return ev
}

func outcomeOf(t message.InteractionType, s message.Stage) Outcome {
	switch {
	case t == message.Progress && s == message.ProgressUpdateStage:
		return OutcomeUpdate
	case t == message.PubSub && (s == message.NotifyStage || s == message.PublishStage):
		return OutcomeNotify
	case IsTerminal(t, s) && t != message.PubSub && !(t == message.Submit && s == message.SubmitAckStage):
		return OutcomeResponse
	}
	return OutcomeAck
}
