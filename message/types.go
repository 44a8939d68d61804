// Package message models MAL messages: the header, the stage constants of
// every interaction pattern, body layouts and the standard error body.
package message

import "fmt"

// InteractionType is the interaction pattern a message belongs to.
type InteractionType uint8

const (
	Send InteractionType = iota + 1
	Submit
	Request
	Invoke
	Progress
	PubSub
)

func (t InteractionType) String() string {
	switch t {
	case Send:
		return "SEND"
	case Submit:
		return "SUBMIT"
	case Request:
		return "REQUEST"
	case Invoke:
		return "INVOKE"
	case Progress:
		return "PROGRESS"
	case PubSub:
		return "PUBSUB"
	}
	return fmt.Sprintf("INTERACTION(%d)", uint8(t))
}

// Stage is the position of a message within its pattern.
type Stage uint8

const (
	SendStage Stage = 1

	SubmitStage    Stage = 1
	SubmitAckStage Stage = 2

	RequestStage         Stage = 1
	RequestResponseStage Stage = 2

	InvokeStage         Stage = 1
	InvokeAckStage      Stage = 2
	InvokeResponseStage Stage = 3

	ProgressStage         Stage = 1
	ProgressAckStage      Stage = 2
	ProgressUpdateStage   Stage = 3
	ProgressResponseStage Stage = 4

	RegisterStage             Stage = 1
	RegisterAckStage          Stage = 2
	PublishRegisterStage      Stage = 3
	PublishRegisterAckStage   Stage = 4
	PublishStage              Stage = 5
	NotifyStage               Stage = 6
	DeregisterStage           Stage = 7
	DeregisterAckStage        Stage = 8
	PublishDeregisterStage    Stage = 9
	PublishDeregisterAckStage Stage = 10
)

var stageNames = map[InteractionType][]string{
	Send:     {"", "SEND"},
	Submit:   {"", "SUBMIT", "SUBMIT_ACK"},
	Request:  {"", "REQUEST", "REQUEST_RESPONSE"},
	Invoke:   {"", "INVOKE", "INVOKE_ACK", "INVOKE_RESPONSE"},
	Progress: {"", "PROGRESS", "PROGRESS_ACK", "PROGRESS_UPDATE", "PROGRESS_RESPONSE"},
	PubSub: {"", "REGISTER", "REGISTER_ACK", "PUBLISH_REGISTER", "PUBLISH_REGISTER_ACK",
		"PUBLISH", "NOTIFY", "DEREGISTER", "DEREGISTER_ACK", "PUBLISH_DEREGISTER", "PUBLISH_DEREGISTER_ACK"},
}

// StageName returns the protocol name of stage s within pattern t.
func StageName(t InteractionType, s Stage) string {
	names := stageNames[t]
	if int(s) < len(names) && s > 0 {
		return names[s]
	}
	return fmt.Sprintf("%s_STAGE(%d)", t, uint8(s))
}

// QoSLevel is carried in the header and passed through untouched.
type QoSLevel uint8

const (
	BestEffort QoSLevel = iota + 1
	Assured
	Queued
	Timely
)

// SessionType is carried in the header and passed through untouched.
type SessionType uint8

const (
	Live SessionType = iota + 1
	Simulation
	Replay
)

// OperationKey identifies one service operation.
type OperationKey struct {
	Area      uint16
	Service   uint16
	Version   uint8
	Operation uint16
}

func (k OperationKey) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", k.Area, k.Service, k.Version, k.Operation)
}
