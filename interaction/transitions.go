// Package interaction holds the interaction-pattern state machine, the
// per-endpoint transaction table and the synchronous response holder.
package interaction

import "github.com/trickstertwo/xmal/message"

type stageKey struct {
	typ   message.InteractionType
	stage message.Stage
}

// transitions lists, per pattern and last seen stage, the stages that may follow.
var transitions = map[stageKey][]message.Stage{
	{message.Submit, message.SubmitStage}: {message.SubmitAckStage},

	{message.Request, message.RequestStage}: {message.RequestResponseStage},

	{message.Invoke, message.InvokeStage}:    {message.InvokeAckStage},
	{message.Invoke, message.InvokeAckStage}: {message.InvokeResponseStage},

	{message.Progress, message.ProgressStage}:       {message.ProgressAckStage},
	{message.Progress, message.ProgressAckStage}:    {message.ProgressUpdateStage, message.ProgressResponseStage},
	{message.Progress, message.ProgressUpdateStage}: {message.ProgressUpdateStage, message.ProgressResponseStage},

	{message.PubSub, message.RegisterStage}:          {message.RegisterAckStage},
	{message.PubSub, message.PublishRegisterStage}:   {message.PublishRegisterAckStage},
	{message.PubSub, message.DeregisterStage}:        {message.DeregisterAckStage},
	{message.PubSub, message.PublishDeregisterStage}: {message.PublishDeregisterAckStage},
}

var initial = map[message.InteractionType][]message.Stage{
	message.Send:     {message.SendStage},
	message.Submit:   {message.SubmitStage},
	message.Request:  {message.RequestStage},
	message.Invoke:   {message.InvokeStage},
	message.Progress: {message.ProgressStage},
	message.PubSub: {
		message.RegisterStage, message.PublishRegisterStage, message.PublishStage,
		message.NotifyStage, message.DeregisterStage, message.PublishDeregisterStage,
	},
}

var terminal = map[stageKey]bool{
	{message.Send, message.SendStage}:                   true,
	{message.Submit, message.SubmitAckStage}:            true,
	{message.Request, message.RequestResponseStage}:     true,
	{message.Invoke, message.InvokeResponseStage}:       true,
	{message.Progress, message.ProgressResponseStage}:   true,
	{message.PubSub, message.RegisterAckStage}:          true,
	{message.PubSub, message.PublishRegisterAckStage}:   true,
	{message.PubSub, message.PublishStage}:              true,
	{message.PubSub, message.NotifyStage}:               true,
	{message.PubSub, message.DeregisterAckStage}:        true,
	{message.PubSub, message.PublishDeregisterAckStage}: true,
}

// Allowed reports whether stage to may follow stage from in pattern t.
func Allowed(t message.InteractionType, from, to message.Stage) bool {
	for _, s := range transitions[stageKey{t, from}] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the stages that may follow from.
func Next(t message.InteractionType, from message.Stage) []message.Stage {
	return transitions[stageKey{t, from}]
}

// IsInitial reports whether s may open a new interaction of pattern t.
func IsInitial(t message.InteractionType, s message.Stage) bool {
	for _, i := range initial[t] {
		if i == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends an interaction of pattern t. Error
// messages end an interaction regardless of stage.
func IsTerminal(t message.InteractionType, s message.Stage) bool {
	return terminal[stageKey{t, s}]
}

// ExpectsReply reports whether the consumer keeps a transaction open after sending s.
func ExpectsReply(t message.InteractionType, s message.Stage) bool {
	return len(transitions[stageKey{t, s}]) > 0
}
