package interaction

import (
	"errors"
	"fmt"

	"github.com/trickstertwo/xmal/message"
)

var (
	ErrUnknownTransaction = errors.New("interaction: unknown transaction")
	ErrUnexpectedStage    = errors.New("interaction: unexpected stage")
	ErrDuplicateID        = errors.New("interaction: duplicate transaction id")
	ErrAbandoned          = errors.New("interaction: transaction abandoned")
)

// Error is the failure of an interaction: the peer answered with an error
// message. It unwraps to the carried StandardError.
type Error struct {
	Type          message.InteractionType
	Stage         message.Stage
	TransactionID int64
	Standard      *message.StandardError
}

// NewError builds an Error from an error-flagged message.
func NewError(m *message.Message) *Error {
	se, err := message.StandardErrorFrom(m)
	if err != nil {
		se = message.NewStandardError(message.BadEncoding, err.Error())
	}
	return &Error{
		Type:          m.Header.InteractionType,
		Stage:         m.Header.InteractionStage,
		TransactionID: m.Header.TransactionID,
		Standard:      se,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("interaction %s tx=%d failed at %s: %v",
		e.Type, e.TransactionID, message.StageName(e.Type, e.Stage), e.Standard)
}

func (e *Error) Unwrap() error { return e.Standard }
