// Package command decides what a locker does with an inbound MQTT message.
package command

import (
	"fmt"

	"github.com/iamptic/lockandgo"
)

// Message is a single inbound publish as delivered by the session.
type Message struct {
	Topic   string
	Payload []byte
}

// Action is the decision taken for a Message.
type Action int

const (
	// ActionIgnore discards the message without side effects.
	ActionIgnore Action = iota

	// ActionOpen releases the lock for the hold duration.
	ActionOpen
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionOpen:
		return "open"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Interpret maps msg to an Action. Messages on any topic other than
// expectedTopic are ignored. On the expected topic the payload must match a
// known command name exactly; there is no case folding or trimming. Unknown
// payloads are ignored, never reported as errors.
func Interpret(msg Message, expectedTopic string) Action {
	if msg.Topic != expectedTopic {
		return ActionIgnore
	}

	switch lockandgo.CommandName(msg.Payload) {
	case lockandgo.CommandNameOpen:
		return ActionOpen
	default:
		return ActionIgnore
	}
}
