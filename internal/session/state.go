package session

import "fmt"

// ConnectionState is the combined state of the network link and the broker
// session.
type ConnectionState int

const (
	// StateDisconnected means the network link is down.
	StateDisconnected ConnectionState = iota

	// StateLinkUp means the link is up but there is no broker session.
	StateLinkUp

	// StateSessionUp means a broker session is established and subscribed to
	// the command topic.
	StateSessionUp
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateLinkUp:
		return "link-up"
	case StateSessionUp:
		return "session-up"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}
