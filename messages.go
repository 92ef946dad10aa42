package lockandgo

// CommandName represents accepted payloads on a locker's command topic.
type CommandName string

const (
	// CommandNameOpen instructs the locker to release its lock for the hold
	// duration.
	CommandNameOpen CommandName = "OPEN"
)

// StatusName represents the payloads a locker reports on its status topic.
type StatusName string

const (
	// StatusNameOpened is published once the lock has been released and
	// re-engaged.
	StatusNameOpened StatusName = "OPENED"

	// StatusNameError is published when the relay could not be driven.
	StatusNameError StatusName = "ERROR"

	// StatusNameOffline is registered with the broker as the session's last
	// will.
	StatusNameOffline StatusName = "OFFLINE"
)
