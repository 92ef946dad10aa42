package lockandgo

import "strings"

// TopicPair holds the two MQTT topics owned by a single locker.
type TopicPair struct {
	// Command is the inbound topic the locker subscribes to.
	Command string

	// Status is the outbound topic the locker reports on.
	Status string
}

// ValidateIdentity checks that id can be used both as an MQTT client ID and as
// a single topic level.
func ValidateIdentity(id string) error {
	switch {
	case id == "":
		return &InvalidIdentityError{id: id, reason: "empty"}
	case strings.ContainsAny(id, "/+#"):
		return &InvalidIdentityError{id: id, reason: "contains a topic separator or wildcard"}
	case strings.ContainsRune(id, 0):
		return &InvalidIdentityError{id: id, reason: "contains a null character"}
	case len(id) > 65535:
		return &InvalidIdentityError{id: id, reason: "too long"}
	}
	return nil
}

// DeriveTopics returns the command and status topics for the locker
// identified by deviceID.
func DeriveTopics(deviceID string) (TopicPair, error) {
	if err := ValidateIdentity(deviceID); err != nil {
		return TopicPair{}, err
	}
	prefix := TopicPrefix + "/" + deviceID + "/"
	return TopicPair{
		Command: prefix + "command",
		Status:  prefix + "status",
	}, nil
}
