package lockandgo

import (
	"fmt"
	"reflect"
)

// An InvalidArgumentError represents an invalid value passed to a command line
// argument.
type InvalidArgumentError struct {
	flag, value string
}

// NewInvalidArgumentError returns an error describing value as unacceptable
// for flag. An empty value reports the argument as missing.
func NewInvalidArgumentError(flag, value string) *InvalidArgumentError {
	return &InvalidArgumentError{flag: flag, value: value}
}

func (e *InvalidArgumentError) Error() string {
	if e.value == "" {
		return "missing value for argument '--" + e.flag + "'"
	}
	return "invalid value '" + e.value + "' for argument '--" + e.flag + "'"
}

// Flag returns the name of the offending argument.
func (e *InvalidArgumentError) Flag() string {
	return e.flag
}

func (e *InvalidArgumentError) Is(o error) bool {
	return reflect.TypeOf(e) == reflect.TypeOf(o)
}

// An InvalidIdentityError is returned when a device identity cannot be used to
// build MQTT topic names or a client ID.
type InvalidIdentityError struct {
	id     string
	reason string
}

func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("invalid device identity '%v': %v", e.id, e.reason)
}

func (e *InvalidIdentityError) Is(o error) bool {
	return reflect.TypeOf(e) == reflect.TypeOf(o)
}
