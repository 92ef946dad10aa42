package lockandgo

import "path/filepath"

var (
	// Version is the version as described by git.
	Version string

	// ShortName is used as a prefix to binary file names.
	ShortName string

	// LongName is used in file and directory names.
	LongName string

	// TopicPrefix is the namespace of every MQTT topic used by a locker.
	TopicPrefix string
)

// Installation directory prefix and paths. Values are specified by compile-time
// substitution values, and are then set to sane defaults at runtime if the
// value is a zero-value string.
var (
	PrefixDir     string
	SysconfDir    string
	LocalstateDir string
)

func init() {
	if PrefixDir == "" {
		PrefixDir = "/usr/local"
	}
	if SysconfDir == "" {
		SysconfDir = filepath.Join(PrefixDir, "etc")
	}
	if LocalstateDir == "" {
		LocalstateDir = filepath.Join(PrefixDir, "var")
	}

	if ShortName == "" {
		ShortName = "lock"
	}
	if LongName == "" {
		LongName = "lockandgo"
	}
	if TopicPrefix == "" {
		TopicPrefix = "lockngo"
	}
}
