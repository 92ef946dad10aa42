package lockandgo

import (
	"os"
	"path/filepath"
)

// ConfigPath returns an appropriate path to the daemon config file. The
// system-wide location is used when running as root, otherwise the user
// config directory. If the created path does not exist, an empty string is
// returned.
func ConfigPath() (string, error) {
	prefix := SysconfDir
	if os.Getuid() > 0 {
		var err error
		prefix, err = os.UserConfigDir()
		if err != nil {
			return "", err
		}
	}
	filePath := filepath.Join(prefix, LongName, "config.toml")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", nil
	}

	return filePath, nil
}

// DeviceStorePath returns the default location of the key/value file holding
// the provisioned broker endpoint and device identity.
func DeviceStorePath() string {
	return filepath.Join(SysconfDir, LongName, "device.toml")
}
