package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/actuator"
	"github.com/iamptic/lockandgo/internal/store"
	"github.com/rjeczalik/notify"
)

const (
	FlagNameLogLevel              = "log-level"
	FlagNameLogFile               = "log-file"
	FlagNameDeviceStore           = "device-store"
	FlagNameBrokerHost            = "broker-host"
	FlagNameBrokerPort            = "broker-port"
	FlagNameDeviceID              = "device-id"
	FlagNameCertFile              = "cert-file"
	FlagNameKeyFile               = "key-file"
	FlagNameCaRoot                = "ca-root"
	FlagNameLink                  = "link"
	FlagNameLinkInterface         = "link-interface"
	FlagNameLinkProfile           = "link-profile"
	FlagNameRelay                 = "relay"
	FlagNameRelayChip             = "relay-chip"
	FlagNameRelayLine             = "relay-line"
	FlagNameRelayActiveLow        = "relay-active-low"
	FlagNameProvisionAddr         = "provision-addr"
	FlagNameProvisionPasswordHash = "provision-password-hash"
	FlagNameProvisionTimeout      = "provision-timeout"
	FlagNameSessionRetryInterval  = "session-retry-interval"
	FlagNameLinkRetryInterval     = "link-retry-interval"
	FlagNameMQTTConnectTimeout    = "mqtt-connect-timeout"
	FlagNameMQTTPublishTimeout    = "mqtt-publish-timeout"
	FlagNamePollInterval          = "poll-interval"
	FlagNameInboundBuffer         = "inbound-buffer"
	FlagNameOfflineWill           = "offline-will"
)

// Link kinds.
const (
	LinkNetworkManager = "networkmanager"
	LinkInterface      = "interface"
	LinkNone           = "none"
)

// Relay kinds.
const (
	RelayGPIO      = "gpio"
	RelaySimulated = "simulated"
)

// DefaultBrokerPort is the plain MQTT port.
const DefaultBrokerPort = 1883

var DefaultConfig = Config{
	LogLevel:             "info",
	BrokerPort:           DefaultBrokerPort,
	Link:                 LinkNetworkManager,
	Relay:                RelayGPIO,
	RelayChip:            "gpiochip0",
	RelayLine:            17,
	ProvisionAddr:        ":8080",
	ProvisionTimeout:     180 * time.Second,
	SessionRetryInterval: 5 * time.Second,
	LinkRetryInterval:    5 * time.Second,
	MQTTConnectTimeout:   10 * time.Second,
	MQTTPublishTimeout:   5 * time.Second,
	PollInterval:         100 * time.Millisecond,
	InboundBuffer:        16,
	HoldDuration:         actuator.DefaultHoldDuration,
}

// Config contains the configuration of a running locker controller. It is
// built once at startup and never modified afterwards.
type Config struct {
	// LogLevel is the level value used for logging.
	LogLevel string

	// LogFile is an optional path that receives log output instead of
	// stderr. The file is rotated by size.
	LogFile string

	// DeviceStore is the path of the key/value file holding provisioned
	// settings.
	DeviceStore string

	// DeviceID is the locker's identity. It is used as the MQTT client ID and
	// as a level in both of the locker's topics.
	DeviceID string

	// BrokerHost is the hostname or address of the MQTT broker.
	BrokerHost string

	// BrokerPort is the TCP port of the MQTT broker. Zero means it was not
	// given and is filled by ApplyStore.
	BrokerPort int

	// CertFile is a path to a public certificate, optionally used along with
	// KeyFile to authenticate connections.
	CertFile string

	// KeyFile is a path to a private certificate, optionally used along with
	// CertFile to authenticate connections.
	KeyFile string

	// CARoot is the list of paths with chain certificate file to optionally
	// include in the TLS configration's CA root list.
	CARoot []string

	// Link selects how network reachability is established: "networkmanager",
	// "interface" or "none".
	Link string

	// LinkInterface is the network interface probed by the "interface" link.
	LinkInterface string

	// LinkProfile is the NetworkManager connection ID activated by the
	// "networkmanager" link. When empty, NetworkManager's own autoconnect
	// logic is trusted.
	LinkProfile string

	// Relay selects the relay driver: "gpio" or "simulated".
	Relay string

	// RelayChip is the GPIO character device the relay is wired to.
	RelayChip string

	// RelayLine is the line offset on RelayChip.
	RelayLine int

	// RelayActiveLow inverts the relay output.
	RelayActiveLow bool

	// ProvisionAddr is the listen address of the setup portal. An empty value
	// disables the portal.
	ProvisionAddr string

	// ProvisionPasswordHash is an optional bcrypt hash protecting the setup
	// portal.
	ProvisionPasswordHash string

	// ProvisionTimeout bounds a provisioning attempt.
	ProvisionTimeout time.Duration

	// SessionRetryInterval is the delay between broker connection attempts.
	SessionRetryInterval time.Duration

	// LinkRetryInterval is the delay between link connection attempts.
	LinkRetryInterval time.Duration

	// MQTTConnectTimeout is the duration the client will wait for an MQTT
	// connection to be established before giving up.
	MQTTConnectTimeout time.Duration

	// MQTTPublishTimeout is the duration the client will wait for an MQTT
	// connection to publish a message before giving up.
	MQTTPublishTimeout time.Duration

	// PollInterval is the longest a single poll for inbound commands waits.
	PollInterval time.Duration

	// InboundBuffer is the number of received commands held until the
	// controller polls them.
	InboundBuffer int

	// OfflineWill registers an OFFLINE status as the session's last will.
	OfflineWill bool

	// HoldDuration is how long the lock stays released. It is not exposed as
	// a flag.
	HoldDuration time.Duration
}

// ApplyStore fills DeviceID, BrokerHost and BrokerPort from s where they are
// not already set. A zero BrokerPort is unset; it falls back to
// DefaultBrokerPort when the store has none.
func (conf *Config) ApplyStore(s store.Store) error {
	get := func(key string) (string, error) {
		v, err := s.Get(key)
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return v, err
	}

	if conf.DeviceID == "" {
		v, err := get(store.KeyDeviceID)
		if err != nil {
			return err
		}
		conf.DeviceID = v
	}

	if conf.BrokerHost == "" {
		v, err := get(store.KeyBrokerHost)
		if err != nil {
			return err
		}
		conf.BrokerHost = v
	}

	if conf.BrokerPort == 0 {
		v, err := get(store.KeyBrokerPort)
		if err != nil {
			return err
		}
		if v == "" {
			conf.BrokerPort = DefaultBrokerPort
			return nil
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("cannot parse stored %v '%v': %w", store.KeyBrokerPort, v, err)
		}
		conf.BrokerPort = port
	}

	return nil
}

// Provisioned reports whether the identity and broker endpoint are known.
func (conf *Config) Provisioned() bool {
	return conf.DeviceID != "" && conf.BrokerHost != ""
}

// Validate checks every field that would otherwise fail later at runtime.
func (conf *Config) Validate() error {
	if conf.DeviceID == "" {
		return lockandgo.NewInvalidArgumentError(FlagNameDeviceID, "")
	}
	if err := lockandgo.ValidateIdentity(conf.DeviceID); err != nil {
		return fmt.Errorf("%w: %v", lockandgo.NewInvalidArgumentError(FlagNameDeviceID, conf.DeviceID), err)
	}
	if conf.BrokerHost == "" {
		return lockandgo.NewInvalidArgumentError(FlagNameBrokerHost, "")
	}
	if conf.BrokerPort < 1 || conf.BrokerPort > 65535 {
		return lockandgo.NewInvalidArgumentError(FlagNameBrokerPort, strconv.Itoa(conf.BrokerPort))
	}
	if (conf.CertFile == "") != (conf.KeyFile == "") {
		if conf.CertFile == "" {
			return lockandgo.NewInvalidArgumentError(FlagNameCertFile, "")
		}
		return lockandgo.NewInvalidArgumentError(FlagNameKeyFile, "")
	}

	switch conf.Link {
	case LinkNetworkManager, LinkNone:
	case LinkInterface:
		if conf.LinkInterface == "" {
			return lockandgo.NewInvalidArgumentError(FlagNameLinkInterface, "")
		}
	default:
		return lockandgo.NewInvalidArgumentError(FlagNameLink, conf.Link)
	}

	switch conf.Relay {
	case RelaySimulated:
	case RelayGPIO:
		if conf.RelayChip == "" {
			return lockandgo.NewInvalidArgumentError(FlagNameRelayChip, "")
		}
		if conf.RelayLine < 0 {
			return lockandgo.NewInvalidArgumentError(FlagNameRelayLine, strconv.Itoa(conf.RelayLine))
		}
	default:
		return lockandgo.NewInvalidArgumentError(FlagNameRelay, conf.Relay)
	}

	durations := []struct {
		flag  string
		value time.Duration
	}{
		{FlagNameProvisionTimeout, conf.ProvisionTimeout},
		{FlagNameSessionRetryInterval, conf.SessionRetryInterval},
		{FlagNameLinkRetryInterval, conf.LinkRetryInterval},
		{FlagNameMQTTConnectTimeout, conf.MQTTConnectTimeout},
		{FlagNameMQTTPublishTimeout, conf.MQTTPublishTimeout},
		{FlagNamePollInterval, conf.PollInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return lockandgo.NewInvalidArgumentError(d.flag, d.value.String())
		}
	}

	if conf.InboundBuffer < 1 {
		return lockandgo.NewInvalidArgumentError(FlagNameInboundBuffer, strconv.Itoa(conf.InboundBuffer))
	}
	if conf.HoldDuration <= 0 {
		return fmt.Errorf("invalid hold duration %v", conf.HoldDuration)
	}

	return nil
}

// TLSEnabled reports whether the broker connection should use TLS.
func (conf *Config) TLSEnabled() bool {
	return conf.CertFile != "" || len(conf.CARoot) > 0
}

// BrokerURL returns the broker address in the form expected by the MQTT
// client.
func (conf *Config) BrokerURL() string {
	scheme := "tcp"
	if conf.TLSEnabled() {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(conf.BrokerHost, strconv.Itoa(conf.BrokerPort))
}

// Topics returns the locker's command and status topics.
func (conf *Config) Topics() (lockandgo.TopicPair, error) {
	return lockandgo.DeriveTopics(conf.DeviceID)
}

// CreateTLSConfig creates a tls.Config object from the current configuration.
func (conf *Config) CreateTLSConfig() (*tls.Config, error) {
	var certData, keyData []byte
	var err error
	rootCAs := make([][]byte, 0)

	if conf.CertFile != "" && conf.KeyFile != "" {
		certData, err = os.ReadFile(conf.CertFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read cert-file '%v': %w", conf.CertFile, err)
		}

		keyData, err = os.ReadFile(conf.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("cannot read key-file '%v': %w", conf.KeyFile, err)
		}
	}

	for _, file := range conf.CARoot {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("cannot read ca-file '%v': %w", file, err)
		}
		rootCAs = append(rootCAs, data)
	}

	tlsConfig, err := newTLSConfig(certData, keyData, rootCAs)
	if err != nil {
		return nil, err
	}

	return tlsConfig, nil
}

// WatcherUpdate watches the certificate, key and CA root files. Whenever one
// of them is rewritten or removed, a fresh tls.Config is sent on the returned
// channel. A nil channel is returned when there is nothing to watch.
func (conf *Config) WatcherUpdate() (<-chan *tls.Config, error) {
	c := make(chan notify.EventInfo, 1)
	files := []string{}

	if len(conf.CARoot) > 0 {
		files = append(files, conf.CARoot...)
	}

	if conf.CertFile != "" {
		files = append(files, conf.CertFile)
	}

	if conf.KeyFile != "" {
		files = append(files, conf.KeyFile)
	}

	if len(files) == 0 {
		return nil, nil
	}

	for _, fp := range files {
		if err := notify.Watch(fp, c, notify.InCloseWrite, notify.InDelete); err != nil {
			notify.Stop(c)
			return nil, fmt.Errorf("cannot start watching file '%v': %w", fp, err)
		}
		log.Debugf("added watchpoint for file: %v", fp)
	}

	events := make(chan *tls.Config, 1)
	go func() {
		for e := range c {
			log.Debugf("received inotify event %v", e.Event())
			switch e.Event() {
			case notify.InCloseWrite, notify.InDelete:
				cfg, err := conf.CreateTLSConfig()
				if err != nil {
					log.Errorf(
						"cannot create TLS config from file '%v' on event %v: %v",
						e.Path(),
						e.Event(),
						err,
					)
					continue
				}
				// Keep only the most recent config.
				select {
				case <-events:
				default:
				}
				events <- cfg
			}
		}
	}()

	return events, nil
}
