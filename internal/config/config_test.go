package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/store"
)

type memStore map[string]string

func (m memStore) Get(key string) (string, error) {
	v, has := m[key]
	if !has {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m memStore) Put(key, value string) error {
	m[key] = value
	return nil
}

type brokenStore struct{}

func (brokenStore) Get(key string) (string, error) { return "", errors.New("disk on fire") }
func (brokenStore) Put(key, value string) error    { return errors.New("disk on fire") }

func validConfig() Config {
	c := DefaultConfig
	c.DeviceID = "locker_01"
	c.BrokerHost = "192.168.1.100"
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		input       func(c *Config)
		wantError   error
	}{
		{
			description: "valid",
			input:       func(c *Config) {},
		},
		{
			description: "missing device id",
			input:       func(c *Config) { c.DeviceID = "" },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "wildcard device id",
			input:       func(c *Config) { c.DeviceID = "locker/+" },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "missing broker host",
			input:       func(c *Config) { c.BrokerHost = "" },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "port zero",
			input:       func(c *Config) { c.BrokerPort = 0 },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "port too large",
			input:       func(c *Config) { c.BrokerPort = 65536 },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "cert without key",
			input:       func(c *Config) { c.CertFile = "/etc/pki/cert.pem" },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "unknown link",
			input:       func(c *Config) { c.Link = "carrier-pigeon" },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "interface link without interface",
			input:       func(c *Config) { c.Link = LinkInterface },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "interface link",
			input: func(c *Config) {
				c.Link = LinkInterface
				c.LinkInterface = "wlan0"
			},
		},
		{
			description: "unknown relay",
			input:       func(c *Config) { c.Relay = "servo" },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "simulated relay ignores chip",
			input: func(c *Config) {
				c.Relay = RelaySimulated
				c.RelayChip = ""
			},
		},
		{
			description: "zero poll interval",
			input:       func(c *Config) { c.PollInterval = 0 },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "negative retry interval",
			input:       func(c *Config) { c.SessionRetryInterval = -time.Second },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
		{
			description: "empty inbound buffer",
			input:       func(c *Config) { c.InboundBuffer = 0 },
			wantError:   &lockandgo.InvalidArgumentError{},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			c := validConfig()
			test.input(&c)

			err := c.Validate()

			if test.wantError != nil {
				if !cmp.Equal(err, test.wantError, cmpopts.EquateErrors()) {
					t.Errorf("%#v != %#v", err, test.wantError)
				}
			} else {
				if err != nil {
					t.Fatal(err)
				}
			}
		})
	}
}

func TestApplyStore(t *testing.T) {
	unsetPort := DefaultConfig
	unsetPort.BrokerPort = 0

	tests := []struct {
		description string
		config      Config
		store       store.Store
		want        Config
		wantError   bool
	}{
		{
			description: "fills empty values",
			config:      unsetPort,
			store: memStore{
				store.KeyBrokerHost: "broker.local",
				store.KeyBrokerPort: "8883",
				store.KeyDeviceID:   "locker_09",
			},
			want: func() Config {
				c := DefaultConfig
				c.BrokerHost = "broker.local"
				c.BrokerPort = 8883
				c.DeviceID = "locker_09"
				return c
			}(),
		},
		{
			description: "flags win",
			config:      validConfig(),
			store: memStore{
				store.KeyBrokerHost: "broker.local",
				store.KeyBrokerPort: "8883",
				store.KeyDeviceID:   "locker_09",
			},
			want: validConfig(),
		},
		{
			description: "explicit port kept",
			config: func() Config {
				c := DefaultConfig
				c.BrokerPort = 8884
				return c
			}(),
			store: memStore{
				store.KeyBrokerHost: "broker.local",
				store.KeyBrokerPort: "8883",
				store.KeyDeviceID:   "locker_09",
			},
			want: func() Config {
				c := DefaultConfig
				c.BrokerHost = "broker.local"
				c.BrokerPort = 8884
				c.DeviceID = "locker_09"
				return c
			}(),
		},
		{
			description: "empty store",
			config:      unsetPort,
			store:       memStore{},
			want:        DefaultConfig,
		},
		{
			description: "bad port",
			config:      unsetPort,
			store: memStore{
				store.KeyBrokerHost: "broker.local",
				store.KeyBrokerPort: "eighty",
			},
			wantError: true,
		},
		{
			description: "store failure",
			config:      DefaultConfig,
			store:       brokenStore{},
			wantError:   true,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			got := test.config
			err := got.ApplyStore(test.store)

			if test.wantError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !cmp.Equal(got, test.want) {
				t.Errorf("%v", cmp.Diff(got, test.want))
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		description string
		input       func(c *Config)
		want        string
	}{
		{
			description: "plain",
			input:       func(c *Config) {},
			want:        "tcp://192.168.1.100:1883",
		},
		{
			description: "tls",
			input: func(c *Config) {
				c.BrokerPort = 8883
				c.CARoot = []string{"/etc/pki/ca.pem"}
			},
			want: "ssl://192.168.1.100:8883",
		},
		{
			description: "ipv6",
			input:       func(c *Config) { c.BrokerHost = "fd00::1" },
			want:        "tcp://[fd00::1]:1883",
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			c := validConfig()
			test.input(&c)

			got := c.BrokerURL()

			if !cmp.Equal(got, test.want) {
				t.Errorf("%#v != %#v", got, test.want)
			}
		})
	}
}

func TestCreateTLSConfig(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		description string
		input       func(c *Config)
		wantError   bool
	}{
		{
			description: "no files",
			input:       func(c *Config) {},
		},
		{
			description: "missing ca root",
			input:       func(c *Config) { c.CARoot = []string{filepath.Join(dir, "missing.pem")} },
			wantError:   true,
		},
		{
			description: "unparsable ca root",
			input:       func(c *Config) { c.CARoot = []string{garbage} },
			wantError:   true,
		},
		{
			description: "unparsable key pair",
			input: func(c *Config) {
				c.CertFile = garbage
				c.KeyFile = garbage
			},
			wantError: true,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			c := validConfig()
			test.input(&c)

			got, err := c.CreateTLSConfig()

			if test.wantError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.RootCAs == nil {
				t.Error("missing root CA pool")
			}
		})
	}
}

func TestTopics(t *testing.T) {
	c := validConfig()
	got, err := c.Topics()
	if err != nil {
		t.Fatal(err)
	}
	want := lockandgo.TopicPair{
		Command: "lockngo/locker_01/command",
		Status:  "lockngo/locker_01/status",
	}
	if !cmp.Equal(got, want) {
		t.Errorf("%v", cmp.Diff(got, want))
	}
}
