package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/iamptic/lockandgo/internal/config"
	"github.com/iamptic/lockandgo/internal/link"
	"github.com/iamptic/lockandgo/internal/provision"
	"github.com/urfave/cli/v2"
)

func TestConfigFromContext(t *testing.T) {
	tests := []struct {
		description string
		input       []string
		want        func(c *config.Config)
	}{
		{
			description: "defaults",
			input:       []string{},
			want:        func(c *config.Config) {},
		},
		{
			description: "broker and identity",
			input: []string{
				"--device-id", "locker_01",
				"--broker-host", "192.168.1.100",
				"--broker-port", "8883",
				"--ca-root", "/etc/pki/a.pem",
				"--ca-root", "/etc/pki/b.pem",
			},
			want: func(c *config.Config) {
				c.DeviceID = "locker_01"
				c.BrokerHost = "192.168.1.100"
				c.BrokerPort = 8883
				c.CARoot = []string{"/etc/pki/a.pem", "/etc/pki/b.pem"}
			},
		},
		{
			description: "hardware",
			input: []string{
				"--relay", "simulated",
				"--relay-line", "4",
				"--relay-active-low",
				"--link", "interface",
				"--link-interface", "wlan0",
			},
			want: func(c *config.Config) {
				c.Relay = config.RelaySimulated
				c.RelayLine = 4
				c.RelayActiveLow = true
				c.Link = config.LinkInterface
				c.LinkInterface = "wlan0"
			},
		},
		{
			description: "timing",
			input: []string{
				"--provision-timeout", "5m",
				"--session-retry-interval", "1s",
				"--poll-interval", "50ms",
				"--inbound-buffer", "4",
				"--offline-will",
			},
			want: func(c *config.Config) {
				c.ProvisionTimeout = 5 * time.Minute
				c.SessionRetryInterval = time.Second
				c.PollInterval = 50 * time.Millisecond
				c.InboundBuffer = 4
				c.OfflineWill = true
			},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			var got config.Config
			app := cli.NewApp()
			app.Flags = append(flags(), &cli.StringFlag{Name: config.FlagNameLogLevel, Value: "info"})
			app.Action = func(c *cli.Context) error {
				got = configFromContext(c)
				return nil
			}

			if err := app.Run(append([]string{"lockd"}, test.input...)); err != nil {
				t.Fatal(err)
			}

			want := config.DefaultConfig
			want.DeviceStore = got.DeviceStore
			want.BrokerPort = 0
			test.want(&want)
			if !cmp.Equal(got, want, cmpopts.EquateEmpty()) {
				t.Errorf("%v", cmp.Diff(got, want))
			}
		})
	}
}

func TestNewProvisioner(t *testing.T) {
	conf := config.DefaultConfig

	if _, ok := newProvisioner(&conf).(*provision.Portal); !ok {
		t.Errorf("expected portal on %v", conf.ProvisionAddr)
	}

	conf.ProvisionAddr = ""
	if _, ok := newProvisioner(&conf).(provision.Disabled); !ok {
		t.Error("expected disabled provisioner")
	}
}

func TestNewLink(t *testing.T) {
	conf := config.DefaultConfig
	conf.Link = config.LinkNone
	l, err := newLink(&conf)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(link.Static); !ok {
		t.Errorf("unexpected link %T", l)
	}

	conf.Link = config.LinkInterface
	conf.LinkInterface = "wlan0"
	l, err = newLink(&conf)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(*link.Interface); !ok {
		t.Errorf("unexpected link %T", l)
	}
}
