package main

import (
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/config"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func flags() []cli.Flag {
	d := config.DefaultConfig

	return []cli.Flag{
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:      config.FlagNameLogFile,
			Usage:     "write log output to a size-rotated `FILE` instead of stderr",
			TakesFile: true,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:      config.FlagNameDeviceStore,
			Value:     lockandgo.DeviceStorePath(),
			Usage:     "read and write provisioned settings in `FILE` (.toml, .yaml or .yml)",
			TakesFile: true,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameDeviceID,
			Usage: "identify as `ID` on the broker, overriding the device store",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameBrokerHost,
			Usage: "connect to the broker at `HOST`, overriding the device store",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameBrokerPort,
			Value: d.BrokerPort,
			Usage: "connect to the broker on `PORT`",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:      config.FlagNameCertFile,
			Usage:     "use `FILE` as the client certificate",
			TakesFile: true,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:      config.FlagNameKeyFile,
			Usage:     "use `FILE` as the client's private key",
			TakesFile: true,
		}),
		altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
			Name:      config.FlagNameCaRoot,
			Usage:     "use `FILE` as the root CA",
			TakesFile: true,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameLink,
			Value: d.Link,
			Usage: "manage the network link with `KIND` (networkmanager, interface, none)",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameLinkInterface,
			Usage: "watch network interface `NAME` when --link=interface",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameLinkProfile,
			Usage: "activate NetworkManager connection `ID` when --link=networkmanager",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameRelay,
			Value: d.Relay,
			Usage: "drive the lock with `KIND` (gpio, simulated)",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameRelayChip,
			Value: d.RelayChip,
			Usage: "use GPIO character device `CHIP` for the relay",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameRelayLine,
			Value: d.RelayLine,
			Usage: "use line `OFFSET` on the relay chip",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  config.FlagNameRelayActiveLow,
			Usage: "treat the relay line as active low",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameProvisionAddr,
			Value: d.ProvisionAddr,
			Usage: "serve the setup portal on `ADDR` (empty disables the portal)",
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  config.FlagNameProvisionPasswordHash,
			Usage: "protect the setup portal with bcrypt `HASH` (see lockctl hash-password)",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  config.FlagNameProvisionTimeout,
			Value: d.ProvisionTimeout,
			Usage: "exit if provisioning is not completed within `DURATION`",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  config.FlagNameSessionRetryInterval,
			Value: d.SessionRetryInterval,
			Usage: "wait `DURATION` between broker connection attempts",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  config.FlagNameLinkRetryInterval,
			Value: d.LinkRetryInterval,
			Usage: "wait at least `DURATION` between link connection attempts",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  config.FlagNameMQTTConnectTimeout,
			Value: d.MQTTConnectTimeout,
			Usage: "give up a broker connection attempt after `DURATION`",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  config.FlagNameMQTTPublishTimeout,
			Value: d.MQTTPublishTimeout,
			Usage: "give up publishing a status after `DURATION`",
		}),
		altsrc.NewDurationFlag(&cli.DurationFlag{
			Name:  config.FlagNamePollInterval,
			Value: d.PollInterval,
			Usage: "wait up to `DURATION` for a command in each loop iteration",
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:  config.FlagNameInboundBuffer,
			Value: d.InboundBuffer,
			Usage: "buffer up to `N` received commands",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:  config.FlagNameOfflineWill,
			Usage: "register OFFLINE as the broker session's last will",
		}),
		&cli.BoolFlag{
			Name:   "generate-man-page",
			Hidden: true,
		},
		&cli.BoolFlag{
			Name:   "generate-markdown",
			Hidden: true,
		},
	}
}

// configFromContext builds a Config from parsed flag values. The device store
// is not consulted, and BrokerPort stays zero unless the flag was given.
func configFromContext(c *cli.Context) config.Config {
	conf := config.DefaultConfig

	conf.LogLevel = c.String(config.FlagNameLogLevel)
	conf.LogFile = c.String(config.FlagNameLogFile)
	conf.DeviceStore = c.String(config.FlagNameDeviceStore)
	conf.DeviceID = c.String(config.FlagNameDeviceID)
	conf.BrokerHost = c.String(config.FlagNameBrokerHost)
	conf.BrokerPort = 0
	if c.IsSet(config.FlagNameBrokerPort) {
		conf.BrokerPort = c.Int(config.FlagNameBrokerPort)
	}
	conf.CertFile = c.String(config.FlagNameCertFile)
	conf.KeyFile = c.String(config.FlagNameKeyFile)
	conf.CARoot = c.StringSlice(config.FlagNameCaRoot)
	conf.Link = c.String(config.FlagNameLink)
	conf.LinkInterface = c.String(config.FlagNameLinkInterface)
	conf.LinkProfile = c.String(config.FlagNameLinkProfile)
	conf.Relay = c.String(config.FlagNameRelay)
	conf.RelayChip = c.String(config.FlagNameRelayChip)
	conf.RelayLine = c.Int(config.FlagNameRelayLine)
	conf.RelayActiveLow = c.Bool(config.FlagNameRelayActiveLow)
	conf.ProvisionAddr = c.String(config.FlagNameProvisionAddr)
	conf.ProvisionPasswordHash = c.String(config.FlagNameProvisionPasswordHash)
	conf.ProvisionTimeout = c.Duration(config.FlagNameProvisionTimeout)
	conf.SessionRetryInterval = c.Duration(config.FlagNameSessionRetryInterval)
	conf.LinkRetryInterval = c.Duration(config.FlagNameLinkRetryInterval)
	conf.MQTTConnectTimeout = c.Duration(config.FlagNameMQTTConnectTimeout)
	conf.MQTTPublishTimeout = c.Duration(config.FlagNameMQTTPublishTimeout)
	conf.PollInterval = c.Duration(config.FlagNamePollInterval)
	conf.InboundBuffer = c.Int(config.FlagNameInboundBuffer)
	conf.OfflineWill = c.Bool(config.FlagNameOfflineWill)

	return conf
}
