package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"git.sr.ht/~spc/go-log"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/actuator"
	"github.com/iamptic/lockandgo/internal/clock"
	"github.com/iamptic/lockandgo/internal/config"
	"github.com/iamptic/lockandgo/internal/controller"
	"github.com/iamptic/lockandgo/internal/link"
	"github.com/iamptic/lockandgo/internal/provision"
	"github.com/iamptic/lockandgo/internal/session"
	"github.com/iamptic/lockandgo/internal/store"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	app, err := lockandgo.NewApp(lockandgo.ShortName+"d", flags()...)
	if err != nil {
		log.Fatal(err)
	}
	app.Usage = "keep a locker connected and open it on command"
	app.EnableBashCompletion = true
	app.BashComplete = lockandgo.BashComplete

	app.Action = func(c *cli.Context) error {
		if c.Bool("generate-man-page") || c.Bool("generate-markdown") {
			type GenerationFunc func() (string, error)
			var generationFunc GenerationFunc
			if c.Bool("generate-man-page") {
				generationFunc = c.App.ToMan
			} else if c.Bool("generate-markdown") {
				generationFunc = c.App.ToMarkdown
			}
			data, err := generationFunc()
			if err != nil {
				return err
			}
			fmt.Println(data)
			return nil
		}

		conf := configFromContext(c)

		level, err := log.ParseLevel(conf.LogLevel)
		if err != nil {
			return cli.Exit(lockandgo.NewInvalidArgumentError(config.FlagNameLogLevel, conf.LogLevel), 1)
		}
		log.SetLevel(level)
		log.SetPrefix(fmt.Sprintf("[%v] ", app.Name))
		if conf.LogFile != "" {
			log.SetOutput(&lumberjack.Logger{
				Filename:   conf.LogFile,
				MaxSize:    5,
				MaxBackups: 3,
				MaxAge:     28,
				Compress:   true,
			})
		}

		if err := run(&conf); err != nil {
			return cli.Exit(err, 1)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(conf *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	notifier := systemdNotifier{}
	defer notifier.Stopping()

	// The relay is forced inactive before anything else happens.
	pin, err := newPin(conf)
	if err != nil {
		return err
	}
	driver := actuator.NewDriver(pin, clock.Real())
	if err := driver.Initialize(); err != nil {
		pin.Close()
		return fmt.Errorf("cannot initialize relay: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Errorf("cannot close relay: %v", err)
		}
	}()

	s, err := store.Open(conf.DeviceStore)
	if err != nil {
		return err
	}
	if err := conf.ApplyStore(s); err != nil {
		return fmt.Errorf("cannot apply device store: %w", err)
	}

	provisioner := newProvisioner(conf)
	if !conf.Provisioned() {
		log.Warn("device is not provisioned")
		notifier.Status("provisioning")
		settings, err := provision.Run(ctx, provisioner, s, conf.ProvisionTimeout)
		if err != nil {
			return fmt.Errorf("cannot provision device: %w", err)
		}
		conf.DeviceID = settings.DeviceID
		conf.BrokerHost = settings.BrokerHost
		conf.BrokerPort = settings.BrokerPort
	}

	if err := conf.Validate(); err != nil {
		return err
	}
	log.Infof("starting %v %v as %v", lockandgo.LongName, lockandgo.Version, conf.DeviceID)

	var tlsConfig *tls.Config
	var tlsUpdates <-chan *tls.Config
	if conf.TLSEnabled() {
		tlsConfig, err = conf.CreateTLSConfig()
		if err != nil {
			return fmt.Errorf("cannot create TLS config: %w", err)
		}
		tlsUpdates, err = conf.WatcherUpdate()
		if err != nil {
			return fmt.Errorf("cannot watch certificates: %w", err)
		}
	}

	l, err := newLink(conf)
	if err != nil {
		return err
	}

	manager, err := session.NewManager(conf, l, provisioner, s,
		session.WithTLSConfig(tlsConfig),
		session.WithHeartbeat(notifier.Watchdog),
	)
	if err != nil {
		return err
	}
	defer manager.Close()

	c := controller.New(manager, driver, manager.Topics(), conf.HoldDuration,
		controller.WithNotifier(notifier),
		controller.WithTLSUpdates(tlsUpdates),
	)

	return c.Run(ctx)
}

func newPin(conf *config.Config) (actuator.Pin, error) {
	switch conf.Relay {
	case config.RelaySimulated:
		log.Info("using simulated relay")
		return actuator.NewSimulatedPin(), nil
	default:
		pin, err := actuator.NewGPIOPin(conf.RelayChip, conf.RelayLine, conf.RelayActiveLow, lockandgo.LongName)
		if err != nil {
			return nil, fmt.Errorf("cannot open relay: %w", err)
		}
		return pin, nil
	}
}

func newLink(conf *config.Config) (link.Link, error) {
	switch conf.Link {
	case config.LinkNone:
		return link.Static{}, nil
	case config.LinkInterface:
		return link.NewInterface(conf.LinkInterface, clock.Real()), nil
	default:
		return link.NewNetworkManager(conf.LinkProfile, clock.Real())
	}
}

func newProvisioner(conf *config.Config) provision.Provisioner {
	if conf.ProvisionAddr == "" {
		return provision.Disabled{}
	}
	return provision.NewPortal(conf.ProvisionAddr, conf.ProvisionPasswordHash, provision.Settings{
		BrokerHost: conf.BrokerHost,
		BrokerPort: conf.BrokerPort,
		DeviceID:   conf.DeviceID,
	})
}
