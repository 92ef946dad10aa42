package main

import (
	"fmt"
	"os"
	"time"

	"git.sr.ht/~spc/go-log"
	"github.com/iamptic/lockandgo"
	"github.com/iamptic/lockandgo/internal/config"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

func main() {
	app, err := lockandgo.NewApp(lockandgo.ShortName+"ctl",
		&cli.StringFlag{
			Name:    "broker",
			Aliases: []string{"b"},
			Value:   fmt.Sprintf("tcp://localhost:%v", config.DefaultBrokerPort),
			Usage:   "connect to the broker at `URL`",
			EnvVars: []string{"LOCKCTL_BROKER"},
		},
		&cli.StringFlag{
			Name:  "client-id",
			Usage: "connect with client `ID` (default is derived from the process ID)",
		},
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
		&cli.BoolFlag{
			Name:   "generate-man-page",
			Hidden: true,
		},
		&cli.BoolFlag{
			Name:   "generate-markdown",
			Hidden: true,
		},
	)
	if err != nil {
		log.Fatal(err)
	}
	app.Usage = "operate lockers over MQTT"

	log.SetFlags(0)
	log.SetPrefix("")

	before := app.Before
	app.Before = func(c *cli.Context) error {
		if err := before(c); err != nil {
			return err
		}
		level, err := log.ParseLevel(c.String("log-level"))
		if err != nil {
			return cli.Exit(lockandgo.NewInvalidArgumentError("log-level", c.String("log-level")), 1)
		}
		log.SetLevel(level)
		return nil
	}

	app.Commands = []*cli.Command{
		{
			Name:      "open",
			Usage:     "open a locker and wait for it to report",
			ArgsUsage: "LOCKER-ID",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:    "timeout",
					Aliases: []string{"t"},
					Value:   10 * time.Second,
					Usage:   "give up after `DURATION` without a status",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.Exit("open requires exactly one LOCKER-ID", 1)
				}
				return openAction(c)
			},
		},
		{
			Name:   "watch",
			Usage:  "print the status messages of every locker",
			Action: watchAction,
		},
		{
			Name:  "status",
			Usage: "report the local device settings and service state",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:      config.FlagNameDeviceStore,
					Value:     lockandgo.DeviceStorePath(),
					Usage:     "read device settings from `FILE`",
					TakesFile: true,
				},
			},
			Action: func(c *cli.Context) error {
				s, err := getStatus(c.String(config.FlagNameDeviceStore))
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprint(c.App.Writer, s)
				return nil
			},
		},
		{
			Name:  "activate",
			Usage: "enable and start the locker service",
			Action: func(c *cli.Context) error {
				if err := activate(); err != nil {
					return cli.Exit(err, 1)
				}
				return nil
			},
		},
		{
			Name:  "deactivate",
			Usage: "stop and disable the locker service",
			Action: func(c *cli.Context) error {
				if err := deactivate(); err != nil {
					return cli.Exit(err, 1)
				}
				return nil
			},
		},
		{
			Name:  "hash-password",
			Usage: "print a hash suitable for --" + config.FlagNameProvisionPasswordHash,
			Action: func(c *cli.Context) error {
				password, err := readPassword(os.Stdin, os.Stderr)
				if err != nil {
					return cli.Exit(err, 1)
				}
				hash, err := hashPassword(password)
				if err != nil {
					return cli.Exit(err, 1)
				}
				fmt.Fprintln(c.App.Writer, hash)
				return nil
			},
		},
	}
	app.EnableBashCompletion = true
	app.BashComplete = lockandgo.BashComplete
	app.Action = func(c *cli.Context) error {
		type GenerationFunc func() (string, error)
		var generationFunc GenerationFunc
		if c.Bool("generate-man-page") {
			generationFunc = c.App.ToMan
		} else if c.Bool("generate-markdown") {
			generationFunc = c.App.ToMarkdown
		} else {
			cli.ShowAppHelpAndExit(c, 0)
		}
		data, err := generationFunc()
		if err != nil {
			return err
		}
		fmt.Println(data)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
	}
}
