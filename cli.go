package lockandgo

import (
	"os"

	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// NewApp creates a new cli Application with name, the shared "config" and
// "log-level" flags, and any additional flags. Flags wrapped with altsrc may
// also be set from the TOML file named by "config".
func NewApp(name string, flags ...cli.Flag) (*cli.App, error) {
	app := cli.NewApp()
	app.Name = name
	app.Version = Version

	defaultConfigFilePath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	app.Flags = append([]cli.Flag{
		&cli.StringFlag{
			Name:      "config",
			Value:     defaultConfigFilePath,
			TakesFile: true,
			Usage:     "read flag values from TOML `FILE`",
		},
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "set log verbosity to `LEVEL` (error, warn, info, debug, trace)",
		}),
	}, flags...)

	// This BeforeFunc will load flag values from a config file only if the
	// "config" flag value is non-zero. A missing default file is skipped.
	app.Before = func(c *cli.Context) error {
		if c.String("config") != "" {
			if _, err := os.Stat(c.String("config")); os.IsNotExist(err) && !c.IsSet("config") {
				return nil
			}
			inputSource, err := altsrc.NewTomlSourceFromFlagFunc("config")(c)
			if err != nil {
				return err
			}
			return altsrc.ApplyInputSourceValues(c, inputSource, app.Flags)
		}
		return nil
	}

	return app, nil
}
