package config

import (
	"github.com/urfave/cli/v3"
)

// Flag names.
const (
	FlagConfig    = "config"
	FlagListen    = "listen"
	FlagAPIURL    = "api-url"
	FlagAPIToken  = "api-token"
	FlagRedisAddr = "redis-addr"
	FlagLogLevel  = "log-level"
	FlagPretty    = "pretty"
	FlagNoPreload = "no-preload"
)

// Flags returns the command line flags that override the config file.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagConfig,
			Aliases: []string{"c"},
			Usage:   "path to the YAML config file",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LEDGER_CONFIG"),
			),
		},
		&cli.StringFlag{
			Name:  FlagListen,
			Usage: "HTTP listen address",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LEDGER_LISTEN"),
			),
		},
		&cli.StringFlag{
			Name:  FlagAPIURL,
			Usage: "spreadsheet API base URL",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LEDGER_API_URL"),
			),
		},
		&cli.StringFlag{
			Name:  FlagAPIToken,
			Usage: "spreadsheet API bearer token",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LEDGER_API_TOKEN"),
			),
		},
		&cli.StringFlag{
			Name:  FlagRedisAddr,
			Usage: "redis address for the shared quota tracker (disabled when empty)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LEDGER_REDIS_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  FlagLogLevel,
			Usage: "log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LEDGER_LOG_LEVEL"),
			),
		},
		&cli.BoolFlag{
			Name:  FlagPretty,
			Usage: "human-readable console logs",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LEDGER_LOG_PRETTY"),
			),
		},
		&cli.BoolFlag{
			Name:  FlagNoPreload,
			Usage: "skip reading all sheets at startup",
		},
	}
}

// FromCommand loads the config file named by --config and applies every flag
// that was set on the command line or through the environment.
func FromCommand(cmd *cli.Command) (Config, error) {
	cfg, err := Load(cmd.String(FlagConfig))
	if err != nil {
		return Config{}, err
	}

	if cmd.IsSet(FlagListen) {
		cfg.Listen = cmd.String(FlagListen)
	}
	if cmd.IsSet(FlagAPIURL) {
		cfg.API.URL = cmd.String(FlagAPIURL)
	}
	if cmd.IsSet(FlagAPIToken) {
		cfg.API.Token = cmd.String(FlagAPIToken)
	}
	if cmd.IsSet(FlagRedisAddr) {
		cfg.Redis.Addr = cmd.String(FlagRedisAddr)
	}
	if cmd.IsSet(FlagLogLevel) {
		cfg.Log.Level = cmd.String(FlagLogLevel)
	}
	if cmd.IsSet(FlagPretty) {
		cfg.Log.Pretty = cmd.Bool(FlagPretty)
	}
	if cmd.Bool(FlagNoPreload) {
		cfg.Cache.Preload = false
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
