package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Sternrassler/koperasi-ledger/internal/config"
	"github.com/Sternrassler/koperasi-ledger/internal/server"
	"github.com/Sternrassler/koperasi-ledger/pkg/cache"
	"github.com/Sternrassler/koperasi-ledger/pkg/client"
	"github.com/Sternrassler/koperasi-ledger/pkg/ledger"
	"github.com/Sternrassler/koperasi-ledger/pkg/logging"
	"github.com/Sternrassler/koperasi-ledger/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("ledger-proxy failed")
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger-proxy",
		Usage: "cache and serve the savings ledger spreadsheet",
		Flags: config.Flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.FromCommand(cmd)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
}

// app is the wired object graph of one proxy process.
type app struct {
	orch   *ledger.Orchestrator
	server *server.Server
	redis  *redis.Client
}

func build(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	clientCfg := client.DefaultConfig(cfg.API.UserAgent)
	clientCfg.Token = cfg.API.Token
	clientCfg.Timeout = cfg.API.Timeout
	clientCfg.Retry.MaxAttempts = cfg.API.MaxRetries + 1

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		clientCfg.Quota = ratelimit.NewTracker(a.redis, logging.NewLogger("quota"))
	}

	sheetClient, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}

	cacheLogger := logging.NewLogger("response-cache")
	rc := cache.New(sheetClient, cache.Config{
		DefaultTTL: cfg.Cache.DefaultTTL,
		Logger:     &cacheLogger,
	})

	a.orch = ledger.New(rc, sheetClient, cfg.Resources(), logging.NewLogger("ledger"))
	a.server = server.New(a.orch, cfg.Listen, logging.NewLogger("server"))
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
}

func run(ctx context.Context, cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.Setup(logging.Config{Level: level, Pretty: cfg.Log.Pretty, Output: os.Stderr})

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.server.Start(); err != nil {
		return err
	}

	log.Info().
		Str("api_url", cfg.API.URL).
		Bool("quota_tracking", a.redis != nil).
		Msg("ledger-proxy started")

	if cfg.Cache.Preload {
		go func() {
			a.orch.Preload(ctx)
			a.server.SetReady(true)
		}()
	} else {
		a.server.SetReady(true)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}
