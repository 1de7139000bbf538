package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/gmgn-scan/internal/config"
	"github.com/Sternrassler/gmgn-scan/pkg/client"
	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/logging"
	"github.com/Sternrassler/gmgn-scan/pkg/scan"
	"github.com/Sternrassler/gmgn-scan/pkg/tracing"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired components shared by every command.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	rdb         *redis.Client
	exec        *client.Client
	scanner     *scan.Scanner
	stopTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logging.Setup(cfg.LoggerConfig(logOut))}

	stop, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.stopTracing = stop

	opts, ok, err := cfg.RedisOptions()
	if err != nil {
		a.Close()
		return nil, err
	}
	if ok {
		a.rdb = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	} else {
		a.logger.Warn().Msg("Redis not configured, running with process-local cache and cooldown")
	}

	a.exec, err = client.New(cfg.ClientConfig(a.rdb))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create executor: %w", err)
	}

	a.scanner, err = scan.New(gmgn.NewAPI(a.exec, cfg.Upstream.BaseURL).WithTransfersURL(cfg.Upstream.TransfersURL), cfg.ScannerConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create scanner: %w", err)
	}
	return a, nil
}

// ready reports whether Redis, when configured, still answers.
func (a *app) ready(ctx context.Context) error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Ping(ctx).Err()
}

// Close releases connections and flushes pending spans.
func (a *app) Close() {
	if a.exec != nil {
		a.exec.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Redis close error")
		}
	}
	if a.stopTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.stopTracing(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Tracing shutdown error")
		}
	}
}
