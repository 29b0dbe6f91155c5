package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/cmd/migrate"
	"github.com/jDay-whyT/converterBot-backend/internal/config"
	"github.com/jDay-whyT/converterBot-backend/internal/converterclient"
	"github.com/jDay-whyT/converterBot-backend/internal/dedupe"
	"github.com/jDay-whyT/converterBot-backend/internal/queue"
	"github.com/jDay-whyT/converterBot-backend/internal/r2"
	"github.com/jDay-whyT/converterBot-backend/internal/redisholder"
	"github.com/jDay-whyT/converterBot-backend/internal/repository/storage"
	"github.com/jDay-whyT/converterBot-backend/internal/telegram"
	"github.com/jDay-whyT/converterBot-backend/internal/transport/handler"
	"github.com/jDay-whyT/converterBot-backend/internal/transport/router"
	"github.com/jDay-whyT/converterBot-backend/internal/worker"
)

type consumer interface {
	Start(ctx context.Context) error
}

type WorkerApp struct {
	App

	consumer consumer
}

// NewWorker wires the job worker. Redis, the archive and the ledger are
// only connected when configured.
func NewWorker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*WorkerApp, error) {
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}

	a := &WorkerApp{App: App{cfg: cfg, logger: logger}}
	fail := func(err error) (*WorkerApp, error) {
		a.close()
		return nil, err
	}

	var rc func() redis.UniversalClient
	if cfg.Redis.Enabled() {
		holder, err := redisholder.Build(ctx, cfg.Redis, logger)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func() { _ = holder.Close() })
		rc = holder.Get
	}

	var seen dedupe.Store = dedupe.NewMemory(cfg.Dedupe.Capacity)
	if cfg.Dedupe.Backend == "redis" {
		seen = dedupe.NewRedis(cfg.Dedupe.Namespace, cfg.Dedupe.TTL(), rc)
	}

	tg, err := telegram.New(cfg.Telegram, cfg.Upload.MaxFileBytes(), nil, logger)
	if err != nil {
		return fail(err)
	}

	conv := converterclient.New(cfg.Worker.ConverterURL, cfg.Converter.APIKey,
		&http.Client{Timeout: cfg.Worker.ConversionTimeout()},
		cfg.Worker.MinResultBytes, cfg.Upload.MaxFileBytes())

	var opts []worker.Option
	if cfg.R2.Enabled() {
		archive, err := r2.NewArchive(ctx, cfg.R2, logger)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, archive.Close)
		opts = append(opts, worker.WithArchiver(archive))
	}
	if cfg.Database.DSN != "" {
		if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		repo, err := storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, repo.Close)
		opts = append(opts, worker.WithLedger(repo))
	}

	processor := worker.NewProcessor(tg, conv, worker.Target{
		ChatID:            cfg.Telegram.ChatID,
		TopicID:           cfg.Telegram.TopicConvertedID,
		Quality:           cfg.Worker.Quality,
		ConversionTimeout: cfg.Worker.ConversionTimeout(),
	}, logger, opts...)
	svc := worker.NewService(processor, seen, logger)

	a.HttpServer = newServer(cfg.Server, router.NewWorkerRouter(handler.NewPush(svc, logger)))
	if cfg.Worker.Source == "stream" {
		a.consumer = queue.NewWorker(rc, cfg.Queue, svc, logger)
	}
	return a, nil
}

// Run serves the push endpoint and, for the stream source, consumes the
// stream until ctx is canceled. Closers run only after the consumer has
// finished its in-flight entries.
func (a *WorkerApp) Run(ctx context.Context) error {
	if a.consumer == nil {
		return a.App.Run(ctx)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		err := a.consumer.Start(ctx)
		if err != nil {
			cancel()
		}
		errCh <- err
	}()

	err := a.serve(ctx)
	cancel()
	return errors.Join(err, <-errCh)
}
