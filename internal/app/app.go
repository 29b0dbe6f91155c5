package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/config"
	"github.com/jDay-whyT/converterBot-backend/internal/convert"
	"github.com/jDay-whyT/converterBot-backend/internal/inspect"
	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
	"github.com/jDay-whyT/converterBot-backend/internal/transport/handler"
	"github.com/jDay-whyT/converterBot-backend/internal/transport/router"
	use_case "github.com/jDay-whyT/converterBot-backend/internal/use-case"
	"github.com/jDay-whyT/converterBot-backend/internal/validate"
)

type App struct {
	HttpServer *http.Server

	cfg     *config.Config
	logger  zerolog.Logger
	runner  toolexec.Runner
	closers []func()
}

// NewUseCase builds the conversion core on top of runner.
func NewUseCase(cfg *config.Config, runner toolexec.Runner, logger zerolog.Logger) handler.UseCase {
	var inspector inspect.Inspector = inspect.Native{}
	if cfg.Validation.Inspector == "magick" {
		inspector = inspect.NewMagick(runner, seconds(cfg.Tools.MagickTimeoutSec))
	}

	checker := validate.New(inspector, validate.Thresholds{
		MinDimension:  cfg.Validation.MinDimension,
		MinMeanLuma:   cfg.Validation.MinMeanLuma,
		MinRegionLuma: cfg.Validation.MinRegionLuma,
	}, logger)

	tb := &convert.Toolbox{
		Runner:  runner,
		Checker: checker,
		Timeouts: convert.Timeouts{
			Default:  seconds(cfg.Tools.TimeoutSec),
			Magick:   seconds(cfg.Tools.MagickTimeoutSec),
			Decoder:  seconds(cfg.Tools.DecoderTimeoutSec),
			Renderer: seconds(cfg.Tools.DarktableTimeoutSec),
		},
		MinOutputBytes: cfg.Converter.MinOutputBytes,
		MaxStderr:      cfg.Converter.MaxStderrChars,
		Logger:         logger,
	}

	return use_case.New(convert.New(tb, cfg.Tools.PreviewTags), use_case.Limits{
		MaxFileBytes:     cfg.Upload.MaxFileBytes(),
		MinRAWInputBytes: cfg.Converter.MinInputBytes,
		TempDir:          cfg.Upload.TempDir,
	}, logger)
}

// NewRunner is the process runner shared by the converter commands.
func NewRunner(cfg *config.Config, logger zerolog.Logger) *toolexec.Exec {
	return toolexec.New(cfg.Converter.MaxStderrChars, seconds(cfg.Tools.TimeoutSec), logger)
}

// NewConverter wires the conversion HTTP service.
func NewConverter(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.ValidateConverter(); err != nil {
		return nil, err
	}

	runner := NewRunner(cfg, logger)
	h := handler.New(NewUseCase(cfg, runner, logger), cfg, logger)

	return &App{
		HttpServer: newServer(cfg.Server, router.NewRouter(h)),
		cfg:        cfg,
		logger:     logger,
		runner:     runner,
	}, nil
}

func newServer(cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
	}
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	return a.serve(ctx)
}

// serve runs the HTTP server without releasing the closers.
func (a *App) serve(ctx context.Context) error {
	if a.runner != nil {
		LogToolInventory(ctx, a.runner, a.logger)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.HttpServer.Addr).Msg("starting server")
		errCh <- a.HttpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout())
	defer cancel()
	return a.HttpServer.Shutdown(shutdownCtx)
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
