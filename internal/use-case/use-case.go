package use_case

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/convert"
	"github.com/jDay-whyT/converterBot-backend/internal/entities"
)

type Converter interface {
	Convert(ctx context.Context, route convert.Route, job convert.Job) (convert.Result, error)
}

// Limits are the request-level bounds enforced before a conversion starts.
type Limits struct {
	MaxFileBytes     int64
	MinRAWInputBytes int64
	TempDir          string
}

type useCase struct {
	converter Converter
	limits    Limits
	validator *validator.Validate
	logger    zerolog.Logger
}

func New(converter Converter, limits Limits, logger zerolog.Logger) *useCase {
	return &useCase{
		converter: converter,
		limits:    limits,
		validator: validator.New(),
		logger:    logger,
	}
}

// Convert runs one request end to end. The scoped temp directory is removed
// on every return path; the JPEG is returned in memory.
func (c *useCase) Convert(ctx context.Context, req entities.ConversionRequest) (entities.ConversionOutcome, error) {
	out := entities.ConversionOutcome{InBytes: len(req.Data)}
	start := time.Now()

	if err := c.validator.Struct(req.Params); err != nil {
		return out, paramsError(err)
	}

	format, err := Classify(req.Filename, req.ContentType)
	if sniffed, ok := Sniff(req.Data); ok {
		if format.Route != sniffed.Route {
			c.logger.Info().
				Str("declared", format.Suffix).
				Str("detected", sniffed.Suffix).
				Str("route", sniffed.Route.String()).
				Msg("content overrides declared format")
		}
		format, err = sniffed, nil
	}
	if err != nil {
		return out, err
	}
	out.Route = format.Route

	if int64(len(req.Data)) > c.limits.MaxFileBytes {
		return out, &InputError{
			Kind:    KindTooLarge,
			Message: fmt.Sprintf("file too large: max %dMB", c.limits.MaxFileBytes>>20),
		}
	}
	if format.Route == convert.RouteRAW && int64(len(req.Data)) < c.limits.MinRAWInputBytes {
		return out, &InputError{
			Kind:    KindUnprocessable,
			Message: fmt.Sprintf("RAW input too small: %d bytes (min %d)", len(req.Data), c.limits.MinRAWInputBytes),
		}
	}

	dir, err := os.MkdirTemp(c.limits.TempDir, "convert-")
	if err != nil {
		return out, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			c.logger.Warn().Err(rmErr).Str("dir", dir).Msg("failed to remove work dir")
		}
	}()

	job := convert.Job{
		Dir:     dir,
		Input:   filepath.Join(dir, "input"+format.Suffix),
		Output:  filepath.Join(dir, "output.jpg"),
		Quality: req.Params.Quality,
	}
	if req.Params.MaxSide != nil {
		job.MaxSide = *req.Params.MaxSide
	}

	if err := os.WriteFile(job.Input, req.Data, 0o600); err != nil {
		return out, fmt.Errorf("write input: %w", err)
	}
	if format.Route == convert.RouteRAW {
		c.logger.Info().Str("path", job.Input).Int("input_size", len(req.Data)).Msg("raw input")
	}

	res, err := c.converter.Convert(ctx, format.Route, job)
	out.Strategy = res.Strategy
	out.Failures = res.Failures
	if err != nil {
		return out, err
	}

	jpeg, err := os.ReadFile(job.Output)
	if err != nil {
		return out, fmt.Errorf("read output: %w", err)
	}
	out.JPEG = jpeg
	out.Elapsed = time.Since(start)
	return out, nil
}

func paramsError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field() {
		case "Quality":
			return &InputError{Kind: KindBadRequest, Message: "quality must be in range 1..100"}
		case "MaxSide":
			return &InputError{Kind: KindBadRequest, Message: "max_side must be > 0"}
		}
	}
	return &InputError{Kind: KindBadRequest, Message: err.Error()}
}
