// Package convert turns uploaded images into validated JPEGs by driving
// external tools through ordered fallback chains.
package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
)

// HEIFDecoder is the dedicated decoder used when ImageMagick cannot read a
// HEIF container.
const HEIFDecoder = "heif-convert"

// Result describes a successful conversion. The JPEG itself is at Job.Output.
type Result struct {
	Route    Route
	Strategy string
	Failures Diagnostic
}

// Converter dispatches a job to its route.
type Converter struct {
	tb  *Toolbox
	raw *Chain
}

func New(tb *Toolbox, previewTags []string) *Converter {
	return &Converter{tb: tb, raw: NewRAWChain(tb, previewTags)}
}

func (c *Converter) Convert(ctx context.Context, route Route, job Job) (Result, error) {
	switch route {
	case RouteRAW:
		name, diag, err := c.raw.Run(ctx, job)
		return Result{Route: route, Strategy: name, Failures: diag}, err
	case RouteHEIF:
		return c.convertHEIF(ctx, job)
	default:
		return c.convertDirect(ctx, job)
	}
}

func (c *Converter) convertDirect(ctx context.Context, job Job) (Result, error) {
	res := Result{Route: RouteDirect, Strategy: "magick"}
	if err := c.direct(ctx, job); err != nil {
		_ = os.Remove(job.Output)
		res.Failures = Diagnostic{stageError("magick", err, c.tb.MaxStderr)}
		return res, &Error{Route: RouteDirect, Diagnostic: res.Failures}
	}
	return res, nil
}

func (c *Converter) direct(ctx context.Context, job Job) error {
	if err := c.tb.Transcode(ctx, job.Input, job.Output, job.Quality, job.MaxSide); err != nil {
		return err
	}
	return c.tb.Verify(ctx, job.Output)
}

// convertHEIF tries ImageMagick first. Only a decode failure moves on to the
// dedicated decoder, and only when it is installed.
func (c *Converter) convertHEIF(ctx context.Context, job Job) (Result, error) {
	res := Result{Route: RouteHEIF, Strategy: "magick"}

	err := c.direct(ctx, job)
	if err == nil {
		return res, nil
	}
	_ = os.Remove(job.Output)
	res.Failures = Diagnostic{stageError("magick", err, c.tb.MaxStderr)}

	if !isDecodeFailure(err) {
		return res, &Error{Route: RouteHEIF, Diagnostic: res.Failures}
	}
	if !c.tb.Available(HEIFDecoder) {
		res.Failures = append(res.Failures, stageError(HEIFDecoder, toolexec.NotFound(HEIFDecoder), c.tb.MaxStderr))
		return res, &Error{
			Route:      RouteHEIF,
			Reason:     "HEIF decode failed and " + HEIFDecoder + " is unavailable",
			Diagnostic: res.Failures,
		}
	}

	res.Strategy = HEIFDecoder
	if err := c.heifDecoder(ctx, job); err != nil {
		_ = os.Remove(job.Output)
		res.Failures = append(res.Failures, stageError(HEIFDecoder, err, c.tb.MaxStderr))
		return res, &Error{Route: RouteHEIF, Diagnostic: res.Failures, Exhausted: true}
	}

	c.tb.Logger.Info().Str("step", HEIFDecoder).Str("status", "ok").Msg("heif fallback succeeded")
	return res, nil
}

func (c *Converter) heifDecoder(ctx context.Context, job Job) error {
	decoded := filepath.Join(job.Dir, "heif_fallback.jpg")
	_, err := c.tb.Runner.Run(ctx, toolexec.Command{
		Name:    HEIFDecoder,
		Args:    []string{job.Input, decoded},
		Timeout: c.tb.Timeouts.Default,
	})
	if err != nil {
		return err
	}
	return c.tb.Finish(ctx, decoded, job)
}

func isDecodeFailure(err error) bool {
	var toolErr *toolexec.Error
	if !errors.As(err, &toolErr) || toolErr.Kind != toolexec.KindFailed {
		return false
	}
	return strings.Contains(strings.ToLower(toolErr.Stderr), "decode")
}
