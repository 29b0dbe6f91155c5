package convert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
	"github.com/jDay-whyT/converterBot-backend/internal/validate"
)

// Checker is the quality gate applied to every finished candidate.
type Checker interface {
	Check(ctx context.Context, path string) error
}

// Timeouts bound each family of external tools.
type Timeouts struct {
	Default  time.Duration
	Magick   time.Duration
	Decoder  time.Duration
	Renderer time.Duration
}

// DefaultTimeouts are the production per-tool limits.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Default:  90 * time.Second,
		Magick:   90 * time.Second,
		Decoder:  120 * time.Second,
		Renderer: 180 * time.Second,
	}
}

// Toolbox holds what every strategy shares: the runner, the quality gate and
// the final transcode step.
type Toolbox struct {
	Runner         toolexec.Runner
	Checker        Checker
	Timeouts       Timeouts
	MinOutputBytes int64
	MaxStderr      int
	Logger         zerolog.Logger
}

// Available reports whether binary can be found.
func (t *Toolbox) Available(binary string) bool {
	_, err := t.Runner.LookPath(binary)
	return err == nil
}

// Transcode re-encodes in as an sRGB JPEG at quality, optionally bounded to
// maxSide on the longer side, with metadata stripped.
func (t *Toolbox) Transcode(ctx context.Context, in, out string, quality, maxSide int) error {
	args := []string{"-limit", "thread", "1", in, "-auto-orient", "-colorspace", "sRGB"}
	if maxSide > 0 {
		args = append(args, "-resize", fmt.Sprintf("%dx%d>", maxSide, maxSide))
	}
	args = append(args, "-quality", strconv.Itoa(quality), "-strip", out)

	_, err := t.Runner.Run(ctx, toolexec.Command{Name: "magick", Args: args, Timeout: t.Timeouts.Magick})
	return err
}

// Finish turns an intermediate candidate into the job's validated output.
func (t *Toolbox) Finish(ctx context.Context, candidate string, job Job) error {
	if err := validate.CheckFile(candidate, t.MinOutputBytes); err != nil {
		return err
	}
	if err := t.Transcode(ctx, candidate, job.Output, job.Quality, job.MaxSide); err != nil {
		return err
	}
	return t.Verify(ctx, job.Output)
}

// Verify applies the file and image gates to path.
func (t *Toolbox) Verify(ctx context.Context, path string) error {
	if err := validate.CheckFile(path, t.MinOutputBytes); err != nil {
		return err
	}
	return t.Checker.Check(ctx, path)
}
