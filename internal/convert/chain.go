package convert

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
)

// Strategy is one way of producing the job's output JPEG. Attempt returns nil
// only when job.Output holds a validated image.
type Strategy interface {
	Name() string
	Binary() string
	Attempt(ctx context.Context, job Job) error
}

// Chain tries its strategies strictly in order until one succeeds.
type Chain struct {
	route      Route
	strategies []Strategy
	lookPath   func(string) (string, error)
	maxStderr  int
	logger     zerolog.Logger
}

func NewChain(route Route, lookPath func(string) (string, error), maxStderr int, logger zerolog.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		route:      route,
		strategies: strategies,
		lookPath:   lookPath,
		maxStderr:  maxStderr,
		logger:     logger,
	}
}

// Run returns the winning strategy name and the failures recorded before it.
// When every strategy fails the error is an *Error matching ErrExhausted.
func (c *Chain) Run(ctx context.Context, job Job) (string, Diagnostic, error) {
	var diag Diagnostic

	for _, s := range c.strategies {
		_ = os.Remove(job.Output)

		if _, err := c.lookPath(s.Binary()); err != nil {
			diag = c.record(diag, s.Name(), toolexec.NotFound(s.Binary()))
			continue
		}

		if err := c.attempt(ctx, s, job); err != nil {
			diag = c.record(diag, s.Name(), err)
			continue
		}

		c.logger.Info().Str("step", s.Name()).Str("status", "ok").Msg("conversion step succeeded")
		return s.Name(), diag, nil
	}

	_ = os.Remove(job.Output)
	return "", diag, &Error{Route: c.route, Diagnostic: diag, Exhausted: true}
}

func (c *Chain) attempt(ctx context.Context, s Strategy, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Attempt(ctx, job)
}

func (c *Chain) record(diag Diagnostic, name string, err error) Diagnostic {
	se := stageError(name, err, c.maxStderr)
	rc := "na"
	if se.ExitCode != nil {
		rc = fmt.Sprint(*se.ExitCode)
	}
	c.logger.Warn().
		Str("step", name).
		Str("status", "fail").
		Str("reason", se.Stderr).
		Bool("timeout", se.TimedOut).
		Str("rc", rc).
		Msg("conversion step failed")
	return append(diag, se)
}
