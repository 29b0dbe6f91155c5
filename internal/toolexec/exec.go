// Package toolexec runs external image tools with a timeout and classifies
// their failures.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultEnv pins numeric-library thread pools to one thread so concurrent
// conversions on a shared host do not oversubscribe the CPU.
var DefaultEnv = map[string]string{
	"OMP_NUM_THREADS":      "1",
	"OPENBLAS_NUM_THREADS": "1",
	"MKL_NUM_THREADS":      "1",
	"NUMEXPR_NUM_THREADS":  "1",
}

// Command is a single tool invocation.
type Command struct {
	Name    string
	Args    []string
	Stdin   []byte
	Timeout time.Duration
	Env     map[string]string

	// StdoutPath, when set, streams stdout into that file instead of
	// returning it.
	StdoutPath string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands and locates binaries.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
	LookPath(name string) (string, error)
}

// Exec is the os/exec backed Runner.
type Exec struct {
	MaxStderr      int
	DefaultTimeout time.Duration
	Env            map[string]string
	Logger         zerolog.Logger
}

func New(maxStderr int, defaultTimeout time.Duration, logger zerolog.Logger) *Exec {
	return &Exec{
		MaxStderr:      maxStderr,
		DefaultTimeout: defaultTimeout,
		Env:            DefaultEnv,
		Logger:         logger,
	}
}

func (e *Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (e *Exec) Run(ctx context.Context, c Command) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = e.DefaultTimeout
	}

	path, err := exec.LookPath(c.Name)
	if err != nil {
		return nil, NotFound(c.Name)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, c.Args...)
	cmd.Env = e.environ(c.Env)
	cmd.WaitDelay = 2 * time.Second
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr
	if c.StdoutPath != "" {
		f, err := os.Create(c.StdoutPath)
		if err != nil {
			return nil, fmt.Errorf("create stdout file for %s: %w", c.Name, err)
		}
		defer f.Close()
		cmd.Stdout = f
	} else {
		cmd.Stdout = &stdout
	}

	started := time.Now()
	err = cmd.Run()
	elapsed := time.Since(started)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			msg := stderr.String()
			if strings.TrimSpace(msg) == "" {
				msg = fmt.Sprintf("timeout after %s", timeout)
			}
			e.Logger.Warn().Str("tool", c.Name).Dur("elapsed", elapsed).Msg("tool timed out")
			return nil, &Error{Tool: c.Name, Kind: KindTimeout, ExitCode: NoExitCode, Stderr: Truncate(msg, e.MaxStderr)}
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := Truncate(stderr.String(), e.MaxStderr)
			if msg == "" {
				msg = "command failed: " + c.String()
			}
			return nil, &Error{Tool: c.Name, Kind: KindFailed, ExitCode: exitErr.ExitCode(), Stderr: msg}
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, NotFound(c.Name)
		}
		return nil, &Error{Tool: c.Name, Kind: KindFailed, ExitCode: NoExitCode, Stderr: Truncate(err.Error(), e.MaxStderr)}
	}

	e.Logger.Debug().Str("tool", c.Name).Dur("elapsed", elapsed).Msg("tool finished")

	if c.StdoutPath != "" {
		return nil, nil
	}
	return stdout.Bytes(), nil
}

func (e *Exec) environ(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range e.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
