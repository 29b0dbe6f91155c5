// Package toolexectest provides a scripted toolexec.Runner for tests.
package toolexectest

import (
	"context"
	"sync"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
)

// Handler answers a single invocation of a tool.
type Handler func(cmd toolexec.Command) ([]byte, error)

// Runner dispatches commands to per-tool handlers and records every call.
// Tools listed in Missing fail LookPath and Run with a not-found error.
type Runner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	missing  map[string]bool
	calls    []toolexec.Command
}

func NewRunner() *Runner {
	return &Runner{handlers: map[string]Handler{}, missing: map[string]bool{}}
}

// Handle registers the handler for a binary name.
func (r *Runner) Handle(name string, h Handler) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return r
}

// Missing marks binaries as not installed.
func (r *Runner) Missing(names ...string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.missing[n] = true
	}
	return r
}

func (r *Runner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missing[name] {
		return "", toolexec.NotFound(name)
	}
	return "/usr/bin/" + name, nil
}

func (r *Runner) Run(_ context.Context, cmd toolexec.Command) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	missing := r.missing[cmd.Name]
	h := r.handlers[cmd.Name]
	r.mu.Unlock()

	if missing {
		return nil, toolexec.NotFound(cmd.Name)
	}
	if h == nil {
		return nil, &toolexec.Error{Tool: cmd.Name, Kind: toolexec.KindFailed, ExitCode: 1, Stderr: "no handler scripted"}
	}
	return h(cmd)
}

// Calls returns every command run so far.
func (r *Runner) Calls() []toolexec.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]toolexec.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the commands run for one binary.
func (r *Runner) CallsTo(name string) []toolexec.Command {
	var out []toolexec.Command
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Fail returns a handler that always exits with rc and stderr.
func Fail(rc int, stderr string) Handler {
	return func(cmd toolexec.Command) ([]byte, error) {
		return nil, &toolexec.Error{Tool: cmd.Name, Kind: toolexec.KindFailed, ExitCode: rc, Stderr: stderr}
	}
}

// Timeout returns a handler that always times out.
func Timeout(stderr string) Handler {
	return func(cmd toolexec.Command) ([]byte, error) {
		return nil, &toolexec.Error{Tool: cmd.Name, Kind: toolexec.KindTimeout, ExitCode: toolexec.NoExitCode, Stderr: stderr}
	}
}

// Output returns a handler that always prints out.
func Output(out string) Handler {
	return func(toolexec.Command) ([]byte, error) {
		return []byte(out), nil
	}
}

// HasArg reports whether cmd carries arg verbatim.
func HasArg(cmd toolexec.Command, arg string) bool {
	for _, a := range cmd.Args {
		if a == arg {
			return true
		}
	}
	return false
}
