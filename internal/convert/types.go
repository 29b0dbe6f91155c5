package convert

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
)

// Route is the conversion path an upload is dispatched to.
type Route int

const (
	RouteDirect Route = iota
	RouteHEIF
	RouteRAW
)

func (r Route) String() string {
	switch r {
	case RouteHEIF:
		return "heif"
	case RouteRAW:
		return "raw"
	default:
		return "direct"
	}
}

// Job is everything a strategy needs for one request. Dir is private to the
// request and removed by the caller afterwards.
type Job struct {
	Dir     string
	Input   string
	Output  string
	Quality int
	MaxSide int
}

// StageError records one failed attempt. It is never modified once appended
// to a Diagnostic.
type StageError struct {
	Strategy string
	ExitCode *int
	Stderr   string
	TimedOut bool
}

func (e *StageError) Error() string { return e.String() }

func (e StageError) String() string {
	rc := "na"
	if e.ExitCode != nil {
		rc = strconv.Itoa(*e.ExitCode)
	}
	timeout := 0
	if e.TimedOut {
		timeout = 1
	}
	return fmt.Sprintf("tool=%s rc=%s timeout=%d stderr=%s", e.Strategy, rc, timeout, e.Stderr)
}

// Diagnostic is the ordered list of failed attempts for one request.
type Diagnostic []StageError

func (d Diagnostic) String() string {
	parts := make([]string, len(d))
	for i, e := range d {
		parts[i] = e.String()
	}
	return strings.Join(parts, " | ")
}

// ErrExhausted matches an Error raised after every strategy of a chain failed.
var ErrExhausted = errors.New("conversion exhausted")

// Error is returned when a route produced no acceptable JPEG.
type Error struct {
	Route      Route
	Reason     string
	Diagnostic Diagnostic
	Exhausted  bool
}

func (e *Error) Error() string {
	prefix := "conversion failed"
	if e.Route == RouteRAW {
		prefix = "RAW conversion failed"
	}
	switch {
	case e.Reason != "" && len(e.Diagnostic) > 0:
		return fmt.Sprintf("%s: %s; %s", prefix, e.Reason, e.Diagnostic)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", prefix, e.Reason)
	default:
		return fmt.Sprintf("%s; %s", prefix, e.Diagnostic)
	}
}

func (e *Error) Is(target error) bool {
	return target == ErrExhausted && e.Exhausted
}

// stageError classifies err as the StageError for the named strategy.
func stageError(name string, err error, maxStderr int) StageError {
	var se *StageError
	if errors.As(err, &se) {
		out := *se
		if out.Strategy == "" {
			out.Strategy = name
		}
		out.Stderr = toolexec.Truncate(out.Stderr, maxStderr)
		return out
	}

	out := StageError{Strategy: name}
	var toolErr *toolexec.Error
	if errors.As(err, &toolErr) {
		if toolErr.HasExitCode() {
			rc := toolErr.ExitCode
			out.ExitCode = &rc
		}
		out.TimedOut = toolErr.Kind == toolexec.KindTimeout
		out.Stderr = toolexec.Truncate(toolErr.Stderr, maxStderr)
		return out
	}

	out.Stderr = toolexec.Truncate(err.Error(), maxStderr)
	return out
}
