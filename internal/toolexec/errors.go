package toolexec

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why an external tool invocation failed.
type Kind int

const (
	KindFailed Kind = iota
	KindNotFound
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

var (
	ErrNotFound = errors.New("tool not found")
	ErrFailed   = errors.New("tool failed")
	ErrTimeout  = errors.New("tool timed out")
)

// NoExitCode is reported when the process never produced an exit status.
const NoExitCode = -1

// Error describes a failed tool invocation. ExitCode is NoExitCode for
// not-found and timeout failures.
type Error struct {
	Tool     string
	Kind     Kind
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s: command not found", e.Tool)
	case KindTimeout:
		return fmt.Sprintf("%s timeout: %s", e.Tool, e.Stderr)
	default:
		return fmt.Sprintf("%s failed (rc=%d): %s", e.Tool, e.ExitCode, e.Stderr)
	}
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrFailed:
		return e.Kind == KindFailed
	}
	return false
}

// HasExitCode reports whether the process exited on its own.
func (e *Error) HasExitCode() bool { return e.ExitCode != NoExitCode }

// NotFound builds the error recorded for a binary that is not installed.
func NotFound(tool string) *Error {
	return &Error{Tool: tool, Kind: KindNotFound, ExitCode: NoExitCode, Stderr: "command not found"}
}

// Truncate trims s and bounds it to limit characters, noting how much was cut.
func Truncate(s string, limit int) string {
	cleaned := strings.TrimSpace(s)
	if limit <= 0 {
		return cleaned
	}
	r := []rune(cleaned)
	if len(r) <= limit {
		return cleaned
	}
	return fmt.Sprintf("%s...[truncated %d chars]", string(r[:limit]), len(r)-limit)
}
