package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
	"github.com/jDay-whyT/converterBot-backend/internal/toolexec/toolexectest"
	"github.com/jDay-whyT/converterBot-backend/internal/validate"
)

type checkerFunc func(ctx context.Context, path string) error

func (f checkerFunc) Check(ctx context.Context, path string) error { return f(ctx, path) }

func passAll() Checker {
	return checkerFunc(func(context.Context, string) error { return nil })
}

var fakeJPEG = []byte("\xff\xd8\xff\xe0 fake jpeg payload \xff\xd9")

// writeLastArg emulates tools that write their result to the last argument.
func writeLastArg(cmd toolexec.Command) ([]byte, error) {
	return nil, os.WriteFile(cmd.Args[len(cmd.Args)-1], fakeJPEG, 0o600)
}

func newToolbox(runner toolexec.Runner, checker Checker) *Toolbox {
	return &Toolbox{
		Runner:         runner,
		Checker:        checker,
		Timeouts:       Timeouts{Default: time.Second, Magick: time.Second, Decoder: time.Second, Renderer: time.Second},
		MinOutputBytes: 1,
		MaxStderr:      256,
		Logger:         zerolog.Nop(),
	}
}

func newJob(t *testing.T, inputName string) Job {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, inputName)
	require.NoError(t, os.WriteFile(input, []byte("raw sensor bytes"), 0o600))
	return Job{Dir: dir, Input: input, Output: filepath.Join(dir, "output.jpg"), Quality: 92}
}

func failingRunner() *toolexectest.Runner {
	return toolexectest.NewRunner().
		Handle("exiftool", toolexectest.Fail(1, "no preview")).
		Handle("darktable-cli", toolexectest.Fail(2, "darktable crashed")).
		Handle("dcraw_emu", toolexectest.Fail(3, "unsupported file format")).
		Handle("dcraw", toolexectest.Timeout("timeout after 120s")).
		Handle("magick", writeLastArg)
}

func rejectReason(reason validate.FailReason) error {
	return &validate.Failure{Verdict: validate.Verdict{Reason: reason}}
}
