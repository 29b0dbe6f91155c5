package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
	"github.com/jDay-whyT/converterBot-backend/internal/toolexec/toolexectest"
	"github.com/jDay-whyT/converterBot-backend/internal/validate"
)

func stageNames(diag Diagnostic) []string {
	names := make([]string, len(diag))
	for i, d := range diag {
		names[i] = d.Strategy
	}
	return names
}

func TestRAWChainAllFail(t *testing.T) {
	runner := failingRunner()
	job := newJob(t, "input.dng")

	res, err := New(newToolbox(runner, passAll()), nil).Convert(context.Background(), RouteRAW, job)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, []string{"exiftool", "darktable-cli", "dcraw_emu", "dcraw"}, stageNames(res.Failures))

	dcraw := res.Failures[3]
	assert.True(t, dcraw.TimedOut)
	assert.Nil(t, dcraw.ExitCode)

	emu := res.Failures[2]
	require.NotNil(t, emu.ExitCode)
	assert.Equal(t, 3, *emu.ExitCode)

	assert.Contains(t, err.Error(), "tool=darktable-cli rc=2 timeout=0 stderr=darktable crashed")
	assert.NoFileExists(t, job.Output)
}

func TestRAWChainPreviewWins(t *testing.T) {
	runner := failingRunner().Handle("exiftool", toolexectest.Output(string(fakeJPEG)))
	job := newJob(t, "input.dng")
	job.MaxSide = 2000

	res, err := New(newToolbox(runner, passAll()), []string{"PreviewImage"}).Convert(context.Background(), RouteRAW, job)

	require.NoError(t, err)
	assert.Equal(t, "exiftool", res.Strategy)
	assert.Empty(t, res.Failures)
	assert.FileExists(t, job.Output)
	assert.Empty(t, runner.CallsTo("darktable-cli"))

	magick := runner.CallsTo("magick")
	require.Len(t, magick, 1)
	assert.True(t, toolexectest.HasArg(magick[0], "2000x2000>"))
	assert.True(t, toolexectest.HasArg(magick[0], "92"))
	assert.True(t, toolexectest.HasArg(magick[0], "-strip"))
}

func TestRAWChainPreviewFallsThroughTags(t *testing.T) {
	runner := failingRunner().Handle("exiftool", func(cmd toolexec.Command) ([]byte, error) {
		if toolexectest.HasArg(cmd, "-JpgFromRaw") {
			return nil, nil
		}
		return fakeJPEG, nil
	})
	job := newJob(t, "input.dng")

	res, err := New(newToolbox(runner, passAll()), []string{"JpgFromRaw", "PreviewImage"}).Convert(context.Background(), RouteRAW, job)

	require.NoError(t, err)
	assert.Equal(t, "exiftool", res.Strategy)
	assert.Len(t, runner.CallsTo("exiftool"), 2)
}

func TestRAWChainValidationFailureAdvances(t *testing.T) {
	runner := failingRunner().
		Handle("exiftool", toolexectest.Output(string(fakeJPEG))).
		Handle("darktable-cli", writeLastArgAt(1))

	checks := 0
	checker := checkerFunc(func(context.Context, string) error {
		checks++
		if checks == 1 {
			return rejectReason(validate.ReasonBand)
		}
		return nil
	})
	job := newJob(t, "input.dng")

	res, err := New(newToolbox(runner, checker), []string{"PreviewImage"}).Convert(context.Background(), RouteRAW, job)

	require.NoError(t, err)
	assert.Equal(t, "darktable-cli", res.Strategy)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "tool=exiftool rc=na timeout=0 stderr=PreviewImage: validation failed: band_failed", res.Failures[0].String())
}

func TestRAWChainMissingRendererNotInvoked(t *testing.T) {
	runner := failingRunner().Missing("darktable-cli")
	job := newJob(t, "input.dng")

	res, err := New(newToolbox(runner, passAll()), nil).Convert(context.Background(), RouteRAW, job)

	require.Error(t, err)
	assert.Empty(t, runner.CallsTo("darktable-cli"))
	assert.Equal(t, "tool=darktable-cli rc=na timeout=0 stderr=command not found", res.Failures[1].String())
}

func TestRAWChainPrimaryDecoderDiscoversOutput(t *testing.T) {
	runner := failingRunner().Handle("dcraw_emu", func(cmd toolexec.Command) ([]byte, error) {
		input := cmd.Args[len(cmd.Args)-1]
		return nil, os.WriteFile(input+".tiff", fakeJPEG, 0o600)
	})
	job := newJob(t, "input.nef")

	res, err := New(newToolbox(runner, passAll()), nil).Convert(context.Background(), RouteRAW, job)

	require.NoError(t, err)
	assert.Equal(t, "dcraw_emu", res.Strategy)
	assert.Equal(t, []string{"exiftool", "darktable-cli"}, stageNames(res.Failures))

	call := runner.CallsTo("dcraw_emu")[0]
	assert.Equal(t, []string{"-T", "-w", "-q", "3", "-H", "0", job.Input}, call.Args)

	magick := runner.CallsTo("magick")
	require.Len(t, magick, 1)
	assert.True(t, toolexectest.HasArg(magick[0], job.Input+".tiff"))
}

func TestRAWChainSecondaryDecoderWritesExplicitFile(t *testing.T) {
	runner := failingRunner().Handle("dcraw", func(cmd toolexec.Command) ([]byte, error) {
		return nil, os.WriteFile(cmd.StdoutPath, fakeJPEG, 0o600)
	})
	job := newJob(t, "input.cr2")

	res, err := New(newToolbox(runner, passAll()), nil).Convert(context.Background(), RouteRAW, job)

	require.NoError(t, err)
	assert.Equal(t, "dcraw", res.Strategy)
	assert.Len(t, res.Failures, 3)

	call := runner.CallsTo("dcraw")[0]
	assert.Equal(t, "-c", call.Args[0])
	assert.Equal(t, filepath.Join(job.Dir, "input.dcraw.tiff"), call.StdoutPath)
}

func TestRAWChainDecoderOutputMissing(t *testing.T) {
	runner := failingRunner().Handle("dcraw_emu", toolexectest.Output(""))
	job := newJob(t, "input.arw")

	res, err := New(newToolbox(runner, passAll()), nil).Convert(context.Background(), RouteRAW, job)

	require.Error(t, err)
	assert.Contains(t, res.Failures[2].Stderr, "decoded RAW output not found for input.arw")
}

func TestFindDecodedPrefersNewest(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.dng")
	require.NoError(t, os.WriteFile(input, []byte("raw"), 0o600))

	old := filepath.Join(dir, "input.tiff")
	newer := filepath.Join(dir, "input.dng.ppm")
	ignored := filepath.Join(dir, "other.tiff")
	for _, p := range []string{old, newer, ignored} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))
	require.NoError(t, os.Chtimes(ignored, now.Add(time.Hour), now.Add(time.Hour)))

	got, err := FindDecoded(input)
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

// writeLastArgAt writes the fake JPEG to the argument at index i.
func writeLastArgAt(i int) toolexectest.Handler {
	return func(cmd toolexec.Command) ([]byte, error) {
		return nil, os.WriteFile(cmd.Args[i], fakeJPEG, 0o600)
	}
}
