package use_case

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jDay-whyT/converterBot-backend/internal/convert"
	"github.com/jDay-whyT/converterBot-backend/internal/entities"
	"github.com/jDay-whyT/converterBot-backend/internal/toolexec/toolexectest"
)

type converterFunc func(ctx context.Context, route convert.Route, job convert.Job) (convert.Result, error)

func (f converterFunc) Convert(ctx context.Context, route convert.Route, job convert.Job) (convert.Result, error) {
	return f(ctx, route, job)
}

var jpegBytes = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), bytes.Repeat([]byte{0x42}, 512)...)

func rawBytes(n int) []byte { return bytes.Repeat([]byte("raw!"), n/4) }

func intPtr(v int) *int { return &v }

func newUseCase(t *testing.T, conv Converter) (*useCase, string) {
	t.Helper()
	tmp := t.TempDir()
	return New(conv, Limits{MaxFileBytes: 1 << 20, MinRAWInputBytes: 1024, TempDir: tmp}, zerolog.Nop()), tmp
}

func assertNoWorkDirs(t *testing.T, tmp string) {
	t.Helper()
	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvertRejectsQualityBeforeIO(t *testing.T) {
	called := false
	uc, tmp := newUseCase(t, converterFunc(func(context.Context, convert.Route, convert.Job) (convert.Result, error) {
		called = true
		return convert.Result{}, nil
	}))

	_, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(4096),
		Filename: "photo.dng",
		Params:   entities.ConversionParams{Quality: 150},
	})

	var inErr *InputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, KindBadRequest, inErr.Kind)
	assert.Equal(t, "quality must be in range 1..100", inErr.Message)
	assert.False(t, called)
	assertNoWorkDirs(t, tmp)
}

func TestConvertRejectsMaxSide(t *testing.T) {
	uc, _ := newUseCase(t, converterFunc(nil))

	_, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(4096),
		Filename: "photo.heic",
		Params:   entities.ConversionParams{Quality: 90, MaxSide: intPtr(0)},
	})

	var inErr *InputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, "max_side must be > 0", inErr.Message)
}

func TestConvertRejectsUnsupportedExtension(t *testing.T) {
	uc, _ := newUseCase(t, converterFunc(nil))

	_, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(4096),
		Filename: "notes.txt",
		Params:   entities.ConversionParams{Quality: 92},
	})

	var inErr *InputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, KindBadRequest, inErr.Kind)
	assert.Equal(t, "unsupported file extension", inErr.Message)
}

func TestConvertRejectsLargeUpload(t *testing.T) {
	uc, _ := newUseCase(t, converterFunc(nil))

	_, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(2 << 20),
		Filename: "photo.heic",
		Params:   entities.ConversionParams{Quality: 92},
	})

	var inErr *InputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, KindTooLarge, inErr.Kind)
	assert.Equal(t, "file too large: max 1MB", inErr.Message)
}

func TestConvertRejectsTinyRAW(t *testing.T) {
	uc, tmp := newUseCase(t, converterFunc(nil))

	_, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(512),
		Filename: "photo.nef",
		Params:   entities.ConversionParams{Quality: 92},
	})

	var inErr *InputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, KindUnprocessable, inErr.Kind)
	assert.Equal(t, "RAW input too small: 512 bytes (min 1024)", inErr.Message)
	assertNoWorkDirs(t, tmp)
}

func TestConvertSuccessCleansUp(t *testing.T) {
	var seen convert.Job
	uc, tmp := newUseCase(t, converterFunc(func(_ context.Context, route convert.Route, job convert.Job) (convert.Result, error) {
		seen = job
		assert.Equal(t, convert.RouteRAW, route)
		assert.FileExists(t, job.Input)
		return convert.Result{Route: route, Strategy: "exiftool"}, os.WriteFile(job.Output, jpegBytes, 0o600)
	}))

	out, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(4096),
		Filename: "IMG_0001.CR2",
		Params:   entities.ConversionParams{Quality: 92, MaxSide: intPtr(2000)},
	})

	require.NoError(t, err)
	assert.Equal(t, jpegBytes, out.JPEG)
	assert.Equal(t, "exiftool", out.Strategy)
	assert.Equal(t, 2000, seen.MaxSide)
	assert.Equal(t, 92, seen.Quality)
	assert.Equal(t, ".cr2", seen.Input[len(seen.Input)-4:])
	assert.Positive(t, out.Elapsed)
	assertNoWorkDirs(t, tmp)
}

func TestConvertFailureCleansUp(t *testing.T) {
	uc, tmp := newUseCase(t, converterFunc(func(_ context.Context, route convert.Route, job convert.Job) (convert.Result, error) {
		_ = os.WriteFile(job.Output, []byte("partial"), 0o600)
		diag := convert.Diagnostic{{Strategy: "magick", Stderr: "bad"}}
		return convert.Result{Route: route, Failures: diag}, &convert.Error{Route: route, Diagnostic: diag}
	}))

	out, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(4096),
		Filename: "scan.tiff",
		Params:   entities.ConversionParams{Quality: 92},
	})

	var convErr *convert.Error
	require.True(t, errors.As(err, &convErr))
	assert.Nil(t, out.JPEG)
	assert.Len(t, out.Failures, 1)
	assertNoWorkDirs(t, tmp)
}

func TestConvertContentOverridesSuffix(t *testing.T) {
	var gotRoute convert.Route
	var gotInput string
	uc, _ := newUseCase(t, converterFunc(func(_ context.Context, route convert.Route, job convert.Job) (convert.Result, error) {
		gotRoute, gotInput = route, job.Input
		return convert.Result{Route: route}, os.WriteFile(job.Output, jpegBytes, 0o600)
	}))

	_, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     jpegBytes,
		Filename: "fake.dng",
		Params:   entities.ConversionParams{Quality: 92},
	})

	require.NoError(t, err)
	assert.Equal(t, convert.RouteDirect, gotRoute)
	assert.Equal(t, "input.jpg", gotInput[len(gotInput)-len("input.jpg"):])
}

func TestConvertSuffixlessUploadUsesDetectedType(t *testing.T) {
	var gotInput string
	uc, _ := newUseCase(t, converterFunc(func(_ context.Context, route convert.Route, job convert.Job) (convert.Result, error) {
		gotInput = job.Input
		return convert.Result{Route: route}, os.WriteFile(job.Output, jpegBytes, 0o600)
	}))

	_, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:        jpegBytes,
		Filename:    "upload",
		ContentType: "application/octet-stream",
		Params:      entities.ConversionParams{Quality: 92},
	})

	require.NoError(t, err)
	assert.Equal(t, ".jpg", gotInput[len(gotInput)-4:])
}

func TestConvertAllRAWStrategiesFail(t *testing.T) {
	runner := toolexectest.NewRunner().
		Handle("exiftool", toolexectest.Fail(1, "no preview")).
		Handle("darktable-cli", toolexectest.Fail(2, "crash")).
		Handle("dcraw_emu", toolexectest.Fail(3, "unsupported")).
		Handle("dcraw", toolexectest.Fail(4, "unsupported"))
	tb := &convert.Toolbox{
		Runner:         runner,
		Timeouts:       convert.Timeouts{Default: time.Second, Magick: time.Second, Decoder: time.Second, Renderer: time.Second},
		MinOutputBytes: 1,
		MaxStderr:      4096,
		Logger:         zerolog.Nop(),
	}
	uc, tmp := newUseCase(t, convert.New(tb, nil))

	out, err := uc.Convert(context.Background(), entities.ConversionRequest{
		Data:     rawBytes(4096),
		Filename: "photo.dng",
		Params:   entities.ConversionParams{Quality: 92},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, convert.ErrExhausted))
	require.Len(t, out.Failures, 4)
	for i, name := range []string{"exiftool", "darktable-cli", "dcraw_emu", "dcraw"} {
		assert.Equal(t, name, out.Failures[i].Strategy)
	}
	assert.Empty(t, runner.CallsTo("magick"))
	assertNoWorkDirs(t, tmp)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name, file, ct string
		route          convert.Route
		suffix         string
		wantErr        bool
	}{
		{name: "raw suffix", file: "a.NEF", route: convert.RouteRAW, suffix: ".nef"},
		{name: "heif suffix", file: "a.heic", route: convert.RouteHEIF, suffix: ".heic"},
		{name: "direct suffix", file: "a.tif", route: convert.RouteDirect, suffix: ".tif"},
		{name: "raw mime without suffix", file: "blob", ct: "image/x-sony-arw", route: convert.RouteRAW, suffix: ".dng"},
		{name: "raw mime prefix", file: "blob", ct: "image/x-foo", route: convert.RouteRAW, suffix: ".dng"},
		{name: "suffix wins over mime", file: "a.webp", ct: "image/x-adobe-dng", route: convert.RouteDirect, suffix: ".webp"},
		{name: "unsupported", file: "a.png", wantErr: true},
		{name: "unknown blob", file: "blob", ct: "application/octet-stream", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.file, tt.ct)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.route, got.Route)
			assert.Equal(t, tt.suffix, got.Suffix)
		})
	}
}

func TestSniff(t *testing.T) {
	f, ok := Sniff(jpegBytes)
	require.True(t, ok)
	assert.Equal(t, Format{Suffix: ".jpg", Route: convert.RouteDirect}, f)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR")
	f, ok = Sniff(png)
	require.True(t, ok)
	assert.Equal(t, ".png", f.Suffix)

	_, ok = Sniff(rawBytes(64))
	assert.False(t, ok)
}
