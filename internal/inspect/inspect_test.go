package inspect

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
	"github.com/jDay-whyT/converterBot-backend/internal/toolexec/toolexectest"
)

// writeHalfBlack writes a w x h PNG whose right half is black and left half
// is mid gray.
func writeHalfBlack(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{A: 255}
			if x < w/2 {
				c = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "half.png")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestNativeDimensions(t *testing.T) {
	path := writeHalfBlack(t, 320, 240)
	w, h, err := Native{}.Dimensions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
}

func TestNativeRegionLuma(t *testing.T) {
	path := writeHalfBlack(t, 400, 300)
	ctx := context.Background()
	n := Native{}

	full, err := n.MeanLuma(ctx, path)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, full, 0.03)

	left, err := n.RegionLuma(ctx, path, Left)
	require.NoError(t, err)
	assert.InDelta(t, 128.0/255.0, left, 0.02)

	right, err := n.RegionLuma(ctx, path, Right)
	require.NoError(t, err)
	assert.Less(t, right, 0.01)

	top, err := n.RegionLuma(ctx, path, Top)
	require.NoError(t, err)
	assert.InDelta(t, full, top, 0.02)
}

func TestNativeUnreadable(t *testing.T) {
	_, _, err := Native{}.Dimensions(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}

func TestMagickDimensions(t *testing.T) {
	runner := toolexectest.NewRunner().Handle("magick", toolexectest.Output("1024 768"))
	w, h, err := NewMagick(runner, 0).Dimensions(context.Background(), "/tmp/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "identify", calls[0].Args[0])
}

func TestMagickRegionCrop(t *testing.T) {
	runner := toolexectest.NewRunner().Handle("magick", toolexectest.Output("0.4321\n"))
	m := NewMagick(runner, 0)

	v, err := m.RegionLuma(context.Background(), "/tmp/x.jpg", Right)
	require.NoError(t, err)
	assert.InDelta(t, 0.4321, v, 1e-9)

	call := runner.Calls()[0]
	assert.True(t, toolexectest.HasArg(call, "East"))
	assert.True(t, toolexectest.HasArg(call, "50%x100%+0+0"))
	assert.True(t, toolexectest.HasArg(call, "64x64!"))

	_, err = m.MeanLuma(context.Background(), "/tmp/x.jpg")
	require.NoError(t, err)
	assert.False(t, toolexectest.HasArg(runner.Calls()[1], "-crop"))
}

func TestMagickBadOutput(t *testing.T) {
	runner := toolexectest.NewRunner().Handle("magick", toolexectest.Output("garbage"))
	_, _, err := NewMagick(runner, 0).Dimensions(context.Background(), "/tmp/x.jpg")
	assert.Error(t, err)

	_, err = NewMagick(runner, 0).MeanLuma(context.Background(), "/tmp/x.jpg")
	assert.Error(t, err)
}

func TestMagickToolError(t *testing.T) {
	runner := toolexectest.NewRunner().Missing("magick")
	_, _, err := NewMagick(runner, 0).Dimensions(context.Background(), "/tmp/x.jpg")
	assert.ErrorIs(t, err, toolexec.ErrNotFound)
}
