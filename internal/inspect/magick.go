package inspect

import (
	"context"
	"fmt"
	"time"

	"github.com/jDay-whyT/converterBot-backend/internal/toolexec"
)

// Magick measures images by shelling out to ImageMagick.
type Magick struct {
	runner  toolexec.Runner
	timeout time.Duration
}

func NewMagick(runner toolexec.Runner, timeout time.Duration) *Magick {
	return &Magick{runner: runner, timeout: timeout}
}

func (m *Magick) Dimensions(ctx context.Context, path string) (int, int, error) {
	out, err := m.runner.Run(ctx, toolexec.Command{
		Name:    "magick",
		Args:    []string{"identify", "-format", "%w %h", path + "[0]"},
		Timeout: m.timeout,
	})
	if err != nil {
		return 0, 0, err
	}
	return parseDimensions(out)
}

func (m *Magick) MeanLuma(ctx context.Context, path string) (float64, error) {
	return m.measure(ctx, path, nil)
}

func (m *Magick) RegionLuma(ctx context.Context, path string, region Region) (float64, error) {
	return m.measure(ctx, path, cropArgs(region))
}

func (m *Magick) measure(ctx context.Context, path string, crop []string) (float64, error) {
	args := []string{"-limit", "thread", "1", path + "[0]"}
	args = append(args, crop...)
	args = append(args,
		"-resize", fmt.Sprintf("%dx%d!", GridSize, GridSize),
		"-colorspace", "Gray",
		"-format", "%[fx:mean]",
		"info:",
	)
	out, err := m.runner.Run(ctx, toolexec.Command{Name: "magick", Args: args, Timeout: m.timeout})
	if err != nil {
		return 0, err
	}
	return parseLuma(out)
}

func cropArgs(region Region) []string {
	switch region {
	case Left:
		return []string{"-gravity", "West", "-crop", "50%x100%+0+0", "+repage"}
	case Right:
		return []string{"-gravity", "East", "-crop", "50%x100%+0+0", "+repage"}
	case Top:
		return []string{"-gravity", "North", "-crop", "100%x50%+0+0", "+repage"}
	case Bottom:
		return []string{"-gravity", "South", "-crop", "100%x50%+0+0", "+repage"}
	default:
		return nil
	}
}
