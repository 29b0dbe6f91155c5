// Package inspect measures candidate images: pixel dimensions and mean
// grayscale luma over the whole frame or an anchored half of it.
package inspect

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Region selects the part of the frame a luma measurement covers.
type Region int

const (
	Full Region = iota
	Left
	Right
	Top
	Bottom
)

// Regions is the fixed measurement order used for black-band detection.
var Regions = []Region{Full, Left, Right, Top, Bottom}

func (r Region) String() string {
	switch r {
	case Left:
		return "left"
	case Right:
		return "right"
	case Top:
		return "top"
	case Bottom:
		return "bottom"
	default:
		return "full"
	}
}

// GridSize is the side of the square grid images are downsampled to before
// measuring luma.
const GridSize = 64

// Inspector answers the questions the validator asks about a file.
type Inspector interface {
	Dimensions(ctx context.Context, path string) (width, height int, err error)
	MeanLuma(ctx context.Context, path string) (float64, error)
	RegionLuma(ctx context.Context, path string, region Region) (float64, error)
}

func parseDimensions(out []byte) (int, int, error) {
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected identify output %q", strings.TrimSpace(string(out)))
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	return w, h, nil
}

func parseLuma(out []byte) (float64, error) {
	s := strings.TrimSpace(string(out))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse luma %q: %w", s, err)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("luma %v outside [0,1]", v)
	}
	return v, nil
}
