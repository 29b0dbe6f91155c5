// Package validate decides whether a candidate JPEG is good enough to hand
// back to a client.
package validate

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/inspect"
)

// FailReason names the first quality gate a candidate failed.
type FailReason string

const (
	ReasonNone     FailReason = ""
	ReasonIdentify FailReason = "identify_failed"
	ReasonMean     FailReason = "mean_failed"
	ReasonBand     FailReason = "band_failed"
)

// Thresholds are the numeric quality gates.
type Thresholds struct {
	MinDimension  int
	MinMeanLuma   float64
	MinRegionLuma float64
}

// DefaultThresholds mirror the converter's production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{MinDimension: 200, MinMeanLuma: 0.02, MinRegionLuma: 0.015}
}

// Verdict is computed fresh for every candidate.
type Verdict struct {
	DimensionsOK  bool
	MeanLumaOK    bool
	RegionLumaOK  bool
	Reason        FailReason
	Width, Height int
	MeanLuma      float64
	WeakestRegion inspect.Region
	WeakestLuma   float64
}

func (v Verdict) OK() bool {
	return v.DimensionsOK && v.MeanLumaOK && v.RegionLumaOK
}

// Failure is the error form of a failed verdict.
type Failure struct {
	Path    string
	Verdict Verdict
}

func (f *Failure) Error() string {
	return fmt.Sprintf("validation failed: %s", f.Verdict.Reason)
}

// Validator runs the dimension, mean luma and region luma gates in that
// order and stops at the first failure.
type Validator struct {
	inspector inspect.Inspector
	limits    Thresholds
	logger    zerolog.Logger
}

func New(inspector inspect.Inspector, limits Thresholds, logger zerolog.Logger) *Validator {
	return &Validator{inspector: inspector, limits: limits, logger: logger}
}

// Validate returns the verdict for the image at path.
func (v *Validator) Validate(ctx context.Context, path string) Verdict {
	var verdict Verdict

	w, h, err := v.inspector.Dimensions(ctx, path)
	if err != nil || w < v.limits.MinDimension || h < v.limits.MinDimension {
		verdict.Reason = ReasonIdentify
		verdict.Width, verdict.Height = w, h
		v.logger.Debug().Err(err).Str("path", path).Int("width", w).Int("height", h).Msg("dimension gate failed")
		return verdict
	}
	verdict.DimensionsOK = true
	verdict.Width, verdict.Height = w, h

	mean, err := v.inspector.MeanLuma(ctx, path)
	if err != nil || mean < v.limits.MinMeanLuma {
		verdict.Reason = ReasonMean
		verdict.MeanLuma = mean
		v.logger.Debug().Err(err).Str("path", path).Float64("mean", mean).Msg("mean luma gate failed")
		return verdict
	}
	verdict.MeanLumaOK = true
	verdict.MeanLuma = mean

	verdict.WeakestLuma = 1
	for _, region := range inspect.Regions {
		luma, err := v.inspector.RegionLuma(ctx, path, region)
		if err != nil {
			luma = 0
		}
		if luma < verdict.WeakestLuma {
			verdict.WeakestLuma = luma
			verdict.WeakestRegion = region
		}
		if err != nil || luma < v.limits.MinRegionLuma {
			verdict.Reason = ReasonBand
			v.logger.Debug().Err(err).Str("path", path).Stringer("region", region).Float64("luma", luma).Msg("region luma gate failed")
			return verdict
		}
	}
	verdict.RegionLumaOK = true

	return verdict
}

// Check wraps Validate, returning a *Failure for a rejected candidate.
func (v *Validator) Check(ctx context.Context, path string) error {
	verdict := v.Validate(ctx, path)
	if verdict.OK() {
		return nil
	}
	return &Failure{Path: path, Verdict: verdict}
}

// CheckFile verifies the candidate exists, is a regular file and holds at
// least minBytes bytes.
func CheckFile(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file missing: %s", path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("output file missing: %s", path)
	}
	if info.Size() < minBytes {
		return fmt.Errorf("output file too small: %s (%d bytes)", path, info.Size())
	}
	return nil
}
