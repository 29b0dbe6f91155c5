package validate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jDay-whyT/converterBot-backend/internal/inspect"
)

type fakeInspector struct {
	width, height int
	dimErr        error
	mean          float64
	regions       map[inspect.Region]float64

	dimCalls    int
	meanCalls   int
	regionCalls []inspect.Region
}

func (f *fakeInspector) Dimensions(context.Context, string) (int, int, error) {
	f.dimCalls++
	return f.width, f.height, f.dimErr
}

func (f *fakeInspector) MeanLuma(context.Context, string) (float64, error) {
	f.meanCalls++
	return f.mean, nil
}

func (f *fakeInspector) RegionLuma(_ context.Context, _ string, r inspect.Region) (float64, error) {
	f.regionCalls = append(f.regionCalls, r)
	return f.regions[r], nil
}

func brightRegions() map[inspect.Region]float64 {
	return map[inspect.Region]float64{
		inspect.Full: 0.4, inspect.Left: 0.4, inspect.Right: 0.4, inspect.Top: 0.4, inspect.Bottom: 0.4,
	}
}

func newValidator(f *fakeInspector) *Validator {
	return New(f, DefaultThresholds(), zerolog.Nop())
}

func TestValidatePasses(t *testing.T) {
	f := &fakeInspector{width: 4000, height: 3000, mean: 0.4, regions: brightRegions()}
	verdict := newValidator(f).Validate(context.Background(), "x.jpg")

	assert.True(t, verdict.OK())
	assert.Equal(t, ReasonNone, verdict.Reason)
	assert.Equal(t, 1, f.dimCalls)
	assert.Equal(t, 1, f.meanCalls)
	assert.Equal(t, inspect.Regions, f.regionCalls)
}

func TestValidateSmallDimensionsShortCircuit(t *testing.T) {
	f := &fakeInspector{width: 160, height: 120, mean: 0.4, regions: brightRegions()}
	verdict := newValidator(f).Validate(context.Background(), "x.jpg")

	assert.False(t, verdict.OK())
	assert.Equal(t, ReasonIdentify, verdict.Reason)
	assert.Zero(t, f.meanCalls)
	assert.Empty(t, f.regionCalls)
}

func TestValidateUnreadable(t *testing.T) {
	f := &fakeInspector{dimErr: errors.New("no decode delegate")}
	verdict := newValidator(f).Validate(context.Background(), "x.jpg")
	assert.Equal(t, ReasonIdentify, verdict.Reason)
}

func TestValidateDarkFrame(t *testing.T) {
	f := &fakeInspector{width: 4000, height: 3000, mean: 0.01, regions: brightRegions()}
	verdict := newValidator(f).Validate(context.Background(), "x.jpg")

	assert.Equal(t, ReasonMean, verdict.Reason)
	assert.True(t, verdict.DimensionsOK)
	assert.Empty(t, f.regionCalls)
}

func TestValidateBlackBandDominates(t *testing.T) {
	regions := brightRegions()
	regions[inspect.Full] = 0.20
	regions[inspect.Left] = 0.15
	regions[inspect.Right] = 0.12
	regions[inspect.Top] = 0.11
	regions[inspect.Bottom] = 0.0001
	f := &fakeInspector{width: 4000, height: 3000, mean: 0.20, regions: regions}

	verdict := newValidator(f).Validate(context.Background(), "x.jpg")

	assert.False(t, verdict.OK())
	assert.True(t, verdict.MeanLumaOK)
	assert.Equal(t, ReasonBand, verdict.Reason)
	assert.Equal(t, inspect.Bottom, verdict.WeakestRegion)
}

func TestValidateStopsAtFirstDarkRegion(t *testing.T) {
	regions := brightRegions()
	regions[inspect.Left] = 0.001
	f := &fakeInspector{width: 4000, height: 3000, mean: 0.3, regions: regions}

	verdict := newValidator(f).Validate(context.Background(), "x.jpg")
	assert.Equal(t, ReasonBand, verdict.Reason)
	assert.Equal(t, []inspect.Region{inspect.Full, inspect.Left}, f.regionCalls)
}

func TestValidateIsRepeatable(t *testing.T) {
	regions := brightRegions()
	regions[inspect.Right] = 0.005
	f := &fakeInspector{width: 4000, height: 3000, mean: 0.3, regions: regions}
	v := newValidator(f)

	first := v.Validate(context.Background(), "x.jpg")
	second := v.Validate(context.Background(), "x.jpg")
	assert.Equal(t, first, second)
}

func TestCheckReturnsFailure(t *testing.T) {
	f := &fakeInspector{width: 10, height: 10}
	err := newValidator(f).Check(context.Background(), "x.jpg")

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, ReasonIdentify, failure.Verdict.Reason)
	assert.Equal(t, "validation failed: identify_failed", err.Error())
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jpg")

	assert.ErrorContains(t, CheckFile(path, 10), "output file missing")

	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0o600))
	assert.ErrorContains(t, CheckFile(path, 10), "output file too small")
	assert.NoError(t, CheckFile(path, 4))

	assert.ErrorContains(t, CheckFile(dir, 0), "output file missing")
}
