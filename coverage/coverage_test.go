package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/basui01/reelscope/types"
)

func TestAccumulator_FullCoverageYieldsOKGate(t *testing.T) {
	acc := NewAccumulator(512, 256, 8, 1, 100)
	acc.RecordShot(types.Shot{FrameCount: 50}, false)
	acc.RecordShot(types.Shot{FrameCount: 50}, false)
	acc.RecordAudio(true, true, true)

	cov := acc.Coverage()
	assert.Equal(t, 100.0, cov.Temporal.FramesAnalyzedPct)
	assert.Equal(t, 100.0, cov.Spatial.PixelsCoveredPct)
	assert.Equal(t, 100.0, cov.Audio.LUFSTracePct)
	assert.Equal(t, 100.0, cov.Audio.STOIPct)

	state, reasons := EnforceGates(cov, DefaultThresholds(), false)
	assert.Equal(t, types.StatusOK, state)
	assert.Empty(t, reasons)
}

func TestAccumulator_SilentVideoSTOIDefaultsToFullByConvention(t *testing.T) {
	acc := NewAccumulator(512, 256, 8, 1, 100)
	acc.RecordShot(types.Shot{FrameCount: 100}, false)
	acc.RecordAudio(false, true, false)

	cov := acc.Coverage()
	assert.Equal(t, 100.0, cov.Audio.STOIPct)
}

func TestAccumulator_TinyVideoSmallerThanTileIsStill100PctSpatial(t *testing.T) {
	acc := NewAccumulator(512, 256, 8, 1, 10)
	acc.RecordShot(types.Shot{FrameCount: 10}, false)
	cov := acc.Coverage()
	assert.Equal(t, 100.0, cov.Spatial.PixelsCoveredPct)
}

func TestEnforceGates_LowTemporalCoverageDegrades(t *testing.T) {
	acc := NewAccumulator(512, 256, 8, 1, 100)
	acc.RecordShot(types.Shot{FrameCount: 50}, false)
	cov := acc.Coverage()

	state, reasons := EnforceGates(cov, DefaultThresholds(), false)
	assert.Equal(t, types.StatusDegraded, state)
	assert.Contains(t, reasons, ReasonLowTemporalCoverage)
}

func TestEnforceGates_MandatorySkippedForcesDegradedEvenWithFullCoverage(t *testing.T) {
	acc := NewAccumulator(512, 256, 8, 1, 100)
	acc.RecordShot(types.Shot{FrameCount: 100}, false)
	acc.RecordAudio(true, true, true)
	cov := acc.Coverage()

	state, reasons := EnforceGates(cov, DefaultThresholds(), true)
	assert.Equal(t, types.StatusDegraded, state)
	assert.Empty(t, reasons)
}

func TestEnforceGates_OversizedMinDetectablePxDegrades(t *testing.T) {
	acc := NewAccumulator(512, 256, 16, 1, 100)
	acc.RecordShot(types.Shot{FrameCount: 100}, false)
	acc.RecordAudio(true, true, true)
	cov := acc.Coverage()

	state, reasons := EnforceGates(cov, DefaultThresholds(), false)
	assert.Equal(t, types.StatusDegraded, state)
	assert.Contains(t, reasons, ReasonMinDetectablePxTooLarge)
}
