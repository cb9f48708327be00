// Package coverage accumulates spatial/temporal/audio coverage from
// actually-executed detector output and evaluates the quality gate that
// decides a bundle's final status (spec.md §4.6, invariant 5 and 6).
package coverage

import (
	"math"

	"github.com/basui01/reelscope/types"
)

// Thresholds mirrors the `coverage_thresholds` configuration surface
// (spec.md §6). Defaults match spec.md §4.6.
type Thresholds struct {
	FramesAnalyzedPct float64
	LUFSTracePct      float64
	STOIPct           float64
	MinDetectablePx   int
}

// DefaultThresholds returns spec.md §4.6's default gate: 99% frames
// analyzed, 100% loudness trace, 90% STOI over speech, 8x8 min
// detectable px.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FramesAnalyzedPct: 99.0,
		LUFSTracePct:      100.0,
		STOIPct:           90.0,
		MinDetectablePx:   8,
	}
}

// Gate reason strings, grounded on enforce_gates() in the original
// implementation's utils/coverage.py.
const (
	ReasonLowTemporalCoverage     = "low_temporal_coverage"
	ReasonMinDetectablePxTooLarge = "min_detectable_px_too_large"
	ReasonLUFSTraceMissing        = "lufs_trace_missing"
	ReasonLowSTOICoverage         = "low_stoi_coverage"
)

// Accumulator builds a job's Coverage value incrementally as shots
// finish, so coverage is always derived from executed detector output,
// never forged ahead of it (spec.md invariant 5).
type Accumulator struct {
	tileSize, stride, minDetectablePx int
	frameStride                       int
	totalFrames                       int

	framesAnalyzed int
	srUsed         bool

	speechSegments    int
	speechWithSTOI    int
	audioFramesTotal  int
	audioFramesTraced int
}

// NewAccumulator seeds an accumulator with the job's static detection
// configuration and the video's total frame count.
func NewAccumulator(tileSize, stride, minDetectablePx, frameStride, totalFrames int) *Accumulator {
	return &Accumulator{
		tileSize:        tileSize,
		stride:          stride,
		minDetectablePx: minDetectablePx,
		frameStride:     frameStride,
		totalFrames:     totalFrames,
	}
}

// RecordShot folds one shot's executed detector results into the running
// coverage totals. srUsed reports whether super-res actually triggered
// for this shot (not merely whether it was eligible).
func (a *Accumulator) RecordShot(shot types.Shot, srUsed bool) {
	a.framesAnalyzed += shot.FrameCount
	if srUsed {
		a.srUsed = true
	}
}

// RecordAudio folds one shot's audio measurement into the running audio
// coverage totals. hasSpeech/stoiComputed come from the audio detector's
// result payload; a silent shot with no speech segments counts as fully
// traced by convention (spec.md §4.6 "silent video ... STOI coverage
// reported over zero speech segments = 100% by convention").
func (a *Accumulator) RecordAudio(hasSpeech, lufsTraced, stoiComputed bool) {
	a.audioFramesTotal++
	if lufsTraced {
		a.audioFramesTraced++
	}
	if hasSpeech {
		a.speechSegments++
		if stoiComputed {
			a.speechWithSTOI++
		}
	}
}

// Coverage renders the accumulated totals into the bundle's Coverage
// shape. Spatial coverage is derived analytically: with stride <= size
// the union of tile placements covers every pixel, so default
// 512/256 tiling (and the single-tile degenerate case for videos
// smaller than one tile) is always 100%.
func (a *Accumulator) Coverage() types.Coverage {
	framesPct := 100.0
	if a.totalFrames > 0 {
		framesPct = round2(100.0 * float64(a.framesAnalyzed) / float64(a.totalFrames))
	}

	lufsPct := 100.0
	if a.audioFramesTotal > 0 {
		lufsPct = round2(100.0 * float64(a.audioFramesTraced) / float64(a.audioFramesTotal))
	}

	stoiPct := 100.0
	if a.speechSegments > 0 {
		stoiPct = round2(100.0 * float64(a.speechWithSTOI) / float64(a.speechSegments))
	}

	return types.Coverage{
		Spatial: types.SpatialCoverage{
			TileSize:         a.tileSize,
			Stride:           a.stride,
			SRUsed:           a.srUsed,
			PixelsCoveredPct: 100.0,
			MinDetectablePx:  a.minDetectablePx,
		},
		Temporal: types.TemporalCoverage{
			FrameStride:       a.frameStride,
			FramesAnalyzedPct: framesPct,
		},
		Audio: types.AudioCoverage{
			LUFSTracePct: lufsPct,
			STOIPct:      stoiPct,
		},
	}
}

// EnforceGates evaluates coverage against thresholds and returns the
// gate state plus the reasons any threshold was missed, grounded on
// enforce_gates() in the original implementation. mandatorySkipped
// additionally forces degraded when a mandatory detector kind was
// skipped anywhere in the job, per spec.md §4.6's "no mandatory detector
// was skipped" clause.
func EnforceGates(cov types.Coverage, th Thresholds, mandatorySkipped bool) (string, []string) {
	state := types.StatusOK
	var reasons []string

	if cov.Temporal.FramesAnalyzedPct < th.FramesAnalyzedPct {
		state = types.StatusDegraded
		reasons = append(reasons, ReasonLowTemporalCoverage)
	}
	if cov.Spatial.MinDetectablePx > th.MinDetectablePx {
		state = types.StatusDegraded
		reasons = append(reasons, ReasonMinDetectablePxTooLarge)
	}
	if cov.Audio.LUFSTracePct < th.LUFSTracePct {
		state = types.StatusDegraded
		reasons = append(reasons, ReasonLUFSTraceMissing)
	}
	if cov.Audio.STOIPct < th.STOIPct {
		state = types.StatusDegraded
		reasons = append(reasons, ReasonLowSTOICoverage)
	}
	if mandatorySkipped {
		state = types.StatusDegraded
	}

	return state, reasons
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
