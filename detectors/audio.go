package detectors

import (
	"context"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/types"
)

// AudioMetrics aggregates a shot's audio-engineering measurements,
// grounded on audio_eng.py in the original implementation (LUFS, true
// peak, dynamic range, STOI, stereo phase coherence, speech/music VAD).
type AudioMetrics struct {
	LUFS                   float64 `json:"lufs"`
	TruePeakDBTP           float64 `json:"true_peak_dbtp"`
	DynamicRangeDB         float64 `json:"dynamic_range_db"`
	STOI                   float64 `json:"stoi"`
	HasSpeech              bool    `json:"has_speech"`
	HasMusic               bool    `json:"has_music"`
	StereoPhaseCorrelation float64 `json:"stereo_phase_correlation"`
}

// AudioBackend computes a shot's audio-engineering profile. light
// requests a reduced-fidelity pass (the light_audio ablation, spec.md
// §4.6) that skips the stereo-field and STOI analysis.
type AudioBackend func(ctx context.Context, shot types.Shot, light bool) (AudioMetrics, error)

// Audio is a Phase B detector (spec.md §4.4), cpu class.
type Audio struct {
	adapter
	Backend AudioBackend
}

func NewAudio(backend AudioBackend) *Audio {
	if backend == nil {
		backend = stubAudioBackend
	}
	return &Audio{
		adapter: adapter{kind: types.KindAudio, class: types.ResourceCPU, tool: "audio_eng", version: "1.0"},
		Backend: backend,
	}
}

func (d *Audio) Detect(ctx context.Context, req detector.Request) (detector.Result, error) {
	light, _ := req.Params["light"].(bool)
	metrics, err := d.Backend(ctx, req.Shot, light)
	if err != nil {
		return detector.Result{}, err
	}
	return detector.Result{Payload: metrics}, nil
}

func stubAudioBackend(ctx context.Context, shot types.Shot, light bool) (AudioMetrics, error) {
	r := seededRand(shot.ShotID, "audio")
	m := AudioMetrics{
		LUFS:           -23.0 + r.Float64()*6 - 3,
		TruePeakDBTP:   -6.0 + r.Float64()*6,
		DynamicRangeDB: 6.0 + r.Float64()*10,
		HasSpeech:      r.Float64() > 0.3,
		HasMusic:       r.Float64() > 0.5,
	}
	if !light {
		m.STOI = r.Float64()
		m.StereoPhaseCorrelation = r.Float64()*2 - 1
	}
	return m, nil
}
