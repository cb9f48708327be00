package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basui01/reelscope/detector"
	"github.com/basui01/reelscope/errs"
	"github.com/basui01/reelscope/types"
)

func shotWithFrames(id string, n int) types.Shot {
	frames := make([]string, n)
	for i := range frames {
		frames[i] = "frame.png"
	}
	return types.Shot{ShotID: id, FramePaths: frames}
}

func TestObjectsCoarse_NilBackendIsDeterministic(t *testing.T) {
	d := NewObjectsCoarse(nil)
	assert.Equal(t, types.KindObjectsCoarse, d.Kind())
	assert.Equal(t, types.ResourceGPUHeavy, d.ResourceClass())

	shot := shotWithFrames("shot-1", 3)
	r1, err := d.Detect(context.Background(), detector.Request{Shot: shot})
	require.NoError(t, err)
	r2, err := d.Detect(context.Background(), detector.Request{Shot: shot})
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestObjectsCoarse_BackendErrorPassesThrough(t *testing.T) {
	want := errs.Internal("backend exploded", nil)
	d := NewObjectsCoarse(func(ctx context.Context, shot types.Shot, params map[string]any) ([]Detection, error) {
		return nil, want
	})
	_, err := d.Detect(context.Background(), detector.Request{Shot: shotWithFrames("s", 1)})
	assert.ErrorIs(t, err, want)
}

func TestObjectsTiled_SingleScaleCollapsesTileCount(t *testing.T) {
	d := NewObjectsTiled(nil)
	shot := shotWithFrames("shot-2", 1)

	res, err := d.Detect(context.Background(), detector.Request{Shot: shot, Params: map[string]any{}})
	require.NoError(t, err)
	payload := res.Payload.(map[string]any)
	assert.Equal(t, 6, payload["tile_count"])

	res, err = d.Detect(context.Background(), detector.Request{Shot: shot, Params: map[string]any{"single_scale": true}})
	require.NoError(t, err)
	payload = res.Payload.(map[string]any)
	assert.Equal(t, 1, payload["tile_count"])
}

func TestSuperRes_DefaultsScaleToFour(t *testing.T) {
	d := NewSuperRes(nil)
	res, err := d.Detect(context.Background(), detector.Request{Shot: shotWithFrames("s", 1), Params: map[string]any{}})
	require.NoError(t, err)
	payload := res.Payload.(map[string]any)
	assert.Equal(t, true, payload["triggered"])
	assert.Equal(t, 4, payload["scale"])
}

func TestSuperRes_BackendErrorPassesThrough(t *testing.T) {
	want := errs.Transient("gpu oom", nil)
	d := NewSuperRes(func(ctx context.Context, shot types.Shot, scale int) error { return want })
	_, err := d.Detect(context.Background(), detector.Request{Shot: shotWithFrames("s", 1)})
	assert.ErrorIs(t, err, want)
}

func TestMaskRefine_NilBackendPassesThroughPrior(t *testing.T) {
	d := NewMaskRefine(nil)
	prior := types.DetectorResult{
		Kind:    types.KindObjectsTiled,
		Payload: map[string]any{"objects": []Detection{{Label: "car"}}},
	}
	res, err := d.Detect(context.Background(), detector.Request{
		Shot:   shotWithFrames("s", 1),
		Params: map[string]any{"prior": prior},
	})
	require.NoError(t, err)
	payload := res.Payload.(map[string]any)
	objs := payload["objects"].([]Detection)
	require.Len(t, objs, 1)
	assert.Equal(t, "car", objs[0].Label)
}

func TestFaces_StubBoundedToZeroOrOne(t *testing.T) {
	d := NewFaces(nil)
	res, err := d.Detect(context.Background(), detector.Request{Shot: shotWithFrames("shot-faces", 1)})
	require.NoError(t, err)
	payload := res.Payload.(map[string]any)
	faces := payload["faces"].([]Face)
	assert.LessOrEqual(t, len(faces), 1)
}

func TestText_NilBackendReturnsNoRegions(t *testing.T) {
	d := NewText(nil)
	res, err := d.Detect(context.Background(), detector.Request{Shot: shotWithFrames("s", 1)})
	require.NoError(t, err)
	payload := res.Payload.(map[string]any)
	assert.Nil(t, payload["regions"])
}

func TestColor_StubIsDeterministicPerShot(t *testing.T) {
	d := NewColor(nil)
	shot := shotWithFrames("shot-color", 1)
	r1, err := d.Detect(context.Background(), detector.Request{Shot: shot})
	require.NoError(t, err)
	r2, err := d.Detect(context.Background(), detector.Request{Shot: shot})
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestMotion_StubIsDeterministicPerShot(t *testing.T) {
	d := NewMotion(nil)
	shot := shotWithFrames("shot-motion", 1)
	r1, err := d.Detect(context.Background(), detector.Request{Shot: shot})
	require.NoError(t, err)
	r2, err := d.Detect(context.Background(), detector.Request{Shot: shot})
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestAudio_LightFlagSkipsStereoAndSTOI(t *testing.T) {
	d := NewAudio(nil)
	shot := shotWithFrames("shot-audio", 1)

	full, err := d.Detect(context.Background(), detector.Request{Shot: shot, Params: map[string]any{}})
	require.NoError(t, err)
	fullMetrics := full.Payload.(AudioMetrics)
	assert.NotZero(t, fullMetrics.STOI)

	light, err := d.Detect(context.Background(), detector.Request{Shot: shot, Params: map[string]any{"light": true}})
	require.NoError(t, err)
	lightMetrics := light.Payload.(AudioMetrics)
	assert.Zero(t, lightMetrics.STOI)
	assert.Zero(t, lightMetrics.StereoPhaseCorrelation)
}

func TestTransition_StubClassifiesWithinKnownTypes(t *testing.T) {
	d := NewTransition(nil)
	res, err := d.Detect(context.Background(), detector.Request{
		Shot:   shotWithFrames("shot-b", 1),
		Params: map[string]any{"prev_shot_id": "shot-a"},
	})
	require.NoError(t, err)
	result := res.Payload.(TransitionResult)
	assert.Contains(t, []string{
		TransitionNone, TransitionCut, TransitionFade,
		TransitionFadeToBlack, TransitionFadeFromBlack, TransitionDissolve,
	}, result.Type)
}

func TestObjectsFine_BackendErrorPassesThrough(t *testing.T) {
	want := errs.InputDefect("corrupt upscale", nil)
	d := NewObjectsFine(func(ctx context.Context, shot types.Shot, params map[string]any) ([]Detection, error) {
		return nil, want
	})
	_, err := d.Detect(context.Background(), detector.Request{Shot: shotWithFrames("s", 1)})
	assert.ErrorIs(t, err, want)
}
