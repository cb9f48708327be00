package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/basui01/reelscope/types"
)

func TestController_PreCheck_DisablesAfterStep(t *testing.T) {
	c := NewController(16, nil)

	proceed, reason := c.PreCheck(types.KindMaskRefine)
	assert.True(t, proceed)
	assert.Empty(t, reason)

	retry, reason := c.OnTransient(types.KindMaskRefine)
	assert.False(t, retry)
	assert.Equal(t, ReasonMaskRefinementDisabled, reason)

	proceed, reason = c.PreCheck(types.KindMaskRefine)
	assert.False(t, proceed)
	assert.Equal(t, ReasonMaskRefinementDisabled, reason)
}

func TestController_SuperResDisablesBothSites(t *testing.T) {
	c := NewController(16, nil)

	retry, reason := c.OnTransient(types.KindSuperRes)
	assert.False(t, retry)
	assert.Equal(t, ReasonSRDisabledByFallback, reason)

	proceed, _ := c.PreCheck(types.KindObjectsFine)
	assert.False(t, proceed, "objects_fine depends on superres and must also be gated")
}

func TestController_ShrinksVLContextWithFloor(t *testing.T) {
	c := NewController(10, nil)

	retry, reason := c.OnTransient(types.KindReasoning)
	assert.True(t, retry)
	assert.Empty(t, reason)
	assert.Equal(t, 5, c.QwenContextMaxFrames())

	// second OOM at reasoning: already at step level, shrink again via a
	// fresh controller to confirm the floor; exhausting twice on one
	// controller falls through to resource_exhausted instead of shrinking
	// further, since the ladder only shrinks once per job.
	retry, reason = c.OnTransient(types.KindReasoning)
	assert.False(t, retry)
	assert.Equal(t, ReasonResourceExhausted, reason)
	assert.Equal(t, 5, c.QwenContextMaxFrames())
}

func TestController_QwenContextFloorsAtMinimum(t *testing.T) {
	c := NewController(6, nil)
	c.OnTransient(types.KindReasoning)
	assert.Equal(t, minQwenContextFrames, c.QwenContextMaxFrames())
}

func TestController_SingleScaleTilingRetriesOnce(t *testing.T) {
	c := NewController(16, nil)

	retry, reason := c.OnTransient(types.KindObjectsTiled)
	assert.True(t, retry)
	assert.Empty(t, reason)
	assert.True(t, c.SingleScaleTiling())

	retry, reason = c.OnTransient(types.KindObjectsTiled)
	assert.False(t, retry)
	assert.Equal(t, ReasonResourceExhausted, reason)
}

func TestController_UnmappedKindSkipsDirectly(t *testing.T) {
	c := NewController(16, nil)

	retry, reason := c.OnTransient(types.KindFaces)
	assert.False(t, retry)
	assert.Equal(t, ReasonResourceExhausted, reason)
}

func TestController_OOMTripsCounted(t *testing.T) {
	c := NewController(16, nil)
	require.Zero(t, c.OOMTrips())

	c.RecordOOMTrip()
	c.RecordOOMTrip()
	assert.EqualValues(t, 2, c.OOMTrips())
}

func TestController_ReasonsAreDeduplicatedAndOrdered(t *testing.T) {
	c := NewController(16, nil)
	c.OnTransient(types.KindMaskRefine)
	c.OnTransient(types.KindSuperRes)
	c.OnTransient(types.KindMaskRefine) // already disabled, same reason again

	reasons := c.Reasons()
	require.Len(t, reasons, 2)
	assert.Equal(t, ReasonMaskRefinementDisabled, reasons[0])
	assert.Equal(t, ReasonSRDisabledByFallback, reasons[1])
}

// TestController_MonotoneLadderProperty is the direct implementation of
// spec.md §8's "monotone ladder" law: across any sequence of transient
// failures on a single job-scoped controller, the observed ladder level
// never decreases.
func TestController_MonotoneLadderProperty(t *testing.T) {
	kinds := []types.DetectorKind{
		types.KindMaskRefine,
		types.KindSuperRes,
		types.KindObjectsFine,
		types.KindReasoning,
		types.KindObjectsTiled,
		types.KindFaces,
		types.KindText,
	}

	rapid.Check(t, func(rt *rapid.T) {
		c := NewController(16, nil)
		n := rapid.IntRange(0, 30).Draw(rt, "n")

		prevLevel := c.Level()
		for i := 0; i < n; i++ {
			kind := kinds[rapid.IntRange(0, len(kinds)-1).Draw(rt, "kind_idx")]
			c.OnTransient(kind)

			level := c.Level()
			if level < prevLevel {
				rt.Fatalf("ladder level decreased: %d -> %d", prevLevel, level)
			}
			prevLevel = level
		}
	})
}
