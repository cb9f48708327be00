package prep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowSegmenter_WritesOneFramePathPerFrame(t *testing.T) {
	dir := t.TempDir()
	seg := NewFixedWindowSegmenter(10, 24.0, nil, nil)

	shots, meta, err := seg.Segment(context.Background(), Source{
		VideoID:  "vid-1",
		Path:     filepath.Join(dir, "nonexistent.mp4"),
		BasePath: dir,
	})
	require.NoError(t, err)
	require.NotEmpty(t, shots)
	assert.Equal(t, meta.TotalFrame, seg.WindowFrames*10)

	seen := map[string]bool{}
	frameCount := 0
	for _, shot := range shots {
		assert.Equal(t, shot.FrameCount, len(shot.FramePaths))
		for _, p := range shot.FramePaths {
			assert.False(t, seen[p], "frame path written twice: %s", p)
			seen[p] = true
			_, statErr := os.Stat(p)
			assert.NoError(t, statErr)
			frameCount++
		}
	}
	assert.Equal(t, meta.TotalFrame, frameCount)
}

func TestFixedWindowSegmenter_ShotsCoverContiguousRanges(t *testing.T) {
	dir := t.TempDir()
	seg := NewFixedWindowSegmenter(5, 24.0, nil, nil)

	shots, _, err := seg.Segment(context.Background(), Source{
		VideoID:  "vid-2",
		Path:     filepath.Join(dir, "missing.mp4"),
		BasePath: dir,
	})
	require.NoError(t, err)

	for i := 1; i < len(shots); i++ {
		assert.Equal(t, shots[i-1].EndFrame, shots[i].StartFrame)
	}
}

func TestFixedWindowSegmenter_RespectsContextCancellation(t *testing.T) {
	dir := t.TempDir()
	seg := NewFixedWindowSegmenter(1, 24.0, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := seg.Segment(ctx, Source{VideoID: "vid-3", Path: filepath.Join(dir, "x.mp4"), BasePath: dir})
	assert.Error(t, err)
}
