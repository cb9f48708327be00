// Package prep defines the segmentation seam between a raw video source
// and the shot-level work the scheduler drives. Real shot-boundary
// detection and keyframe extraction (content-aware cut detection,
// codec decode) are out of scope (spec.md §1); this package exposes the
// Segmenter contract plus a fixed-window reference implementation that
// satisfies invariant 1 — exactly one decoded frame path exists for
// every frame before any detector runs on it.
package prep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/basui01/reelscope/types"
)

// Source identifies the video to segment and where its derived
// artifacts (frames, audio) should be written.
type Source struct {
	VideoID  string
	Path     string
	BasePath string // store root; defaults to "store" if empty
}

// Segmenter turns a video source into an ordered list of shots and the
// video-level metadata prep derives before any detector work begins.
type Segmenter interface {
	Segment(ctx context.Context, source Source) ([]types.Shot, types.VideoMeta, error)
}

// FixedWindowSegmenter is the reference Segmenter: it slices a video
// into fixed-size frame windows rather than running real content-aware
// shot-boundary detection (grounded on detect_shots()/extract_keyframes()
// in the original implementation, which call PySceneDetect and OpenCV —
// both out of scope here per spec.md §1). It still performs the real
// filesystem side effect invariant 1 requires: one frame path per frame,
// written under store/<video_id>/frames/ before Segment returns.
type FixedWindowSegmenter struct {
	WindowFrames    int
	FPS             float64
	FrameWriter     FrameWriter
	ResolutionProbe ResolutionProbe
	logger          *zap.Logger
}

// FrameWriter persists one decoded frame to disk. The default writer
// used in tests and without a real decoder wired in writes an empty
// placeholder file, which is sufficient to satisfy invariant 1's "a
// frame path exists" requirement without decoding real video.
type FrameWriter func(path string, frameNum int) error

// ResolutionProbe reports a source's actual frame dimensions. Real
// resolution probing (ffprobe/OpenCV, as get_video_metadata() does in
// the original implementation) is out of scope per spec.md §1; the
// default probe reports a fixed 1080p, which a real deployment
// replaces with an actual probe so the scheduler's super-res trigger
// (spec.md §4.4 step 3) sees the source's true height.
type ResolutionProbe func(source Source) (width, height int)

// NewFixedWindowSegmenter constructs a segmenter that groups frames into
// windows of windowFrames each. fps must be positive; it is used to
// convert frame counts into shot durations and audio windows.
func NewFixedWindowSegmenter(windowFrames int, fps float64, writer FrameWriter, logger *zap.Logger) *FixedWindowSegmenter {
	if windowFrames <= 0 {
		windowFrames = 48
	}
	if fps <= 0 {
		fps = 24.0
	}
	if writer == nil {
		writer = writePlaceholderFrame
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FixedWindowSegmenter{
		WindowFrames:    windowFrames,
		FPS:             fps,
		FrameWriter:     writer,
		ResolutionProbe: defaultResolutionProbe,
		logger:          logger.With(zap.String("component", "prep.fixed_window_segmenter")),
	}
}

func defaultResolutionProbe(Source) (int, int) { return 1920, 1080 }

// Segment estimates a frame count from the source's on-disk size (see
// probeFrameCount), since no real decoder is wired in, then slices it
// into fixed windows and writes one frame file per frame under
// <BasePath>/<video_id>/frames/. There is no caller-supplied frame-count
// override; a source that cannot be stat'd gets probeFrameCount's fixed
// default, so shots are still produced for a missing file.
func (s *FixedWindowSegmenter) Segment(ctx context.Context, source Source) ([]types.Shot, types.VideoMeta, error) {
	basePath := source.BasePath
	if basePath == "" {
		basePath = "store"
	}
	framesDir := filepath.Join(basePath, source.VideoID, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, types.VideoMeta{}, fmt.Errorf("prep: create frames dir: %w", err)
	}

	totalFrames := s.probeFrameCount(source)
	probe := s.ResolutionProbe
	if probe == nil {
		probe = defaultResolutionProbe
	}
	width, height := probe(source)
	meta := types.VideoMeta{
		VideoID:    source.VideoID,
		Path:       source.Path,
		TotalFrame: totalFrames,
		FPS:        s.FPS,
		DurationS:  float64(totalFrames) / s.FPS,
		Width:      width,
		Height:     height,
	}

	var shots []types.Shot
	for start := 0; start < totalFrames; start += s.WindowFrames {
		if ctx.Err() != nil {
			return nil, types.VideoMeta{}, ctx.Err()
		}
		end := start + s.WindowFrames
		if end > totalFrames {
			end = totalFrames
		}

		framePaths := make([]string, 0, end-start)
		for f := start; f < end; f++ {
			path := filepath.Join(framesDir, fmt.Sprintf("frame_%08d.jpg", f))
			if err := s.FrameWriter(path, f); err != nil {
				return nil, types.VideoMeta{}, fmt.Errorf("prep: write frame %d: %w", f, err)
			}
			framePaths = append(framePaths, path)
		}

		shots = append(shots, types.Shot{
			ShotID:     fmt.Sprintf("sh_%03d", len(shots)),
			StartFrame: start,
			EndFrame:   end,
			FrameCount: end - start,
			DurationS:  float64(end-start) / s.FPS,
			FramePaths: framePaths,
			AudioWindow: types.AudioWindow{
				StartS: float64(start) / s.FPS,
				EndS:   float64(end) / s.FPS,
			},
		})
	}

	s.logger.Info("segmented video",
		zap.String("video_id", source.VideoID),
		zap.Int("shot_count", len(shots)),
		zap.Int("total_frames", totalFrames),
	)

	return shots, meta, nil
}

// probeFrameCount estimates the frame count for a source without
// decoding it. A real deployment replaces this with an ffprobe/OpenCV
// call (get_video_metadata() in the original implementation); here it
// falls back to a fixed default of 10 windows' worth of frames when the
// source file cannot be stat'd, which keeps Segment usable in tests that
// point at a non-existent path.
func (s *FixedWindowSegmenter) probeFrameCount(source Source) int {
	info, err := os.Stat(source.Path)
	if err != nil || info.Size() == 0 {
		return s.WindowFrames * 10
	}
	// Deterministic stand-in for real decode-based frame counting: one
	// frame per 4KB of source bytes, floored to a single window.
	frames := int(info.Size() / 4096)
	if frames < s.WindowFrames {
		frames = s.WindowFrames
	}
	return frames
}

func writePlaceholderFrame(path string, frameNum int) error {
	return os.WriteFile(path, []byte{}, 0o644)
}
