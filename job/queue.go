package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/basui01/reelscope/coverage"
	"github.com/basui01/reelscope/detectors"
	"github.com/basui01/reelscope/fallback"
	"github.com/basui01/reelscope/merge"
	"github.com/basui01/reelscope/prep"
	"github.com/basui01/reelscope/scheduler"
	"github.com/basui01/reelscope/types"
)

// TaskAnalyze is the asynq task type name for a queued video analysis
// job, grounded on the task-name-constant convention in
// wapuda-uniqueization_pro's internal/jobs package.
const TaskAnalyze = "vab:analyze"

// AnalyzePayload is TaskAnalyze's JSON task payload.
type AnalyzePayload struct {
	VideoID   string          `json:"video_id"`
	Source    string          `json:"source"`
	Ablations types.Ablations `json:"ablations"`
}

// AsynqEnqueuer implements Enqueuer against a real asynq.Client.
type AsynqEnqueuer struct {
	client   *asynq.Client
	maxRetry int
}

// NewAsynqEnqueuer wraps an asynq.Client. maxRetry defaults to 1 when
// non-positive (a single retry covers transient Redis hiccups; the
// scheduler's own fallback ladder handles in-job detector failures).
func NewAsynqEnqueuer(client *asynq.Client, maxRetry int) *AsynqEnqueuer {
	if maxRetry <= 0 {
		maxRetry = 1
	}
	return &AsynqEnqueuer{client: client, maxRetry: maxRetry}
}

// Enqueue submits j as a TaskAnalyze task.
func (e *AsynqEnqueuer) Enqueue(ctx context.Context, j *types.Job) error {
	payload, err := json.Marshal(AnalyzePayload{
		VideoID:   j.VideoID,
		Source:    j.Source,
		Ablations: j.Ablations,
	})
	if err != nil {
		return fmt.Errorf("asynq enqueuer: encode payload: %w", err)
	}
	_, err = e.client.EnqueueContext(ctx, asynq.NewTask(TaskAnalyze, payload), asynq.MaxRetry(e.maxRetry))
	if err != nil {
		return fmt.Errorf("asynq enqueuer: enqueue: %w", err)
	}
	return nil
}

// Pipeline drives the full prep -> scheduler -> coverage -> merge ->
// persist chain for one job, consumed from the asynq worker. It is the
// asynq.HandlerFunc target registered on the worker's ServeMux.
type Pipeline struct {
	Manager       *Manager
	Segmenter     prep.Segmenter
	Scheduler     *scheduler.Scheduler
	SceneReasoner scheduler.SceneReasoner
	Artifacts     *ArtifactStore
	SceneCfg      merge.SceneGroupingConfig
	Thresholds    coverage.Thresholds
	SchedCfg      scheduler.Config

	QwenContextMaxFrames int
	TileStride           int // coverage.Accumulator's frame_stride tunable

	Logger *zap.Logger
}

// ProcessTask implements asynq.Handler, decoding AnalyzePayload and
// running it.
func (p *Pipeline) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload AnalyzePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("pipeline: decode payload: %w", err)
	}
	return p.Run(ctx, payload)
}

// Run executes one job end to end and persists its bundle. Errors from
// prep or the scheduler mark the job failed (spec.md §4.4's per-shot
// failure semantics are already absorbed by the scheduler; an error
// returned from RunJob means the whole job-level context was
// cancelled or a programmer error occurred, not a recoverable detector
// fault).
func (p *Pipeline) Run(ctx context.Context, payload AnalyzePayload) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("video_id", payload.VideoID))

	if err := p.Manager.MarkRunning(ctx, payload.VideoID); err != nil {
		return fmt.Errorf("pipeline: mark running: %w", err)
	}

	shots, meta, err := p.Segmenter.Segment(ctx, prep.Source{
		VideoID:  payload.VideoID,
		Path:     p.Artifacts.VideoPath(payload.VideoID),
		BasePath: p.Artifacts.BasePath(),
	})
	if err != nil {
		_ = p.Manager.MarkFailed(ctx, payload.VideoID, "segmentation failed: "+err.Error())
		return fmt.Errorf("pipeline: segment: %w", err)
	}
	meta.VideoID = payload.VideoID
	_ = p.Manager.UpdateProgress(ctx, payload.VideoID, 10, "segmented")

	result, err := p.Scheduler.RunJob(ctx, shots, meta, payload.Ablations, p.QwenContextMaxFrames)
	if err != nil {
		_ = p.Manager.MarkFailed(ctx, payload.VideoID, "detector DAG failed: "+err.Error())
		return fmt.Errorf("pipeline: run job: %w", err)
	}
	_ = p.Manager.UpdateProgress(ctx, payload.VideoID, 70, "detectors complete")

	inputs := make([]merge.ShotInput, len(shots))
	for i, shot := range shots {
		inputs[i] = merge.ShotInput{Shot: shot, Results: result.ShotResults[shot.ShotID]}
	}

	cov := buildCoverage(inputs, p.SchedCfg, p.TileStride)
	mandatorySkipped := mandatoryDetectorSkipped(inputs)
	gateState, reasons := coverage.EnforceGates(cov, p.Thresholds, mandatorySkipped)
	if result.ExceedsInternalErrorBudget(p.SchedCfg.InternalErrorBudget) {
		gateState = types.StatusDegraded
		reasons = append(reasons, "internal_error_budget_exceeded")
	}
	reasons = append(reasons, result.Ladder.Reasons()...)

	scenes := merge.BuildScenes(inputs, p.SceneCfg)
	if p.SceneReasoner != nil {
		reasonScenes(ctx, p.SceneReasoner, scenes, result, logger)
	}
	risks := merge.SynthesizeRisks(inputs, result.Ladder)
	status := types.Status{State: gateState, Reasons: dedupStrings(reasons), Coverage: cov}
	metrics := types.VideoMetrics{OOMTrips: int(result.Ladder.OOMTrips())}

	bundle := merge.AssembleBundle(meta, inputs, scenes, status, metrics)
	bundle.Risks = risks

	if err := p.Artifacts.WriteBundle(payload.VideoID, bundle); err != nil {
		_ = p.Manager.MarkFailed(ctx, payload.VideoID, "bundle persist failed: "+err.Error())
		return fmt.Errorf("pipeline: write bundle: %w", err)
	}

	if err := p.Manager.MarkCompleted(ctx, payload.VideoID); err != nil {
		return fmt.Errorf("pipeline: mark completed: %w", err)
	}
	logger.Info("analysis complete", zap.String("status", status.State), zap.Int("shots", len(shots)))
	return nil
}

// reasonScenes calls the scene-level VL reasoner once per scene,
// aggregating each scene's shots' Phase C summaries and features into a
// SceneReasonRequest — grounded on the original implementation's
// per-scene analyze_scene loop, run once per scene after build_scenes
// rather than inside it. A reasoning failure is logged and leaves that
// scene's Narrative unset, mirroring Phase C's tolerant handling of an
// unreachable VL endpoint (fallback.ReasonVLUnreachable).
func reasonScenes(ctx context.Context, reasoner scheduler.SceneReasoner, scenes []types.Scene, result scheduler.JobResult, logger *zap.Logger) {
	for i := range scenes {
		scene := &scenes[i]

		summaries := make([]string, 0, len(scene.ShotIDs))
		for _, shotID := range scene.ShotIDs {
			reasoning, ok := result.ShotResults[shotID][types.KindReasoning]
			if !ok || reasoning.Skipped() {
				continue
			}
			if rr, ok := reasoning.Payload.(scheduler.ReasonResult); ok && rr.Summary != "" {
				summaries = append(summaries, rr.Summary)
			}
		}

		features := map[string]any{
			"avg_brightness":    scene.Features.AvgBrightness,
			"dominant_mood":     scene.Features.DominantMood,
			"has_camera_motion": scene.Features.HasCameraMotion,
			"audio": map[string]any{
				"avg_loudness_lufs": scene.Features.Audio.AvgLoudnessLUFS,
				"has_speech":        scene.Features.Audio.HasSpeech,
				"has_music":         scene.Features.Audio.HasMusic,
			},
		}

		narrative, err := reasoner.ReasonScene(ctx, scheduler.SceneReasonRequest{
			SceneID:       scene.SceneID,
			DurationS:     scene.Features.TotalDurationS,
			ShotCount:     scene.Features.ShotCount,
			ShotSummaries: summaries,
			Features:      features,
		})
		if err != nil {
			logger.Warn("scene reasoning failed", zap.String("scene_id", scene.SceneID), zap.Error(err))
			continue
		}
		scene.Narrative = narrative
	}
}

// buildCoverage folds every shot's executed output into a fresh
// accumulator, deriving hasSpeech/lufsTraced/stoiComputed from the
// audio detector's own result rather than re-deriving them, so
// coverage never outruns what actually executed (invariant 5).
func buildCoverage(inputs []merge.ShotInput, cfg scheduler.Config, frameStride int) types.Coverage {
	if frameStride <= 0 {
		frameStride = 1
	}
	totalFrames := 0
	for _, in := range inputs {
		totalFrames += in.Shot.FrameCount
	}
	acc := coverage.NewAccumulator(cfg.TileSize, cfg.TileStride, coverage.DefaultThresholds().MinDetectablePx, frameStride, totalFrames)

	for _, in := range inputs {
		srUsed := false
		if sr, ok := in.Results[types.KindSuperRes]; ok && !sr.Skipped() {
			if payload, ok := sr.Payload.(map[string]any); ok {
				triggered, _ := payload["triggered"].(bool)
				srUsed = triggered
			}
		}
		acc.RecordShot(in.Shot, srUsed)

		if audio, ok := in.Results[types.KindAudio]; ok && !audio.Skipped() {
			hasSpeech, lufsTraced, stoiComputed := audioCoverageFlags(audio)
			acc.RecordAudio(hasSpeech, lufsTraced, stoiComputed)
		}
	}

	return acc.Coverage()
}

// audioCoverageFlags derives the accumulator's per-shot audio coverage
// flags from the audio detector's own measured output: LUFS is always
// traced unless the detector was skipped outright, and STOI coverage
// only counts when the shot actually has speech and the light-audio
// ablation didn't skip computing it (the stub backend leaves STOI at
// its zero value in that case).
func audioCoverageFlags(res types.DetectorResult) (hasSpeech, lufsTraced, stoiComputed bool) {
	metrics, ok := res.Payload.(detectors.AudioMetrics)
	if !ok {
		return false, false, false
	}
	return metrics.HasSpeech, true, metrics.HasSpeech && metrics.STOI > 0
}

// mandatoryDetectorSkipped reports whether any always-on detector kind
// (objects_coarse, faces, text, color, motion, audio, transition) was
// skipped for a reason other than a legitimate, expected condition
// (ablation, ladder-driven capability reduction, or "no adjacent
// shot" on the first shot's transition check).
func mandatoryDetectorSkipped(inputs []merge.ShotInput) bool {
	mandatory := []types.DetectorKind{
		types.KindObjectsCoarse, types.KindFaces, types.KindText,
		types.KindColor, types.KindMotion, types.KindAudio, types.KindTransition,
	}
	legitimate := map[string]struct{}{
		fallback.ReasonNoAdjacentShot: {},
	}
	for _, in := range inputs {
		for _, kind := range mandatory {
			res, ok := in.Results[kind]
			if !ok || !res.Skipped() {
				continue
			}
			if _, ok := legitimate[res.Provenance.SkippedReason]; ok {
				continue
			}
			return true
		}
	}
	return false
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
