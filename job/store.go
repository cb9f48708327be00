// Package job implements the job lifecycle surface spec.md §4.7
// describes: a durable job table keyed by video_id, idempotent
// submission, and the on-disk persisted-state layout (spec.md §6)
// backing each job's bundle and intermediate artifacts.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/basui01/reelscope/types"
)

// Store is the job table: one record per video_id, surviving process
// restarts so a running job can be resumed or re-queried after a
// worker crash.
type Store interface {
	Get(ctx context.Context, videoID string) (*types.Job, bool, error)
	Save(ctx context.Context, job *types.Job) error
}

// RedisStore is a Store backed by Redis, grounded on the same
// redis.Client wiring the queue uses (spec.md §4.7's durable queue
// requirement extends naturally to the job table).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore. prefix namespaces job keys
// (default "reelscope:job:" when empty).
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "reelscope:job:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(videoID string) string {
	return s.prefix + videoID
}

// Get returns the job record for videoID, or found=false if none exists.
func (s *RedisStore) Get(ctx context.Context, videoID string) (*types.Job, bool, error) {
	raw, err := s.client.Get(ctx, s.key(videoID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("job store get: %w", err)
	}
	var j types.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, false, fmt.Errorf("job store decode: %w", err)
	}
	return &j, true, nil
}

// Save upserts a job record with no expiry; job records are reaped by
// an operator-driven cleanup job outside this process, not by TTL,
// since a completed bundle must remain queryable indefinitely.
func (s *RedisStore) Save(ctx context.Context, j *types.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("job store encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(j.VideoID), raw, 0).Err(); err != nil {
		return fmt.Errorf("job store save: %w", err)
	}
	return nil
}

// ArtifactStore manages the on-disk persisted-state layout from
// spec.md §6: store/<video_id>/{video.mp4, audio.wav, frames/, vab.json}.
// Bundle writes are atomic (write-to-temp-then-rename), matching the
// teacher's file-backed task store persistence pattern.
type ArtifactStore struct {
	basePath string
}

// NewArtifactStore constructs an ArtifactStore rooted at basePath
// (config's STORE_PATH).
func NewArtifactStore(basePath string) *ArtifactStore {
	return &ArtifactStore{basePath: basePath}
}

// Dir returns store/<video_id>.
func (a *ArtifactStore) Dir(videoID string) string {
	return filepath.Join(a.basePath, videoID)
}

// BasePath returns the store root itself.
func (a *ArtifactStore) BasePath() string {
	return a.basePath
}

// VideoPath returns store/<video_id>/video.mp4.
func (a *ArtifactStore) VideoPath(videoID string) string {
	return filepath.Join(a.Dir(videoID), "video.mp4")
}

// AudioPath returns store/<video_id>/audio.wav.
func (a *ArtifactStore) AudioPath(videoID string) string {
	return filepath.Join(a.Dir(videoID), "audio.wav")
}

// FramesDir returns store/<video_id>/frames.
func (a *ArtifactStore) FramesDir(videoID string) string {
	return filepath.Join(a.Dir(videoID), "frames")
}

func (a *ArtifactStore) bundlePath(videoID string) string {
	return filepath.Join(a.Dir(videoID), "vab.json")
}

// EnsureDir creates store/<video_id> (and its frames subdirectory) if
// they don't already exist.
func (a *ArtifactStore) EnsureDir(videoID string) error {
	if err := os.MkdirAll(a.FramesDir(videoID), 0o755); err != nil {
		return fmt.Errorf("artifact store ensure dir: %w", err)
	}
	return nil
}

// WriteBundle atomically persists the final bundle as vab.json:
// marshal, write to a sibling temp file, then rename over the final
// path, so a reader never observes a partially-written file.
func (a *ArtifactStore) WriteBundle(videoID string, bundle types.Bundle) error {
	if err := a.EnsureDir(videoID); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact store encode bundle: %w", err)
	}
	finalPath := a.bundlePath(videoID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, raw, 0o644); err != nil {
		return fmt.Errorf("artifact store write temp bundle: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("artifact store rename bundle: %w", err)
	}
	return nil
}

// ReadBundle loads a previously persisted bundle.
func (a *ArtifactStore) ReadBundle(videoID string) (types.Bundle, error) {
	raw, err := os.ReadFile(a.bundlePath(videoID))
	if err != nil {
		return types.Bundle{}, fmt.Errorf("artifact store read bundle: %w", err)
	}
	var b types.Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return types.Bundle{}, fmt.Errorf("artifact store decode bundle: %w", err)
	}
	return b, nil
}

// BundleExists reports whether a bundle has already been persisted for
// videoID.
func (a *ArtifactStore) BundleExists(videoID string) bool {
	_, err := os.Stat(a.bundlePath(videoID))
	return err == nil
}
