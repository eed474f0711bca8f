// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package services - artifact cache.
//
// ArtifactCache owns the two derived artifacts of a video: its landmark
// sequence and its annotated copy. Each is computed at most once per video
// identity and reused by every later request.
//
// Logic Flow (both artifacts):
//  1. Callers for the same key ("landmarks/<role>/<id>" or
//     "annotated/<role>/<id>") share one in-flight computation through a
//     singleflight group. A caller whose context ends stops waiting; the
//     computation keeps running so the next caller can reuse its result.
//  2. The computation takes the per-key Locker, which also excludes other
//     processes when the lock is backed by Redis.
//  3. Under the lock the store is consulted. Landmarks are a hit when the
//     status is done and the stored frame count matches the recorded count;
//     the annotated video is a hit when the status is done and the file is on
//     disk. Anything else is a miss.
//  4. On a miss the artifact is computed, persisted, and only then marked
//     done. A failure writes nothing, so the next call retries.
package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// LandmarkExtractor computes the artifacts. *pose.Extractor implements it.
type LandmarkExtractor interface {
	Extract(ctx context.Context, videoID, path string, stride int) (iter.Seq2[model.LandmarkFrame, error], error)
	Annotate(ctx context.Context, path, outputPath string, stride int) (*model.AnnotatedVideo, error)
}

const (
	artifactLandmarks = "landmarks"
	artifactAnnotated = "annotated"
)

// ArtifactCache is the at-most-once coordinator for derived artifacts.
type ArtifactCache struct {
	store       Store
	extractor   LandmarkExtractor
	locker      cloud.Locker
	artifactDir string
	stride      int

	group  singleflight.Group
	tracer trace.Tracer
	hits   metric.Int64Counter
	misses metric.Int64Counter
	errs   metric.Int64Counter
}

// NewArtifactCache creates a cache.
//
// Inputs:
//   - store: the metadata store; the cache is the only writer of artifact status.
//   - extractor: computes landmarks and annotated videos.
//   - locker: per-identity lock; nil uses an in-process keyed mutex.
//   - artifactDir: annotated videos go to <artifactDir>/<role>/<id>_annotated.mp4.
//   - stride: keyframe stride passed to the extractor.
func NewArtifactCache(store Store, extractor LandmarkExtractor, locker cloud.Locker, artifactDir string, stride int) *ArtifactCache {
	if locker == nil {
		locker = cloud.NewKeyedMutex()
	}
	meter := otel.Meter(cor.MeterName)
	hits, err := meter.Int64Counter("artifact_cache.hit")
	if err != nil {
		slog.Warn("failed to create cache hit counter", "error", err)
	}
	misses, err := meter.Int64Counter("artifact_cache.miss")
	if err != nil {
		slog.Warn("failed to create cache miss counter", "error", err)
	}
	errs, err := meter.Int64Counter("artifact_cache.compute.error")
	if err != nil {
		slog.Warn("failed to create cache error counter", "error", err)
	}
	return &ArtifactCache{
		store:       store,
		extractor:   extractor,
		locker:      locker,
		artifactDir: artifactDir,
		stride:      stride,
		tracer:      otel.Tracer("artifact-cache"),
		hits:        hits,
		misses:      misses,
		errs:        errs,
	}
}

// Stride returns the keyframe stride artifacts are computed with.
func (c *ArtifactCache) Stride() int {
	return c.stride
}

func cacheKey(artifact, id string, role model.Role) string {
	return fmt.Sprintf("%s/%s/%s", artifact, role, id)
}

func (c *ArtifactCache) count(ctx context.Context, counter metric.Int64Counter, artifact string) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("artifact", artifact)))
	}
}

// do runs fn once per key among concurrent callers. fn runs on a context
// that is not cancelled with ctx.
func (c *ArtifactCache) do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		unlock, err := c.locker.Lock(detached, key)
		if err != nil {
			return nil, err
		}
		defer unlock()
		return fn(detached)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnsureLandmarks returns the landmark sequence of a video, extracting it on
// a cache miss. The returned slice is the caller's own copy.
func (c *ArtifactCache) EnsureLandmarks(ctx context.Context, id string, role model.Role) ([]model.LandmarkFrame, error) {
	v, err := c.do(ctx, cacheKey(artifactLandmarks, id, role), func(ctx context.Context) (any, error) {
		return c.computeLandmarks(ctx, id, role)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]model.LandmarkFrame)), nil
}

func (c *ArtifactCache) computeLandmarks(ctx context.Context, id string, role model.Role) (frames []model.LandmarkFrame, err error) {
	ctx, span := c.tracer.Start(ctx, "ensure-landmarks")
	span.SetAttributes(attribute.String("video_id", id), attribute.String("role", string(role)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rec, err := c.store.Get(ctx, id, role)
	if err != nil {
		return nil, err
	}
	if rec.LandmarkStatus == model.StatusDone {
		stored, err := c.store.Landmarks(ctx, id, role)
		if err != nil {
			return nil, err
		}
		if len(stored) == rec.LandmarkCount {
			c.count(ctx, c.hits, artifactLandmarks)
			span.SetAttributes(attribute.Bool("hit", true))
			return stored, nil
		}
		slog.WarnContext(ctx, "landmark cache entry is incomplete, recomputing",
			"video_id", id, "role", role, "recorded", rec.LandmarkCount, "stored", len(stored))
	}
	c.count(ctx, c.misses, artifactLandmarks)
	span.SetAttributes(attribute.Bool("hit", false))

	if !cloud.FileExists(rec.FilePath) {
		return nil, fmt.Errorf("%w: source file of %s video %s", model.ErrNotFound, role, id)
	}
	seq, err := c.extractor.Extract(ctx, id, rec.FilePath, c.stride)
	if err != nil {
		c.count(ctx, c.errs, artifactLandmarks)
		return nil, err
	}
	frames = make([]model.LandmarkFrame, 0)
	for f, err := range seq {
		if err != nil {
			c.count(ctx, c.errs, artifactLandmarks)
			return nil, err
		}
		frames = append(frames, f)
	}

	if err := c.store.SaveLandmarks(ctx, id, role, frames); err != nil {
		c.count(ctx, c.errs, artifactLandmarks)
		return nil, err
	}
	if err := c.store.MarkLandmarksDone(ctx, id, role, len(frames)); err != nil {
		c.count(ctx, c.errs, artifactLandmarks)
		return nil, err
	}
	slog.InfoContext(ctx, "landmarks extracted", "video_id", id, "role", role, "frames", len(frames))
	return frames, nil
}

// AnnotatedPath is where the annotated copy of a video is kept.
func (c *ArtifactCache) AnnotatedPath(id string, role model.Role) string {
	return filepath.Join(c.artifactDir, string(role), id+"_annotated.mp4")
}

// EnsureAnnotatedVideo returns the annotated copy of a video, rendering it on
// a cache miss. Degraded and HasAudio are only known for a fresh render; a
// cache hit reports the path alone.
func (c *ArtifactCache) EnsureAnnotatedVideo(ctx context.Context, id string, role model.Role) (*model.AnnotatedVideo, error) {
	v, err := c.do(ctx, cacheKey(artifactAnnotated, id, role), func(ctx context.Context) (any, error) {
		return c.computeAnnotated(ctx, id, role)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*model.AnnotatedVideo)
	return &out, nil
}

func (c *ArtifactCache) computeAnnotated(ctx context.Context, id string, role model.Role) (out *model.AnnotatedVideo, err error) {
	ctx, span := c.tracer.Start(ctx, "ensure-annotated-video")
	span.SetAttributes(attribute.String("video_id", id), attribute.String("role", string(role)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rec, err := c.store.Get(ctx, id, role)
	if err != nil {
		return nil, err
	}
	if rec.AnnotatedStatus == model.StatusDone && rec.AnnotatedPath != "" {
		if cloud.FileExists(rec.AnnotatedPath) {
			c.count(ctx, c.hits, artifactAnnotated)
			span.SetAttributes(attribute.Bool("hit", true))
			return &model.AnnotatedVideo{Path: rec.AnnotatedPath}, nil
		}
		slog.WarnContext(ctx, "annotated video missing on disk, regenerating",
			"video_id", id, "role", role, "path", rec.AnnotatedPath)
	}
	c.count(ctx, c.misses, artifactAnnotated)
	span.SetAttributes(attribute.Bool("hit", false))

	if !cloud.FileExists(rec.FilePath) {
		return nil, fmt.Errorf("%w: source file of %s video %s", model.ErrNotFound, role, id)
	}
	target := c.AnnotatedPath(id, role)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	// Render next to the target and rename, so readers never see a partial file.
	tmp := filepath.Join(filepath.Dir(target), fmt.Sprintf(".%s-%s.mp4", id, uuid.NewString()))
	res, err := c.extractor.Annotate(ctx, rec.FilePath, tmp, c.stride)
	if err != nil {
		_ = os.Remove(tmp)
		c.count(ctx, c.errs, artifactAnnotated)
		return nil, err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		c.count(ctx, c.errs, artifactAnnotated)
		return nil, err
	}
	if err := c.store.MarkAnnotatedDone(ctx, id, role, target); err != nil {
		_ = os.Remove(target)
		c.count(ctx, c.errs, artifactAnnotated)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("degraded", res.Degraded))
	slog.InfoContext(ctx, "annotated video rendered", "video_id", id, "role", role, "path", target, "degraded", res.Degraded)
	return &model.AnnotatedVideo{Path: target, HasAudio: res.HasAudio, Degraded: res.Degraded}, nil
}

// Warm ensures both artifacts of a video.
func (c *ArtifactCache) Warm(ctx context.Context, id string, role model.Role) error {
	if _, err := c.EnsureLandmarks(ctx, id, role); err != nil {
		return fmt.Errorf("landmarks of %s: %w", id, err)
	}
	if _, err := c.EnsureAnnotatedVideo(ctx, id, role); err != nil {
		return fmt.Errorf("annotated video of %s: %w", id, err)
	}
	return nil
}

// Evict drops the artifacts of a video: the annotated file is removed and
// both statuses go back to pending. It holds both artifact locks, so it never
// interleaves with a computation for the same video.
func (c *ArtifactCache) Evict(ctx context.Context, id string, role model.Role) error {
	return c.Purge(ctx, id, role, func(ctx context.Context) error {
		if err := c.store.SaveLandmarks(ctx, id, role, nil); err != nil {
			return err
		}
		return c.store.ResetArtifacts(ctx, id, role)
	})
}

// Purge removes the annotated file of a video and then runs fn, with both
// artifact locks held throughout. Deleting the record inside fn leaves no
// window for a computation to write artifacts of a video that is gone.
func (c *ArtifactCache) Purge(ctx context.Context, id string, role model.Role, fn func(context.Context) error) error {
	for _, artifact := range []string{artifactLandmarks, artifactAnnotated} {
		unlock, err := c.locker.Lock(ctx, cacheKey(artifact, id, role))
		if err != nil {
			return err
		}
		defer unlock()
	}

	rec, err := c.store.Get(ctx, id, role)
	if err != nil {
		return err
	}
	for _, path := range []string{rec.AnnotatedPath, c.AnnotatedPath(id, role)} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return fn(ctx)
}
