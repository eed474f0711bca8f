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

package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// TestEnsureLandmarksOnce checks that a second request is served from the
// store and that the status reflects the stored sequence.
func TestEnsureLandmarksOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.cache.EnsureLandmarks(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)
	second, err := f.cache.EnsureLandmarks(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)

	assert.Equal(t, 11, len(first))
	assert.DeepEqual(t, first, second)
	assert.Equal(t, f.video.ID, first[0].VideoID)
	assert.Equal(t, 1, f.extractor.ExtractCalls())

	rec := f.record(t)
	assert.Equal(t, model.StatusDone, rec.LandmarkStatus)
	assert.Equal(t, 11, rec.LandmarkCount)
}

// TestEnsureLandmarksConcurrent checks that concurrent requests for one
// video share a single extraction.
func TestEnsureLandmarksConcurrent(t *testing.T) {
	f := newFixture(t)
	f.extractor.Release = make(chan struct{})

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	lengths := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frames, err := f.cache.EnsureLandmarks(context.Background(), f.video.ID, f.video.Role)
			errs <- err
			lengths <- len(frames)
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.extractor.ExtractCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(f.extractor.Release)
	wg.Wait()
	close(errs)
	close(lengths)

	for err := range errs {
		assert.NoError(t, err)
	}
	for n := range lengths {
		assert.Equal(t, 11, n)
	}
	assert.Equal(t, 1, f.extractor.ExtractCalls())
}

// TestFailedExtractionIsNotCached checks that a failure leaves the status
// pending and the next request retries.
func TestFailedExtractionIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.extractor.ExtractErr = model.ErrMediaUnreadable

	_, err := f.cache.EnsureLandmarks(ctx, f.video.ID, f.video.Role)
	assert.That(t, errors.Is(err, model.ErrMediaUnreadable))
	assert.Equal(t, model.StatusPending, f.record(t).LandmarkStatus)

	f.extractor.ExtractErr = nil
	frames, err := f.cache.EnsureLandmarks(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)
	assert.Equal(t, 11, len(frames))
	assert.Equal(t, 2, f.extractor.ExtractCalls())
}

// TestIncompleteLandmarksAreRecomputed checks that a done status whose
// stored frame count disagrees with the record is a miss.
func TestIncompleteLandmarksAreRecomputed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	frames, err := f.cache.EnsureLandmarks(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)

	assert.NoError(t, f.store.SaveLandmarks(ctx, f.video.ID, f.video.Role, frames[:3]))
	frames, err = f.cache.EnsureLandmarks(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)
	assert.Equal(t, 11, len(frames))
	assert.Equal(t, 2, f.extractor.ExtractCalls())
}

// TestAbandonedWaitStillCompletes checks that a caller giving up does not
// cancel the shared computation.
func TestAbandonedWaitStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.extractor.Release = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.cache.EnsureLandmarks(ctx, f.video.ID, f.video.Role)
	assert.That(t, errors.Is(err, context.DeadlineExceeded))

	close(f.extractor.Release)
	frames, err := f.cache.EnsureLandmarks(context.Background(), f.video.ID, f.video.Role)
	assert.NoError(t, err)
	assert.Equal(t, 11, len(frames))
	assert.Equal(t, 1, f.extractor.ExtractCalls())
}

func TestUnknownOrMissingSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cache.EnsureLandmarks(ctx, "nope", model.RoleReference)
	assert.That(t, errors.Is(err, model.ErrNotFound))

	_, err = f.cache.EnsureLandmarks(ctx, f.video.ID, model.RoleSubject)
	assert.That(t, errors.Is(err, model.ErrNotFound))

	assert.NoError(t, os.Remove(f.video.FilePath))
	_, err = f.cache.EnsureAnnotatedVideo(ctx, f.video.ID, f.video.Role)
	assert.That(t, errors.Is(err, model.ErrNotFound))
	assert.Equal(t, 0, f.extractor.AnnotateCalls())
}

// TestEnsureAnnotatedVideo checks rendering into place, reuse, and the
// re-render of a file that disappeared from disk.
func TestEnsureAnnotatedVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.extractor.Degraded = true

	out, err := f.cache.EnsureAnnotatedVideo(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)
	assert.Equal(t, f.cache.AnnotatedPath(f.video.ID, f.video.Role), out.Path)
	assert.That(t, out.Degraded)
	_, err = os.Stat(out.Path)
	assert.NoError(t, err)

	rec := f.record(t)
	assert.Equal(t, model.StatusDone, rec.AnnotatedStatus)
	assert.Equal(t, out.Path, rec.AnnotatedPath)

	hit, err := f.cache.EnsureAnnotatedVideo(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)
	assert.Equal(t, out.Path, hit.Path)
	assert.Equal(t, 1, f.extractor.AnnotateCalls())

	assert.NoError(t, os.Remove(out.Path))
	again, err := f.cache.EnsureAnnotatedVideo(ctx, f.video.ID, f.video.Role)
	assert.NoError(t, err)
	assert.Equal(t, out.Path, again.Path)
	assert.Equal(t, 2, f.extractor.AnnotateCalls())

	partial, err := filepath.Glob(filepath.Join(filepath.Dir(out.Path), ".*"))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(partial))
}

func TestFailedAnnotateLeavesNothing(t *testing.T) {
	f := newFixture(t)
	f.extractor.AnnotateErr = errors.New("encoder crashed")

	_, err := f.cache.EnsureAnnotatedVideo(context.Background(), f.video.ID, f.video.Role)
	assert.Error(t, err)
	assert.Equal(t, model.StatusPending, f.record(t).AnnotatedStatus)
	entries, _ := os.ReadDir(filepath.Join(f.dir, "artifacts", string(f.video.Role)))
	assert.Equal(t, 0, len(entries))
}

// TestWarmAndEvict checks that eviction drops both artifacts and the next
// request recomputes them.
func TestWarmAndEvict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.NoError(t, f.cache.Warm(ctx, f.video.ID, f.video.Role))
	path := f.record(t).AnnotatedPath

	assert.NoError(t, f.cache.Evict(ctx, f.video.ID, f.video.Role))
	rec := f.record(t)
	assert.Equal(t, model.StatusPending, rec.LandmarkStatus)
	assert.Equal(t, model.StatusPending, rec.AnnotatedStatus)
	_, err := os.Stat(path)
	assert.That(t, errors.Is(err, os.ErrNotExist))

	assert.NoError(t, f.cache.Warm(ctx, f.video.ID, f.video.Role))
	assert.Equal(t, 2, f.extractor.ExtractCalls())
	assert.Equal(t, 2, f.extractor.AnnotateCalls())
}

// TestPurgeRemovesUnrecordedRender checks that a rendered file the record
// does not point at is removed along with the record.
func TestPurgeRemovesUnrecordedRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stray := f.cache.AnnotatedPath(f.video.ID, f.video.Role)
	assert.NoError(t, os.MkdirAll(filepath.Dir(stray), 0o755))
	assert.NoError(t, os.WriteFile(stray, []byte("annotated"), 0o644))
	assert.Equal(t, "", f.record(t).AnnotatedPath)

	assert.NoError(t, f.cache.Purge(ctx, f.video.ID, f.video.Role, func(ctx context.Context) error {
		return f.store.Delete(ctx, f.video.ID, f.video.Role)
	}))
	_, err := os.Stat(stray)
	assert.That(t, errors.Is(err, os.ErrNotExist))
	_, err = f.store.Get(ctx, f.video.ID, f.video.Role)
	assert.That(t, errors.Is(err, model.ErrNotFound))

	err = f.cache.Purge(ctx, f.video.ID, f.video.Role, func(context.Context) error { return nil })
	assert.That(t, errors.Is(err, model.ErrNotFound))
}
