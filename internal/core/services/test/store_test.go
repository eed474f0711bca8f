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
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

func TestMemoryStoreVideos(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()

	older := model.NewVideoRecord(model.RoleReference, "a.mp4")
	older.CreateDate = time.Now().Add(-time.Hour)
	newer := model.NewVideoRecord(model.RoleReference, "b.mp4")
	subject := model.NewVideoRecord(model.RoleSubject, "c.mp4")
	for _, v := range []*model.VideoRecord{older, newer, subject} {
		assert.NoError(t, store.Upsert(ctx, v))
	}

	refs, err := store.ListByRole(ctx, model.RoleReference)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(refs))
	assert.Equal(t, newer.ID, refs[0].ID)

	_, err = store.Get(ctx, subject.ID, model.RoleReference)
	assert.That(t, errors.Is(err, model.ErrNotFound))

	got, err := store.Get(ctx, older.ID, model.RoleReference)
	assert.NoError(t, err)
	got.Title = "changed"
	again, _ := store.Get(ctx, older.ID, model.RoleReference)
	assert.Equal(t, "", again.Title)

	assert.NoError(t, store.Delete(ctx, older.ID, model.RoleReference))
	assert.That(t, errors.Is(store.Delete(ctx, older.ID, model.RoleReference), model.ErrNotFound))
}

// TestMemoryStoreLandmarks checks that frames are replaced as a whole, come
// back in index order and keep the no-detection sentinel.
func TestMemoryStoreLandmarks(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()
	v := model.NewVideoRecord(model.RoleSubject, "a.mp4")

	frames := model.ExampleFrames(v.ID, 30, []int{10, 0, 5}, 5)
	assert.That(t, errors.Is(store.SaveLandmarks(ctx, v.ID, v.Role, frames), model.ErrNotFound))

	assert.NoError(t, store.Upsert(ctx, v))
	empty, err := store.Landmarks(ctx, v.ID, v.Role)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(empty))

	assert.NoError(t, store.SaveLandmarks(ctx, v.ID, v.Role, frames))
	got, err := store.Landmarks(ctx, v.ID, v.Role)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(got))
	assert.Equal(t, 0, got[0].FrameIndex)
	assert.Equal(t, 5, got[1].FrameIndex)
	assert.That(t, !got[1].Pose.IsDetected())

	assert.NoError(t, store.SaveLandmarks(ctx, v.ID, v.Role, frames[:1]))
	got, _ = store.Landmarks(ctx, v.ID, v.Role)
	assert.Equal(t, 1, len(got))

	stats, err := store.Stats(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.SubjectVideos)
	assert.Equal(t, 1, stats.LandmarkFrames)
}

func TestMemoryStoreComparisons(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()

	first := model.NewComparisonJob("r", "s", 0.3)
	first.CreateDate = time.Now().Add(-time.Minute)
	second := model.NewComparisonJob("r", "s", 0.3)
	assert.NoError(t, store.CreateComparison(ctx, first))
	assert.NoError(t, store.CreateComparison(ctx, second))
	assert.Error(t, store.CreateComparison(ctx, first))

	first.Fail(errors.New("boom"))
	assert.NoError(t, store.UpdateComparison(ctx, first))
	got, err := store.GetComparison(ctx, first.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.JobFailed, got.Status)

	list, err := store.ListComparisons(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(list))
	assert.Equal(t, second.ID, list[0].ID)

	_, err = store.GetComparison(ctx, "missing")
	assert.That(t, errors.Is(err, model.ErrNotFound))
}
