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
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// newPostgresStore connects to the database named by POSE_TEST_POSTGRES_DSN
// and skips the test when it is not set.
func newPostgresStore(t *testing.T) *services.PostgresStore {
	t.Helper()
	dsn := os.Getenv("POSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	assert.NoError(t, err)
	t.Cleanup(pool.Close)
	store := services.NewPostgresStore(pool)
	assert.NoError(t, store.InitSchema(ctx))
	return store
}

func TestPostgresStoreVideos(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)

	v := model.NewVideoRecord(model.RoleReference, "routine.mp4")
	v.Title = "Routine"
	v.FPS = 30
	v.Width, v.Height = 1080, 1920
	assert.NoError(t, store.Upsert(ctx, v))
	t.Cleanup(func() { _ = store.Delete(context.Background(), v.ID, v.Role) })

	got, err := store.Get(ctx, v.ID, model.RoleReference)
	assert.NoError(t, err)
	assert.Equal(t, "Routine", got.Title)
	assert.Equal(t, 1920, got.Height)
	assert.Equal(t, model.StatusPending, got.LandmarkStatus)

	_, err = store.Get(ctx, v.ID, model.RoleSubject)
	assert.That(t, errors.Is(err, model.ErrNotFound))

	assert.NoError(t, store.MarkAnnotatedDone(ctx, v.ID, v.Role, "/tmp/annotated.mp4"))
	got, _ = store.Get(ctx, v.ID, v.Role)
	assert.Equal(t, model.StatusDone, got.AnnotatedStatus)
	assert.NoError(t, store.ResetArtifacts(ctx, v.ID, v.Role))
	got, _ = store.Get(ctx, v.ID, v.Role)
	assert.Equal(t, model.StatusPending, got.AnnotatedStatus)

	assert.NoError(t, store.Delete(ctx, v.ID, v.Role))
	assert.That(t, errors.Is(store.Delete(ctx, v.ID, v.Role), model.ErrNotFound))
}

// TestPostgresStoreLandmarks checks that a save replaces the whole sequence
// and that the no-detection sentinel survives the JSONB column.
func TestPostgresStoreLandmarks(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)

	v := model.NewVideoRecord(model.RoleSubject, "me.mp4")
	assert.NoError(t, store.Upsert(ctx, v))
	t.Cleanup(func() { _ = store.Delete(context.Background(), v.ID, v.Role) })

	empty, err := store.Landmarks(ctx, v.ID, v.Role)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(empty))

	frames := model.ExampleFrames(v.ID, 30, []int{0, 5, 10}, 5)
	assert.NoError(t, store.SaveLandmarks(ctx, v.ID, v.Role, frames))
	got, err := store.Landmarks(ctx, v.ID, v.Role)
	assert.NoError(t, err)
	assert.DeepEqual(t, frames, got)
	assert.That(t, got[0].Pose.IsDetected())
	assert.That(t, !got[1].Pose.IsDetected())

	assert.NoError(t, store.SaveLandmarks(ctx, v.ID, v.Role, frames[2:]))
	got, err = store.Landmarks(ctx, v.ID, v.Role)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(got))
	assert.Equal(t, 10, got[0].FrameIndex)

	assert.NoError(t, store.MarkLandmarksDone(ctx, v.ID, v.Role, 1))
	rec, err := store.Get(ctx, v.ID, v.Role)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusDone, rec.LandmarkStatus)
	assert.Equal(t, 1, rec.LandmarkCount)

	assert.NoError(t, store.SaveLandmarks(ctx, v.ID, v.Role, nil))
	got, err = store.Landmarks(ctx, v.ID, v.Role)
	assert.NoError(t, err)
	assert.Equal(t, 0, len(got))
}
