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

// Package services_test contains the test suite of the services package:
// the metadata store, the artifact cache, video ingestion and reports. Tests
// run against the in-memory store and the fake engines, except the Postgres
// store tests, which need POSE_TEST_POSTGRES_DSN.
package services_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
	test "github.com/jaycherian/gcp-go-pose-compare/internal/testutil"
)

// fixture is one reference video with its source file on disk.
type fixture struct {
	dir       string
	store     *services.MemoryStore
	extractor *test.FakeExtractor
	cache     *services.ArtifactCache
	video     *model.VideoRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.mp4")
	assert.NoError(t, os.WriteFile(source, []byte("video bytes"), 0o644))

	store := services.NewMemoryStore()
	video := model.NewVideoRecord(model.RoleReference, "source.mp4")
	video.FilePath = source
	video.FPS = 30
	video.Duration = 10.0 / 3
	assert.NoError(t, store.Upsert(context.Background(), video))

	extractor := test.NewFakeExtractor(50)
	return &fixture{
		dir:       dir,
		store:     store,
		extractor: extractor,
		cache:     services.NewArtifactCache(store, extractor, nil, filepath.Join(dir, "artifacts"), 5),
		video:     video,
	}
}

func (f *fixture) record(t *testing.T) *model.VideoRecord {
	t.Helper()
	rec, err := f.store.Get(context.Background(), f.video.ID, f.video.Role)
	assert.NoError(t, err)
	return rec
}
