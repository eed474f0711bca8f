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

// Package api_test drives the HTTP routes through a gin engine backed by the
// in-memory store and the fake codec and extractor.
package api_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-pose-compare/internal/api"
	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-pose-compare/internal/testutil"
)

type server struct {
	dir       string
	router    *gin.Engine
	store     *services.MemoryStore
	extractor *test.FakeExtractor
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	store := services.NewMemoryStore()
	extractor := test.NewFakeExtractor(50)
	cache := services.NewArtifactCache(store, extractor, nil, filepath.Join(dir, "artifacts"), 5)
	videos := &services.VideoService{
		Store:          store,
		Codec:          test.NewFakeCodec(50),
		Cache:          cache,
		UploadDir:      filepath.Join(dir, "uploads"),
		AllowedFormats: []string{"mp4", "mov"},
		MaxUploadBytes: 1 << 20,
	}
	comparisons := &services.ComparisonService{
		Store:            store,
		Cache:            cache,
		ReportDir:        filepath.Join(dir, "reports"),
		DefaultThreshold: 0.3,
		SecondsPerSample: 1,
	}
	handlers := &api.Handlers{
		Videos:      videos,
		Comparisons: comparisons,
		Workflow:    workflow.NewComparisonWorkflow(cloud.NewConfig(), nil, comparisons, nil),
		StoreDriver: "memory",
	}
	router := gin.New()
	handlers.Register(router.Group("/api/v1"))
	return &server{dir: dir, router: router, store: store, extractor: extractor}
}

// addVideo stores a record whose source file holds size bytes 0, 1, 2, ...
func (s *server) addVideo(t *testing.T, role model.Role, size int) *model.VideoRecord {
	t.Helper()
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}
	rec := model.NewVideoRecord(role, "clip.mp4")
	rec.FilePath = filepath.Join(s.dir, rec.ID+".mp4")
	rec.FPS = 30
	require.NoError(t, os.WriteFile(rec.FilePath, content, 0o644))
	require.NoError(t, s.store.Upsert(context.Background(), rec))
	return rec
}

func (s *server) do(method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// upload posts a multipart form with the file under the "video" field.
func (s *server) upload(t *testing.T, target, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return s.do(http.MethodPost, target, &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
}
