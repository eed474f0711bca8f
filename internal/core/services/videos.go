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

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/media"
)

// sniffLen is the number of leading bytes filetype needs to match a container.
const sniffLen = 262

// UploadMetadata is the descriptive metadata sent with an upload.
type UploadMetadata struct {
	Title       string
	Author      string
	Tags        []string
	Description string
	// ReferenceID optionally links a subject upload to a reference video.
	ReferenceID string
}

// VideoService ingests, lists and deletes videos and serves their artifacts.
type VideoService struct {
	Store          Store
	Codec          media.Codec
	Cache          *ArtifactCache
	UploadDir      string
	AllowedFormats []string // extensions without the dot
	MaxUploadBytes int64    // <= 0 disables the cap
	// EagerReferenceWarmup starts building the artifacts of every new
	// reference video in the background.
	EagerReferenceWarmup bool
}

// CheckFormat rejects filenames whose extension is not allowed.
func (s *VideoService) CheckFormat(filename string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" || !slices.Contains(s.AllowedFormats, ext) {
		return fmt.Errorf("%w: %q, allowed: %s", model.ErrUnsupportedFormat, filename, strings.Join(s.AllowedFormats, ", "))
	}
	return nil
}

// Ingest stores an uploaded video and creates its record.
//
// Logic Flow:
//  1. The extension is checked against the allow list.
//  2. A subject upload naming a reference must name an existing one.
//  3. The content is written to <UploadDir>/<role>/<id><ext>, enforcing the
//     size cap.
//  4. The leading bytes are sniffed; content recognised as something other
//     than video is rejected.
//  5. The container is probed for duration, frame rate, geometry and audio.
//  6. The record is saved with both artifacts pending.
//
// The file is removed when any step after 3 fails.
func (s *VideoService) Ingest(ctx context.Context, role model.Role, filename string, src io.Reader, meta UploadMetadata) (*model.VideoRecord, error) {
	filename = filepath.Base(filename)
	if err := s.CheckFormat(filename); err != nil {
		return nil, err
	}
	if role == model.RoleSubject && meta.ReferenceID != "" {
		if _, err := s.Store.Get(ctx, meta.ReferenceID, model.RoleReference); err != nil {
			return nil, err
		}
	}

	rec := model.NewVideoRecord(role, filename)
	dir := filepath.Join(s.UploadDir, string(role))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rec.FilePath = filepath.Join(dir, rec.ID+strings.ToLower(filepath.Ext(filename)))

	if err := s.save(src, rec.FilePath); err != nil {
		_ = os.Remove(rec.FilePath)
		return nil, err
	}
	fail := func(err error) (*model.VideoRecord, error) {
		_ = os.Remove(rec.FilePath)
		return nil, err
	}

	if err := sniff(rec.FilePath); err != nil {
		return fail(err)
	}
	probe, err := s.Codec.Probe(ctx, rec.FilePath)
	if err != nil {
		if !errors.Is(err, model.ErrMediaUnreadable) {
			err = fmt.Errorf("%w: %v", model.ErrMediaUnreadable, err)
		}
		return fail(err)
	}

	rec.Duration = probe.Duration
	rec.FPS = probe.FPS
	rec.Width, rec.Height = probe.Width, probe.Height
	rec.HasAudio = probe.HasAudio
	rec.Title = meta.Title
	rec.Author = meta.Author
	rec.Description = meta.Description
	if meta.Tags != nil {
		rec.Tags = meta.Tags
	}
	if role == model.RoleSubject {
		rec.ReferenceID = meta.ReferenceID
	}
	if err := s.Store.Upsert(ctx, rec); err != nil {
		return fail(err)
	}
	slog.InfoContext(ctx, "video ingested", "video_id", rec.ID, "role", role, "filename", filename,
		"duration", rec.Duration, "fps", rec.FPS, "has_audio", rec.HasAudio)

	if role == model.RoleReference && s.EagerReferenceWarmup && s.Cache != nil {
		go func(ctx context.Context, id string) {
			if err := s.Cache.Warm(ctx, id, model.RoleReference); err != nil {
				slog.WarnContext(ctx, "background reference warm-up failed", "video_id", id, "error", err)
			}
		}(context.WithoutCancel(ctx), rec.ID)
	}
	return rec, nil
}

// IngestFile ingests a video that already sits on local disk, e.g. one
// downloaded from Cloud Storage. The source file is left in place.
func (s *VideoService) IngestFile(ctx context.Context, role model.Role, path, filename string, meta UploadMetadata) (*model.VideoRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrNotFound, err)
	}
	defer f.Close()
	return s.Ingest(ctx, role, filename, f, meta)
}

func (s *VideoService) save(src io.Reader, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	if s.MaxUploadBytes <= 0 {
		_, err = io.Copy(out, src)
		return err
	}
	n, err := io.Copy(out, io.LimitReader(src, s.MaxUploadBytes+1))
	if err != nil {
		return err
	}
	if n > s.MaxUploadBytes {
		return fmt.Errorf("%w: more than %d bytes", model.ErrTooLarge, s.MaxUploadBytes)
	}
	return nil
}

// sniff rejects files whose leading bytes identify a known non-video type.
// Unrecognised content is left for the probe to judge.
func sniff(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	head = head[:n]
	if n == 0 {
		return fmt.Errorf("%w: empty file", model.ErrMediaUnreadable)
	}
	kind, _ := filetype.Match(head)
	if kind != filetype.Unknown && !filetype.IsVideo(head) {
		return fmt.Errorf("%w: content is %s", model.ErrUnsupportedFormat, kind.MIME.Value)
	}
	return nil
}

// Get returns a record.
func (s *VideoService) Get(ctx context.Context, id string, role model.Role) (*model.VideoRecord, error) {
	return s.Store.Get(ctx, id, role)
}

// List returns the records of a role, newest first.
func (s *VideoService) List(ctx context.Context, role model.Role) ([]*model.VideoRecord, error) {
	return s.Store.ListByRole(ctx, role)
}

// Delete evicts the artifacts of a video, then removes its record and its
// source file.
func (s *VideoService) Delete(ctx context.Context, id string, role model.Role) error {
	rec, err := s.Store.Get(ctx, id, role)
	if err != nil {
		return err
	}
	if s.Cache != nil {
		err = s.Cache.Purge(ctx, id, role, func(ctx context.Context) error {
			return s.Store.Delete(ctx, id, role)
		})
	} else {
		err = s.Store.Delete(ctx, id, role)
	}
	if err != nil {
		return err
	}
	if err := os.Remove(rec.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.WarnContext(ctx, "failed to remove source file", "video_id", id, "path", rec.FilePath, "error", err)
	}
	slog.InfoContext(ctx, "video deleted", "video_id", id, "role", role)
	return nil
}

// Landmarks returns the landmark sequence of a video, computing it when it is
// not cached. A non-nil frameIndex narrows the result to that frame.
func (s *VideoService) Landmarks(ctx context.Context, id string, role model.Role, frameIndex *int) ([]model.LandmarkFrame, error) {
	frames, err := s.Cache.EnsureLandmarks(ctx, id, role)
	if err != nil {
		return nil, err
	}
	if frameIndex == nil {
		return frames, nil
	}
	for _, f := range frames {
		if f.FrameIndex == *frameIndex {
			return []model.LandmarkFrame{f}, nil
		}
	}
	return nil, fmt.Errorf("%w: frame %d of %s video %s", model.ErrNotFound, *frameIndex, role, id)
}

// SourcePath returns the path of the uploaded file.
func (s *VideoService) SourcePath(ctx context.Context, id string, role model.Role) (string, error) {
	rec, err := s.Store.Get(ctx, id, role)
	if err != nil {
		return "", err
	}
	if !cloud.FileExists(rec.FilePath) {
		return "", fmt.Errorf("%w: source file of %s video %s", model.ErrNotFound, role, id)
	}
	return rec.FilePath, nil
}

// AnnotatedPath returns the path of the annotated copy, rendering it first
// when needed.
func (s *VideoService) AnnotatedPath(ctx context.Context, id string, role model.Role) (string, error) {
	out, err := s.Cache.EnsureAnnotatedVideo(ctx, id, role)
	if err != nil {
		return "", err
	}
	return out.Path, nil
}
