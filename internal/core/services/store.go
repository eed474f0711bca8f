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

// Package services holds the stateful services behind the HTTP surface and
// the workflows: the video metadata store, the artifact cache, video
// ingestion, comparisons and the Cloud Storage mirror.
//
// This file defines the Store every other service is handed, and an
// in-memory implementation used by tests and single-process deployments.
package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// Store is the video metadata store. Records are keyed by (id, role).
//
// MarkLandmarksDone, MarkAnnotatedDone and SaveLandmarks are written only by
// the ArtifactCache. Implementations give per-call atomicity; SaveLandmarks
// replaces a video's whole landmark sequence in one step.
type Store interface {
	Get(ctx context.Context, id string, role model.Role) (*model.VideoRecord, error)
	Upsert(ctx context.Context, record *model.VideoRecord) error
	ListByRole(ctx context.Context, role model.Role) ([]*model.VideoRecord, error)
	Delete(ctx context.Context, id string, role model.Role) error

	SaveLandmarks(ctx context.Context, id string, role model.Role, frames []model.LandmarkFrame) error
	Landmarks(ctx context.Context, id string, role model.Role) ([]model.LandmarkFrame, error)
	MarkLandmarksDone(ctx context.Context, id string, role model.Role, count int) error
	MarkAnnotatedDone(ctx context.Context, id string, role model.Role, path string) error
	// ResetArtifacts puts both artifacts of a record back to pending.
	ResetArtifacts(ctx context.Context, id string, role model.Role) error

	CreateComparison(ctx context.Context, job *model.ComparisonJob) error
	UpdateComparison(ctx context.Context, job *model.ComparisonJob) error
	GetComparison(ctx context.Context, id string) (*model.ComparisonJob, error)
	ListComparisons(ctx context.Context, limit int) ([]*model.ComparisonJob, error)

	Stats(ctx context.Context) (*model.Stats, error)
}

type recordKey struct {
	id   string
	role model.Role
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	videos      map[recordKey]*model.VideoRecord
	landmarks   map[recordKey][]model.LandmarkFrame
	comparisons map[string]*model.ComparisonJob
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos:      make(map[recordKey]*model.VideoRecord),
		landmarks:   make(map[recordKey][]model.LandmarkFrame),
		comparisons: make(map[string]*model.ComparisonJob),
	}
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %s", model.ErrNotFound, what, id)
}

func (s *MemoryStore) Get(_ context.Context, id string, role model.Role) (*model.VideoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[recordKey{id, role}]
	if !ok {
		return nil, notFound(string(role)+" video", id)
	}
	return v.Clone(), nil
}

func (s *MemoryStore) Upsert(_ context.Context, record *model.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[recordKey{record.ID, record.Role}] = record.Clone()
	return nil
}

// ListByRole returns the records of a role, newest first.
func (s *MemoryStore) ListByRole(_ context.Context, role model.Role) ([]*model.VideoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.VideoRecord, 0)
	for k, v := range s.videos {
		if k.role == role {
			out = append(out, v.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreateDate.Equal(out[j].CreateDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreateDate.After(out[j].CreateDate)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string, role model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey{id, role}
	if _, ok := s.videos[k]; !ok {
		return notFound(string(role)+" video", id)
	}
	delete(s.videos, k)
	delete(s.landmarks, k)
	return nil
}

func (s *MemoryStore) SaveLandmarks(_ context.Context, id string, role model.Role, frames []model.LandmarkFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey{id, role}
	if _, ok := s.videos[k]; !ok {
		return notFound(string(role)+" video", id)
	}
	s.landmarks[k] = slices.Clone(frames)
	return nil
}

// Landmarks returns the stored frames in frame index order. A video without
// stored frames yields an empty slice.
func (s *MemoryStore) Landmarks(_ context.Context, id string, role model.Role) ([]model.LandmarkFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := recordKey{id, role}
	if _, ok := s.videos[k]; !ok {
		return nil, notFound(string(role)+" video", id)
	}
	out := slices.Clone(s.landmarks[k])
	if out == nil {
		out = make([]model.LandmarkFrame, 0)
	}
	slices.SortStableFunc(out, func(a, b model.LandmarkFrame) int { return a.FrameIndex - b.FrameIndex })
	return out, nil
}

func (s *MemoryStore) update(id string, role model.Role, fn func(v *model.VideoRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[recordKey{id, role}]
	if !ok {
		return notFound(string(role)+" video", id)
	}
	fn(v)
	return nil
}

func (s *MemoryStore) MarkLandmarksDone(_ context.Context, id string, role model.Role, count int) error {
	return s.update(id, role, func(v *model.VideoRecord) {
		v.LandmarkStatus = model.StatusDone
		v.LandmarkCount = count
	})
}

func (s *MemoryStore) MarkAnnotatedDone(_ context.Context, id string, role model.Role, path string) error {
	return s.update(id, role, func(v *model.VideoRecord) {
		v.AnnotatedStatus = model.StatusDone
		v.AnnotatedPath = path
	})
}

func (s *MemoryStore) ResetArtifacts(_ context.Context, id string, role model.Role) error {
	return s.update(id, role, func(v *model.VideoRecord) {
		v.LandmarkStatus = model.StatusPending
		v.LandmarkCount = 0
		v.AnnotatedStatus = model.StatusPending
		v.AnnotatedPath = ""
	})
}

func (s *MemoryStore) CreateComparison(_ context.Context, job *model.ComparisonJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comparisons[job.ID]; ok {
		return fmt.Errorf("comparison %s already exists", job.ID)
	}
	s.comparisons[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) UpdateComparison(_ context.Context, job *model.ComparisonJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comparisons[job.ID]; !ok {
		return notFound("comparison", job.ID)
	}
	s.comparisons[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetComparison(_ context.Context, id string) (*model.ComparisonJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.comparisons[id]
	if !ok {
		return nil, notFound("comparison", id)
	}
	return j.Clone(), nil
}

// ListComparisons returns up to limit jobs, newest first. limit <= 0 means all.
func (s *MemoryStore) ListComparisons(_ context.Context, limit int) ([]*model.ComparisonJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ComparisonJob, 0, len(s.comparisons))
	for _, j := range s.comparisons {
		out = append(out, j.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreateDate.Equal(out[j].CreateDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreateDate.After(out[j].CreateDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (*model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &model.Stats{Comparisons: len(s.comparisons)}
	for k := range s.videos {
		switch k.role {
		case model.RoleReference:
			st.ReferenceVideos++
		case model.RoleSubject:
			st.SubjectVideos++
		}
	}
	for _, frames := range s.landmarks {
		st.LandmarkFrames += len(frames)
	}
	return st, nil
}
