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
	"fmt"
	"log/slog"
	"math"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/compare"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// ComparisonService owns comparison jobs: their lifecycle in the store, the
// report file and the result payload. The comparison workflow drives it.
type ComparisonService struct {
	Store            Store
	Cache            *ArtifactCache
	ReportDir        string
	DefaultThreshold float64
	VisibilityGate   float64
	// SecondsPerSample is the time base used when a video has no frame rate.
	SecondsPerSample float64
	// Mirror is optional; when set, results carry signed URLs.
	Mirror *ArtifactMirror
}

// Threshold resolves the threshold of a request.
func (s *ComparisonService) Threshold(requested *float64) (float64, error) {
	if requested == nil {
		return s.DefaultThreshold, nil
	}
	t := *requested
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, fmt.Errorf("%w: threshold %v", model.ErrInvalidArgument, t)
	}
	return t, nil
}

// Options returns the comparison options for a subject video: the cache
// stride, the configured gate and a time base of stride / fps.
func (s *ComparisonService) Options(subject *model.VideoRecord) compare.Options {
	opts := compare.OptionsFor(s.Cache.Stride(), subject.FPS)
	if subject.FPS <= 0 && s.SecondsPerSample > 0 {
		opts.SecondsPerSample = s.SecondsPerSample
	}
	if s.VisibilityGate > 0 {
		opts.VisibilityGate = s.VisibilityGate
	}
	return opts
}

// Start validates a request, loads both videos and records a processing job.
func (s *ComparisonService) Start(ctx context.Context, req *model.ComparisonRequest) (*model.ComparisonJob, *model.VideoRecord, *model.VideoRecord, error) {
	threshold, err := s.Threshold(req.Threshold)
	if err != nil {
		return nil, nil, nil, err
	}
	ref, err := s.Store.Get(ctx, req.ReferenceID, model.RoleReference)
	if err != nil {
		return nil, nil, nil, err
	}
	subj, err := s.Store.Get(ctx, req.SubjectID, model.RoleSubject)
	if err != nil {
		return nil, nil, nil, err
	}
	job := model.NewComparisonJob(ref.ID, subj.ID, threshold)
	if err := s.Store.CreateComparison(ctx, job); err != nil {
		return nil, nil, nil, err
	}
	slog.InfoContext(ctx, "comparison started", "job_id", job.ID, "reference_id", ref.ID, "subject_id", subj.ID, "threshold", threshold)
	return job, ref, subj, nil
}

// Differences runs the comparison engine for a job.
func (s *ComparisonService) Differences(job *model.ComparisonJob, subject *model.VideoRecord, reference, subjectFrames []model.LandmarkFrame) []model.FrameDifference {
	return compare.Compare(reference, subjectFrames, job.Threshold, s.Options(subject))
}

// WriteReport renders the job's report into ReportDir.
func (s *ComparisonService) WriteReport(job *model.ComparisonJob, reference, subject *model.VideoRecord) (string, error) {
	return WriteReportFile(s.ReportDir, job, reference, subject)
}

// Complete persists a finished job.
func (s *ComparisonService) Complete(ctx context.Context, job *model.ComparisonJob) error {
	if err := s.Store.UpdateComparison(ctx, job); err != nil {
		return err
	}
	slog.InfoContext(ctx, "comparison completed", "job_id", job.ID, "total_differences", job.TotalDifferences)
	return nil
}

// Fail marks a job failed. The store write uses a context that outlives the
// request so a cancelled caller still leaves a terminal job behind.
func (s *ComparisonService) Fail(ctx context.Context, job *model.ComparisonJob, cause error) {
	job.Fail(cause)
	if err := s.Store.UpdateComparison(context.WithoutCancel(ctx), job); err != nil {
		slog.ErrorContext(ctx, "failed to record comparison failure", "job_id", job.ID, "error", err)
		return
	}
	slog.WarnContext(ctx, "comparison failed", "job_id", job.ID, "error", cause)
}

// Get returns a job.
func (s *ComparisonService) Get(ctx context.Context, id string) (*model.ComparisonJob, error) {
	return s.Store.GetComparison(ctx, id)
}

// List returns the most recent jobs.
func (s *ComparisonService) List(ctx context.Context, limit int) ([]*model.ComparisonJob, error) {
	return s.Store.ListComparisons(ctx, limit)
}

// Stats returns the store statistics.
func (s *ComparisonService) Stats(ctx context.Context) (*model.Stats, error) {
	return s.Store.Stats(ctx)
}

// AnnotatedURL is the API path serving a job's annotated video of a role.
func AnnotatedURL(jobID string, role model.Role) string {
	return fmt.Sprintf("/api/v1/comparisons/%s/annotated/%s", jobID, role)
}

// Result builds the payload of a job. Videos deleted since the comparison
// are reported with their id only.
func (s *ComparisonService) Result(ctx context.Context, id string) (*model.ComparisonResult, error) {
	job, err := s.Store.GetComparison(ctx, id)
	if err != nil {
		return nil, err
	}
	res := &model.ComparisonResult{
		JobID:  job.ID,
		Status: job.Status,
		Error:  job.Error,
		Comparison: model.ComparisonSummary{
			Threshold:        job.Threshold,
			TotalDifferences: job.TotalDifferences,
			Differences:      job.Differences,
		},
		AnnotatedVideos: map[model.Role]string{},
		AudioDegraded:   job.AudioDegraded,
		Reference:       model.VideoInfo{ID: job.ReferenceID},
		Subject:         model.VideoInfo{ID: job.SubjectID},
	}
	if ref, err := s.Store.Get(ctx, job.ReferenceID, model.RoleReference); err == nil {
		res.Reference = model.NewVideoInfo(ref)
	}
	if subj, err := s.Store.Get(ctx, job.SubjectID, model.RoleSubject); err == nil {
		res.Subject = model.NewVideoInfo(subj)
	}
	if job.Status != model.JobCompleted {
		return res, nil
	}

	res.AnnotatedVideos[model.RoleReference] = AnnotatedURL(job.ID, model.RoleReference)
	res.AnnotatedVideos[model.RoleSubject] = AnnotatedURL(job.ID, model.RoleSubject)
	if job.ReportPath != "" {
		res.ReportPath = fmt.Sprintf("/api/v1/comparisons/%s/report", job.ID)
	}
	if s.Mirror != nil {
		res.MirroredURLs = s.signedURLs(ctx, job)
	}
	return res, nil
}

func (s *ComparisonService) signedURLs(ctx context.Context, job *model.ComparisonJob) map[string]string {
	objects := map[string]string{
		"report":                    ReportObject(job.ID),
		string(model.RoleReference): AnnotatedObject(job.ReferenceID, model.RoleReference),
		string(model.RoleSubject):   AnnotatedObject(job.SubjectID, model.RoleSubject),
	}
	out := make(map[string]string, len(objects))
	for name, object := range objects {
		u, err := s.Mirror.SignedURL(ctx, object)
		if err != nil {
			slog.WarnContext(ctx, "failed to sign mirror url", "job_id", job.ID, "object", object, "error", err)
			continue
		}
		out[name] = u
	}
	return out
}

// ReportPath returns the report file of a completed job.
func (s *ComparisonService) ReportPath(ctx context.Context, id string) (string, error) {
	job, err := s.Store.GetComparison(ctx, id)
	if err != nil {
		return "", err
	}
	if job.ReportPath == "" || !cloud.FileExists(job.ReportPath) {
		return "", fmt.Errorf("%w: report of comparison %s", model.ErrNotFound, id)
	}
	return job.ReportPath, nil
}

// Frames returns one row per positional frame pair of a job, recomputed
// from the cached landmark sequences.
func (s *ComparisonService) Frames(ctx context.Context, id string) ([]model.FrameComparison, error) {
	job, err := s.Store.GetComparison(ctx, id)
	if err != nil {
		return nil, err
	}
	ref, err := s.Store.Get(ctx, job.ReferenceID, model.RoleReference)
	if err != nil {
		return nil, err
	}
	subj, err := s.Store.Get(ctx, job.SubjectID, model.RoleSubject)
	if err != nil {
		return nil, err
	}
	refFrames, err := s.Cache.EnsureLandmarks(ctx, ref.ID, model.RoleReference)
	if err != nil {
		return nil, err
	}
	subjFrames, err := s.Cache.EnsureLandmarks(ctx, subj.ID, model.RoleSubject)
	if err != nil {
		return nil, err
	}
	return compare.Align(refFrames, subjFrames, job.Threshold, ref.FPS, s.Options(subj)), nil
}

// AnnotatedPath returns the annotated video of one side of a job.
func (s *ComparisonService) AnnotatedPath(ctx context.Context, id string, role model.Role) (string, error) {
	job, err := s.Store.GetComparison(ctx, id)
	if err != nil {
		return "", err
	}
	videoID := job.ReferenceID
	if role == model.RoleSubject {
		videoID = job.SubjectID
	}
	out, err := s.Cache.EnsureAnnotatedVideo(ctx, videoID, role)
	if err != nil {
		return "", err
	}
	return out.Path, nil
}
