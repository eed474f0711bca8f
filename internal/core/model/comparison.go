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

// Package model - comparison types.
//
// A ComparisonJob is created in the processing state when a comparison is
// requested and moves exactly once to completed or failed. Completed jobs are
// immutable; the report and the annotated-video endpoints read them later.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the comparison lifecycle.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// DistanceKind classifies a frame pair's distance.
type DistanceKind string

const (
	// DistanceNumeric is a regular mean joint distance.
	DistanceNumeric DistanceKind = "numeric"
	// DistanceIncomparable means one of the frames had no detection. The
	// distance value is IncomparableDistance.
	DistanceIncomparable DistanceKind = "incomparable"
	// DistanceQualityDegraded means too few joints passed the visibility gate.
	// The distance value is positive infinity.
	DistanceQualityDegraded DistanceKind = "quality_degraded"
)

// IncomparableDistance is the sentinel distance of an incomparable pair.
const IncomparableDistance = -1.0

// QualityDegradedDistance is the sentinel distance of a quality-degraded pair.
func QualityDegradedDistance() float64 {
	return math.Inf(1)
}

// KindOf recovers the kind from a sentinel-encoded distance.
func KindOf(distance float64) DistanceKind {
	switch {
	case math.IsInf(distance, 1):
		return DistanceQualityDegraded
	case distance == IncomparableDistance:
		return DistanceIncomparable
	}
	return DistanceNumeric
}

// encodeDistance renders the distance for JSON; infinity has no JSON number
// so it is written as null and recovered from the kind on decode.
func encodeDistance(d float64) *float64 {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return nil
	}
	return &d
}

func decodeDistance(d *float64, kind DistanceKind) float64 {
	switch {
	case kind == DistanceQualityDegraded:
		return QualityDegradedDistance()
	case kind == DistanceIncomparable:
		return IncomparableDistance
	case d == nil:
		return QualityDegradedDistance()
	}
	return *d
}

// FrameDifference is one flagged entry of a comparison. FrameIndex is the
// subject frame index, ReferenceFrame the reference frame it was paired with.
type FrameDifference struct {
	FrameIndex     int
	ReferenceFrame int
	Distance       float64
	Kind           DistanceKind
	Timestamp      float64
}

type frameDifferenceJSON struct {
	FrameIndex     int          `json:"frame_index"`
	ReferenceFrame int          `json:"reference_frame"`
	Difference     *float64     `json:"difference"`
	Status         DistanceKind `json:"status"`
	Timestamp      float64      `json:"timestamp"`
}

// MarshalJSON writes the distance as a number, or null for the infinite
// sentinel.
func (f FrameDifference) MarshalJSON() ([]byte, error) {
	return json.Marshal(frameDifferenceJSON{
		FrameIndex:     f.FrameIndex,
		ReferenceFrame: f.ReferenceFrame,
		Difference:     encodeDistance(f.Distance),
		Status:         f.Kind,
		Timestamp:      f.Timestamp,
	})
}

// UnmarshalJSON restores sentinel distances from the status field.
func (f *FrameDifference) UnmarshalJSON(data []byte) error {
	var in frameDifferenceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*f = FrameDifference{
		FrameIndex:     in.FrameIndex,
		ReferenceFrame: in.ReferenceFrame,
		Distance:       decodeDistance(in.Difference, in.Status),
		Kind:           in.Status,
		Timestamp:      in.Timestamp,
	}
	return nil
}

// Describe renders the distance for the text report.
func (f FrameDifference) Describe() string {
	switch f.Kind {
	case DistanceIncomparable:
		return "incomparable (no pose detected)"
	case DistanceQualityDegraded:
		return "quality degraded (low landmark visibility)"
	}
	return fmt.Sprintf("difference %.3f", f.Distance)
}

// FrameComparison is one row of the full per-pair table, flagged or not.
type FrameComparison struct {
	Position       int
	ReferenceFrame int
	SubjectFrame   int
	Timestamp      float64
	Distance       float64
	Kind           DistanceKind
	HasDifference  bool
}

type frameComparisonJSON struct {
	Position         int          `json:"frame_index"`
	ReferenceFrame   int          `json:"reference_frame"`
	SubjectFrame     int          `json:"user_frame"`
	Timestamp        float64      `json:"timestamp"`
	Difference       *float64     `json:"difference"`
	Status           DistanceKind `json:"status"`
	HasDifference    bool         `json:"has_difference"`
	HasPoseData      bool         `json:"has_pose_data"`
	PoseQualityIssue bool         `json:"pose_quality_issue"`
}

// MarshalJSON adds the derived has_pose_data / pose_quality_issue flags.
func (f FrameComparison) MarshalJSON() ([]byte, error) {
	return json.Marshal(frameComparisonJSON{
		Position:         f.Position,
		ReferenceFrame:   f.ReferenceFrame,
		SubjectFrame:     f.SubjectFrame,
		Timestamp:        f.Timestamp,
		Difference:       encodeDistance(f.Distance),
		Status:           f.Kind,
		HasDifference:    f.HasDifference,
		HasPoseData:      f.Kind != DistanceIncomparable,
		PoseQualityIssue: f.Kind == DistanceQualityDegraded,
	})
}

// ComparisonRequest is the input of a comparison.
type ComparisonRequest struct {
	ReferenceID string   `json:"reference_video_id" form:"reference_video_id" binding:"required"`
	SubjectID   string   `json:"subject_video_id" form:"subject_video_id" binding:"required"`
	Threshold   *float64 `json:"threshold,omitempty" form:"threshold"`
}

// ComparisonJob is the persisted comparison.
type ComparisonJob struct {
	ID               string            `json:"id"`
	ReferenceID      string            `json:"reference_video_id"`
	SubjectID        string            `json:"subject_video_id"`
	Threshold        float64           `json:"threshold"`
	Status           JobStatus         `json:"status"`
	Differences      []FrameDifference `json:"differences"`
	TotalDifferences int               `json:"total_differences"`
	ReportPath       string            `json:"report_path,omitempty"`
	AudioDegraded    bool              `json:"audio_degraded"`
	Error            string            `json:"error,omitempty"`
	CreateDate       time.Time         `json:"create_date"`
	CompleteDate     *time.Time        `json:"complete_date,omitempty"`
}

// NewComparisonJob creates a processing job.
func NewComparisonJob(referenceID, subjectID string, threshold float64) *ComparisonJob {
	return &ComparisonJob{
		ID:          uuid.NewString(),
		ReferenceID: referenceID,
		SubjectID:   subjectID,
		Threshold:   threshold,
		Status:      JobProcessing,
		Differences: make([]FrameDifference, 0),
		CreateDate:  time.Now(),
	}
}

// Complete moves the job to completed with its differences.
func (j *ComparisonJob) Complete(diffs []FrameDifference) {
	now := time.Now()
	j.Differences = diffs
	j.TotalDifferences = len(diffs)
	j.Status = JobCompleted
	j.CompleteDate = &now
}

// Fail moves the job to failed and records the cause.
func (j *ComparisonJob) Fail(err error) {
	now := time.Now()
	j.Status = JobFailed
	j.Error = err.Error()
	j.CompleteDate = &now
}

// Clone deep-copies the job.
func (j *ComparisonJob) Clone() *ComparisonJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Differences = append(make([]FrameDifference, 0, len(j.Differences)), j.Differences...)
	if j.CompleteDate != nil {
		t := *j.CompleteDate
		out.CompleteDate = &t
	}
	return &out
}

// AnnotatedVideo is the output of an annotate run.
type AnnotatedVideo struct {
	Path     string `json:"path"`
	HasAudio bool   `json:"has_audio"`
	// Degraded is set when the audio mux failed and the silent render was kept.
	Degraded bool `json:"degraded"`
}

// VideoInfo is the per-video section of a comparison result.
type VideoInfo struct {
	ID             string  `json:"id"`
	Filename       string  `json:"filename"`
	Duration       float64 `json:"duration"`
	FPS            float64 `json:"fps"`
	LandmarkFrames int     `json:"pose_frames"`
}

// NewVideoInfo summarizes a record.
func NewVideoInfo(v *VideoRecord) VideoInfo {
	return VideoInfo{ID: v.ID, Filename: v.Filename, Duration: v.Duration, FPS: v.FPS, LandmarkFrames: v.LandmarkCount}
}

// ComparisonSummary is the comparison section of a result.
type ComparisonSummary struct {
	Threshold        float64           `json:"threshold"`
	TotalDifferences int               `json:"total_differences"`
	Differences      []FrameDifference `json:"differences"`
}

// ComparisonResult is the JSON payload handed back for a job.
type ComparisonResult struct {
	JobID           string            `json:"work_id"`
	Status          JobStatus         `json:"status"`
	Error           string            `json:"error,omitempty"`
	Reference       VideoInfo         `json:"reference_video"`
	Subject         VideoInfo         `json:"user_video"`
	Comparison      ComparisonSummary `json:"comparison"`
	AnnotatedVideos map[Role]string   `json:"pose_videos"`
	ReportPath      string            `json:"report_path,omitempty"`
	AudioDegraded   bool              `json:"audio_degraded"`
	MirroredURLs    map[string]string `json:"mirrored_urls,omitempty"`
}

// Stats is the store summary served by /stats.
type Stats struct {
	ReferenceVideos int `json:"reference_videos"`
	SubjectVideos   int `json:"user_videos"`
	Comparisons     int `json:"comparisons"`
	LandmarkFrames  int `json:"pose_frames"`
}
