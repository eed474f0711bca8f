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

// Package model - transient structures.
//
// These structs are built while a workflow runs and leave the process in
// another shape: the BigQuery row of an exported comparison, and the
// warm-up task handed to the worker pool.
package model

import "time"

// ComparisonExport is the BigQuery row written for every completed
// comparison and read back by the comparison history.
type ComparisonExport struct {
	JobID              string    `json:"job_id" bigquery:"job_id"`
	ReferenceID        string    `json:"reference_id" bigquery:"reference_id"`
	SubjectID          string    `json:"subject_id" bigquery:"subject_id"`
	Threshold          float64   `json:"threshold" bigquery:"threshold"`
	Status             string    `json:"status" bigquery:"status"`
	TotalDifferences   int       `json:"total_differences" bigquery:"total_differences"`
	IncomparableFrames int       `json:"incomparable_frames" bigquery:"incomparable_frames"`
	DegradedFrames     int       `json:"degraded_frames" bigquery:"degraded_frames"`
	AudioDegraded      bool      `json:"audio_degraded" bigquery:"audio_degraded"`
	CreateDate         time.Time `json:"create_date" bigquery:"create_date"`
}

// NewComparisonExport summarizes a job. Difference kinds are counted so the
// table can be queried without unpacking the difference list.
func NewComparisonExport(job *ComparisonJob) *ComparisonExport {
	out := &ComparisonExport{
		JobID:            job.ID,
		ReferenceID:      job.ReferenceID,
		SubjectID:        job.SubjectID,
		Threshold:        job.Threshold,
		Status:           string(job.Status),
		TotalDifferences: job.TotalDifferences,
		AudioDegraded:    job.AudioDegraded,
		CreateDate:       job.CreateDate,
	}
	for _, d := range job.Differences {
		switch d.Kind {
		case DistanceIncomparable:
			out.IncomparableFrames++
		case DistanceQualityDegraded:
			out.DegradedFrames++
		}
	}
	return out
}

// WarmupTask names one video whose artifacts should be built.
type WarmupTask struct {
	ID   string
	Role Role
}
