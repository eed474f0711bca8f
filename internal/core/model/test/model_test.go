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

// Package model_test contains unit tests for the data models: roles, tags,
// the landmark and pose types and the comparison job lifecycle.
package model_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

func TestParseRole(t *testing.T) {
	r, err := model.ParseRole("Reference")
	assert.Nil(t, err)
	assert.Equal(t, model.RoleReference, r)

	r, err = model.ParseRole("user")
	assert.Nil(t, err)
	assert.Equal(t, model.RoleSubject, r)

	_, err = model.ParseRole("teacher")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"salsa", "beginner"}, model.ParseTags(" salsa, ,beginner ,"))
	assert.Equal(t, 0, len(model.ParseTags("")))
}

func TestNewVideoRecord(t *testing.T) {
	v := model.NewVideoRecord(model.RoleReference, "clip.mp4")
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, model.StatusPending, v.LandmarkStatus)
	assert.Equal(t, model.StatusPending, v.AnnotatedStatus)
	assert.WithinDuration(t, time.Now(), v.CreateDate, time.Second)

	v.Tags = append(v.Tags, "a")
	c := v.Clone()
	c.Tags[0] = "b"
	assert.Equal(t, "a", v.Tags[0])
}

// TestSelectSkeleton checks both engine result shapes and the rejection of
// short results.
func TestSelectSkeleton(t *testing.T) {
	full := make([]model.Landmark, model.EngineLandmarkCount)
	for i := range full {
		full[i] = model.Landmark{X: float64(i)}
	}
	s, err := model.SelectSkeleton(full)
	assert.Nil(t, err)
	assert.Equal(t, 0.0, s[model.JointNose].X)
	assert.Equal(t, 11.0, s[model.JointLeftShoulder].X)
	assert.Equal(t, 28.0, s[model.JointRightAnkle].X)

	reduced := model.ExampleSkeleton(0, 1)
	s, err = model.SelectSkeleton(reduced[:])
	assert.Nil(t, err)
	assert.Equal(t, reduced, s)

	_, err = model.SelectSkeleton(full[:20])
	assert.NotNil(t, err)
}

// TestPoseSentinel checks that a frame without a detection survives a JSON
// round trip as the sentinel and is distinct from a detection.
func TestPoseSentinel(t *testing.T) {
	frames := model.ExampleFrames("v1", 30, []int{0, 5}, 5)
	data, err := json.Marshal(frames)
	assert.Nil(t, err)

	var back []model.LandmarkFrame
	assert.Nil(t, json.Unmarshal(data, &back))
	assert.Equal(t, 2, len(back))
	assert.True(t, back[0].Pose.IsDetected())
	assert.False(t, back[1].Pose.IsDetected())
	assert.Equal(t, 5, back[1].FrameIndex)

	s, ok := back[0].Pose.Skeleton()
	assert.True(t, ok)
	assert.Equal(t, model.ExampleSkeleton(0, 1), s)

	var bad model.Pose
	assert.NotNil(t, json.Unmarshal([]byte(`{"detected":true,"landmarks":[[0,0,0,1]]}`), &bad))
}

// TestFrameDifferenceJSON checks that the infinite distance of a quality
// degraded frame is written as null and restored from the status.
func TestFrameDifferenceJSON(t *testing.T) {
	in := model.FrameDifference{
		FrameIndex: 20,
		Distance:   model.QualityDegradedDistance(),
		Kind:       model.DistanceQualityDegraded,
		Timestamp:  4,
	}
	data, err := json.Marshal(in)
	assert.Nil(t, err)
	assert.Contains(t, string(data), `"difference":null`)
	assert.Contains(t, string(data), `"status":"quality_degraded"`)

	var out model.FrameDifference
	assert.Nil(t, json.Unmarshal(data, &out))
	assert.True(t, math.IsInf(out.Distance, 1))
	assert.Equal(t, model.DistanceQualityDegraded, model.KindOf(out.Distance))
	assert.Equal(t, model.DistanceIncomparable, model.KindOf(model.IncomparableDistance))
	assert.Equal(t, model.DistanceNumeric, model.KindOf(0.25))
}

func TestComparisonJobLifecycle(t *testing.T) {
	job := model.NewComparisonJob("ref", "subj", 0.3)
	assert.Equal(t, model.JobProcessing, job.Status)
	assert.Nil(t, job.CompleteDate)

	job.Complete([]model.FrameDifference{{FrameIndex: 10, Distance: 0.5, Kind: model.DistanceNumeric}})
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 1, job.TotalDifferences)
	assert.NotNil(t, job.CompleteDate)

	clone := job.Clone()
	clone.Differences[0].FrameIndex = 99
	assert.Equal(t, 10, job.Differences[0].FrameIndex)

	failed := model.NewComparisonJob("ref", "subj", 0.3)
	failed.Fail(errors.New("boom"))
	assert.Equal(t, model.JobFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}
