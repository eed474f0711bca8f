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
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

func TestWriteReportFile(t *testing.T) {
	ref := model.NewVideoRecord(model.RoleReference, "teacher.mp4")
	ref.Duration, ref.FPS = 12.5, 30
	subj := model.NewVideoRecord(model.RoleSubject, "me.mp4")
	subj.Duration, subj.FPS = 10, 25

	job := model.NewComparisonJob(ref.ID, subj.ID, 0.3)
	job.Complete([]model.FrameDifference{
		{FrameIndex: 15, ReferenceFrame: 15, Distance: 0.4567, Kind: model.DistanceNumeric, Timestamp: 0.6},
		{FrameIndex: 20, ReferenceFrame: 20, Distance: model.IncomparableDistance, Kind: model.DistanceIncomparable, Timestamp: 0.8},
		{FrameIndex: 25, ReferenceFrame: 25, Distance: math.Inf(1), Kind: model.DistanceQualityDegraded, Timestamp: 1.0},
	})

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := services.WriteReportFile(dir, job, ref, subj)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "comparison_"+job.ID+".txt"), path)

	raw, err := os.ReadFile(path)
	assert.NoError(t, err)
	report := string(raw)
	for _, want := range []string{
		"Reference video: teacher.mp4 (" + ref.ID + ")",
		"Subject duration: 10.00s, frame rate: 25.00 fps",
		"Difference threshold: 0.3",
		"Total differences: 3",
		"Frame 15: difference 0.457, timestamp 0.60s",
		"Frame 20: incomparable (no pose detected), timestamp 0.80s",
		"Frame 25: quality degraded (low landmark visibility), timestamp 1.00s",
	} {
		assert.That(t, strings.Contains(report, want))
	}
}

func TestComparisonThreshold(t *testing.T) {
	svc := &services.ComparisonService{DefaultThreshold: 0.3}

	got, err := svc.Threshold(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0.3, got)

	zero := 0.0
	got, err = svc.Threshold(&zero)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, got)

	for _, bad := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		_, err := svc.Threshold(&bad)
		assert.That(t, errors.Is(err, model.ErrInvalidArgument))
	}
}

func TestComparisonLookupsOfUnknownJob(t *testing.T) {
	svc := &services.ComparisonService{Store: services.NewMemoryStore()}
	ctx := context.Background()

	_, err := svc.Result(ctx, "missing")
	assert.That(t, errors.Is(err, model.ErrNotFound))
	_, err = svc.ReportPath(ctx, "missing")
	assert.That(t, errors.Is(err, model.ErrNotFound))
}
