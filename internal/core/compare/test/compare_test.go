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

// Package compare_test contains unit tests for the frame-aligned comparison.
package compare_test

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/compare"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// shifted returns detected frames at the given indices, every joint moved by
// offset on all three axes.
func shifted(indices []int, offset float64) []model.LandmarkFrame {
	out := model.ExampleFrames("v", 30, indices)
	for i := range out {
		out[i].Pose = model.Detected(model.ExampleSkeleton(offset, 1))
	}
	return out
}

// partlyVisible returns a skeleton with the first visible joints at full
// visibility and the rest below the gate.
func partlyVisible(visible int) model.Skeleton {
	s := model.ExampleSkeleton(0, 1)
	for j := visible; j < model.JointCount; j++ {
		s[j].Visibility = 0.5
	}
	return s
}

func TestIdenticalSequences(t *testing.T) {
	frames := model.ExampleFrames("v", 30, model.StrideIndices(5, 50))
	diffs := compare.Compare(frames, frames, 0.3, compare.DefaultOptions())
	assert.Equal(t, 0, len(diffs))
}

func TestPairDistance(t *testing.T) {
	d, kind := compare.PairDistance(model.Detected(model.ExampleSkeleton(0, 1)), model.Detected(model.ExampleSkeleton(0.1, 1)), 0.7)
	assert.Equal(t, model.DistanceNumeric, kind)
	assert.InDelta(t, math.Sqrt(3)*0.1, d, 1e-9)

	d, kind = compare.PairDistance(model.NoDetection(), model.Detected(model.ExampleSkeleton(0, 1)), 0.7)
	assert.Equal(t, model.DistanceIncomparable, kind)
	assert.Equal(t, model.IncomparableDistance, d)
}

// TestThresholdIsStrict checks that a distance equal to the threshold is not
// a difference.
func TestThresholdIsStrict(t *testing.T) {
	ref := shifted([]int{0}, 0)
	subj := shifted([]int{0}, 0.1)
	d, _ := compare.PairDistance(ref[0].Pose, subj[0].Pose, compare.DefaultVisibilityGate)

	assert.Equal(t, 0, len(compare.Compare(ref, subj, d, compare.DefaultOptions())))
	assert.Equal(t, 1, len(compare.Compare(ref, subj, math.Nextafter(d, 0), compare.DefaultOptions())))
}

// TestVisibilityGate checks the 60% valid joint rule: 8 of 13 joints are
// enough, 7 are not, and a joint at exactly the gate does not count.
func TestVisibilityGate(t *testing.T) {
	base := model.Detected(model.ExampleSkeleton(0, 1))

	_, kind := compare.PairDistance(base, model.Detected(partlyVisible(8)), 0.7)
	assert.Equal(t, model.DistanceNumeric, kind)

	d, kind := compare.PairDistance(base, model.Detected(partlyVisible(7)), 0.7)
	assert.Equal(t, model.DistanceQualityDegraded, kind)
	assert.True(t, math.IsInf(d, 1))

	_, kind = compare.PairDistance(base, model.Detected(model.ExampleSkeleton(0, 0.7)), 0.7)
	assert.Equal(t, model.DistanceQualityDegraded, kind)
}

// TestFlaggedKinds checks that incomparable and quality degraded pairs are
// always reported, whatever the threshold.
func TestFlaggedKinds(t *testing.T) {
	ref := model.ExampleFrames("r", 30, []int{0, 5, 10, 15, 20})
	subj := model.ExampleFrames("s", 30, []int{0, 5, 10, 15, 20}, 15)
	subj[4].Pose = model.Detected(partlyVisible(3))

	diffs := compare.Compare(ref, subj, 100, compare.DefaultOptions())
	assert.Equal(t, 2, len(diffs))
	assert.Equal(t, 15, diffs[0].FrameIndex)
	assert.Equal(t, model.DistanceIncomparable, diffs[0].Kind)
	assert.Equal(t, model.IncomparableDistance, diffs[0].Distance)
	assert.Equal(t, 20, diffs[1].FrameIndex)
	assert.Equal(t, model.DistanceQualityDegraded, diffs[1].Kind)
	assert.Equal(t, 3.0, diffs[0].Timestamp)
	assert.Equal(t, 4.0, diffs[1].Timestamp)
}

// TestUnequalLengths pairs 21 reference frames with 17 subject frames; the
// trailing reference frames are ignored.
func TestUnequalLengths(t *testing.T) {
	ref := shifted(model.StrideIndices(5, 100), 0)
	subj := shifted(model.StrideIndices(5, 80), 0.1)
	assert.Equal(t, 21, len(ref))
	assert.Equal(t, 17, len(subj))

	diffs := compare.Compare(ref, subj, 0.1, compare.DefaultOptions())
	assert.Equal(t, 17, len(diffs))
	assert.Equal(t, 80, diffs[16].FrameIndex)
	assert.Equal(t, 80, diffs[16].ReferenceFrame)

	rows := compare.Align(ref, subj, 0.1, 30, compare.DefaultOptions())
	assert.Equal(t, 17, len(rows))
	assert.True(t, rows[0].HasDifference)
	assert.InDelta(t, 80.0/30, rows[16].Timestamp, 1e-9)
}

// TestDeterministic checks that unsorted input gives sorted, repeatable
// output and is left untouched.
func TestDeterministic(t *testing.T) {
	ref := model.ExampleFrames("r", 30, []int{10, 0, 5}, 5)
	subj := shifted([]int{5, 10, 0}, 0.2)
	before := slices.Clone(ref)

	first := compare.Compare(ref, subj, 0.1, compare.DefaultOptions())
	second := compare.Compare(ref, subj, 0.1, compare.DefaultOptions())
	assert.Equal(t, first, second)
	assert.Equal(t, before, ref)
	assert.Equal(t, []int{0, 5, 10}, []int{first[0].FrameIndex, first[1].FrameIndex, first[2].FrameIndex})
	assert.Equal(t, model.DistanceIncomparable, first[1].Kind)
}

func TestTimestamps(t *testing.T) {
	assert.Equal(t, 2.0, compare.DefaultOptions().Timestamp(10))

	opts := compare.OptionsFor(5, 25)
	assert.InDelta(t, 0.2, opts.SecondsPerSample, 1e-12)
	assert.InDelta(t, 0.4, opts.Timestamp(10), 1e-12)

	unknown := compare.OptionsFor(5, 0)
	assert.Equal(t, compare.DefaultSecondsPerSample, unknown.SecondsPerSample)
}
