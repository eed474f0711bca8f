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

// Package compare implements the frame-aligned comparison of two landmark
// sequences.
//
// Logic Flow:
//  1. Both sequences are copied and sorted by frame index.
//  2. Frames are paired positionally: the i-th reference frame with the i-th
//     subject frame, for i in [0, min(len(ref), len(subj))). Trailing frames of
//     the longer sequence are ignored. Positional pairing assumes both videos
//     were sampled with the same stride.
//  3. Each pair gets a distance: the mean 3D euclidean distance over the joints
//     whose visibility exceeds the gate on both sides. A pair with a missing
//     detection is incomparable (-1); a pair with fewer than 60% of the joints
//     over the gate is quality degraded (+Inf).
//  4. Pairs with a distance strictly above the threshold, plus every
//     incomparable and quality-degraded pair, are reported in index order.
//
// Everything in this package is a pure function of its inputs.
package compare

import (
	"math"
	"sort"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

const (
	// DefaultVisibilityGate is the visibility a joint must exceed on both
	// frames to be measured.
	DefaultVisibilityGate = 0.7
	// MinValidJointRatio is the fraction of joints that must pass the gate.
	MinValidJointRatio = 0.6
	// DefaultStride is the keyframe sampling interval.
	DefaultStride = 5
	// DefaultSecondsPerSample is used when the frame rate is unknown.
	DefaultSecondsPerSample = 1.0
)

// Options tunes a comparison. The zero value is replaced by the defaults.
type Options struct {
	VisibilityGate float64
	// Stride is the sampling interval the sequences were extracted with.
	Stride int
	// SecondsPerSample is the time between two sampled frames.
	SecondsPerSample float64
}

// DefaultOptions returns the gate and stride defaults with a time base of
// DefaultSecondsPerSample.
func DefaultOptions() Options {
	return Options{
		VisibilityGate:   DefaultVisibilityGate,
		Stride:           DefaultStride,
		SecondsPerSample: DefaultSecondsPerSample,
	}
}

// OptionsFor derives the time base from a video frame rate: one sample spans
// stride frames.
func OptionsFor(stride int, fps float64) Options {
	o := DefaultOptions()
	if stride > 0 {
		o.Stride = stride
	}
	if fps > 0 {
		o.SecondsPerSample = float64(o.Stride) / fps
	}
	return o
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.VisibilityGate <= 0 {
		o.VisibilityGate = d.VisibilityGate
	}
	if o.Stride <= 0 {
		o.Stride = d.Stride
	}
	if o.SecondsPerSample <= 0 {
		o.SecondsPerSample = d.SecondsPerSample
	}
	return o
}

// Timestamp converts a frame index to seconds on the sampling time base.
func (o Options) Timestamp(frameIndex int) float64 {
	o = o.normalized()
	return float64(frameIndex) / float64(o.Stride) * o.SecondsPerSample
}

// PairDistance scores one frame pair. The returned distance is the mean joint
// distance, IncomparableDistance, or +Inf, matching the returned kind.
func PairDistance(reference, subject model.Pose, visibilityGate float64) (float64, model.DistanceKind) {
	ref, ok := reference.Skeleton()
	if !ok {
		return model.IncomparableDistance, model.DistanceIncomparable
	}
	subj, ok := subject.Skeleton()
	if !ok {
		return model.IncomparableDistance, model.DistanceIncomparable
	}

	var total float64
	valid := 0
	for j := range ref {
		a, b := ref[j], subj[j]
		if a.Visibility > visibilityGate && b.Visibility > visibilityGate {
			dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
			total += math.Sqrt(dx*dx + dy*dy + dz*dz)
			valid++
		}
	}
	if valid == 0 || float64(valid) < MinValidJointRatio*float64(model.JointCount) {
		return model.QualityDegradedDistance(), model.DistanceQualityDegraded
	}
	return total / float64(valid), model.DistanceNumeric
}

func sorted(frames []model.LandmarkFrame) []model.LandmarkFrame {
	out := make([]model.LandmarkFrame, len(frames))
	copy(out, frames)
	sort.SliceStable(out, func(i, j int) bool { return out[i].FrameIndex < out[j].FrameIndex })
	return out
}

// flagged reports whether a pair belongs in the difference list.
func flagged(distance float64, kind model.DistanceKind, threshold float64) bool {
	if kind != model.DistanceNumeric {
		return true
	}
	return distance > threshold
}

// Compare returns the flagged frame pairs in index order. Inputs are not
// modified.
func Compare(reference, subject []model.LandmarkFrame, threshold float64, opts Options) []model.FrameDifference {
	opts = opts.normalized()
	ref, subj := sorted(reference), sorted(subject)
	n := min(len(ref), len(subj))

	out := make([]model.FrameDifference, 0)
	for i := 0; i < n; i++ {
		d, kind := PairDistance(ref[i].Pose, subj[i].Pose, opts.VisibilityGate)
		if !flagged(d, kind, threshold) {
			continue
		}
		out = append(out, model.FrameDifference{
			FrameIndex:     subj[i].FrameIndex,
			ReferenceFrame: ref[i].FrameIndex,
			Distance:       d,
			Kind:           kind,
			Timestamp:      opts.Timestamp(subj[i].FrameIndex),
		})
	}
	return out
}

// Align returns one row per positional pair, flagged or not. Timestamps follow
// the reference video: referenceFrame / referenceFPS, or the sampling time base
// when the frame rate is unknown.
func Align(reference, subject []model.LandmarkFrame, threshold, referenceFPS float64, opts Options) []model.FrameComparison {
	opts = opts.normalized()
	ref, subj := sorted(reference), sorted(subject)
	n := min(len(ref), len(subj))

	out := make([]model.FrameComparison, 0, n)
	for i := 0; i < n; i++ {
		d, kind := PairDistance(ref[i].Pose, subj[i].Pose, opts.VisibilityGate)
		ts := opts.Timestamp(ref[i].FrameIndex)
		if referenceFPS > 0 {
			ts = float64(ref[i].FrameIndex) / referenceFPS
		}
		out = append(out, model.FrameComparison{
			Position:       i,
			ReferenceFrame: ref[i].FrameIndex,
			SubjectFrame:   subj[i].FrameIndex,
			Timestamp:      ts,
			Distance:       d,
			Kind:           kind,
			HasDifference:  flagged(d, kind, threshold),
		})
	}
	return out
}
