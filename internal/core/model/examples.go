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

// Package model - example values.
//
// Factories for well-formed skeletons and landmark sequences. Tests and the
// fake pose engine use them to build inputs with known distances.
package model

// ExampleSkeleton returns a standing pose: joints spread over the frame,
// every coordinate shifted by offset, every joint at the given visibility.
func ExampleSkeleton(offset, visibility float64) Skeleton {
	var s Skeleton
	for j := range s {
		s[j] = Landmark{
			X:          0.3 + 0.03*float64(j) + offset,
			Y:          0.1 + 0.06*float64(j) + offset,
			Z:          offset,
			Visibility: visibility,
		}
	}
	return s
}

// ExampleFrames returns a sequence with a detected ExampleSkeleton(0, 1) at
// each index. Indices listed in missing get the NoDetection sentinel.
func ExampleFrames(videoID string, fps float64, indices []int, missing ...int) []LandmarkFrame {
	skip := make(map[int]bool, len(missing))
	for _, m := range missing {
		skip[m] = true
	}
	out := make([]LandmarkFrame, 0, len(indices))
	for _, i := range indices {
		pose := Detected(ExampleSkeleton(0, 1))
		if skip[i] {
			pose = NoDetection()
		}
		ts := 0.0
		if fps > 0 {
			ts = float64(i) / fps
		}
		out = append(out, LandmarkFrame{VideoID: videoID, FrameIndex: i, Pose: pose, Timestamp: ts})
	}
	return out
}

// StrideIndices returns 0, stride, 2*stride, ... up to and including last.
func StrideIndices(stride, last int) []int {
	out := make([]int, 0, last/stride+1)
	for i := 0; i <= last; i += stride {
		out = append(out, i)
	}
	return out
}
