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

// Package model - landmark types.
//
// A pose engine reports a fixed, ordered list of body points per detected
// person. Only 13 of them are tracked here; they are held in a plain fixed-size
// array indexed by Joint. A frame either carries a Skeleton or the explicit
// NoDetection value, which is stored and compared like any other frame.
package model

import (
	"encoding/json"
	"fmt"
)

// Joint indexes the tracked body points.
type Joint int

const (
	JointNose Joint = iota
	JointLeftShoulder
	JointRightShoulder
	JointLeftElbow
	JointRightElbow
	JointLeftWrist
	JointRightWrist
	JointLeftHip
	JointRightHip
	JointLeftKnee
	JointRightKnee
	JointLeftAnkle
	JointRightAnkle

	// JointCount is the number of tracked joints.
	JointCount = 13
)

// EngineLandmarkCount is the size of a full result from the pose engine.
const EngineLandmarkCount = 33

// jointNames is indexed by Joint.
var jointNames = [JointCount]string{
	"nose",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
}

// engineIndex maps each Joint to its index in a full 33-point engine result.
var engineIndex = [JointCount]int{0, 11, 12, 13, 14, 15, 16, 23, 24, 25, 26, 27, 28}

// String returns the snake case joint name.
func (j Joint) String() string {
	if j < 0 || int(j) >= JointCount {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return jointNames[j]
}

// EngineIndex returns the joint's position in a full engine result.
func (j Joint) EngineIndex() int {
	return engineIndex[j]
}

// Bones lists the skeleton segments drawn on annotated frames.
var Bones = [][2]Joint{
	{JointLeftShoulder, JointRightShoulder},
	{JointLeftShoulder, JointLeftElbow},
	{JointLeftElbow, JointLeftWrist},
	{JointRightShoulder, JointRightElbow},
	{JointRightElbow, JointRightWrist},
	{JointLeftShoulder, JointLeftHip},
	{JointRightShoulder, JointRightHip},
	{JointLeftHip, JointRightHip},
	{JointLeftHip, JointLeftKnee},
	{JointLeftKnee, JointLeftAnkle},
	{JointRightHip, JointRightKnee},
	{JointRightKnee, JointRightAnkle},
}

// Landmark is one point in normalized image coordinates with a visibility
// score in [0,1].
type Landmark struct {
	X          float64
	Y          float64
	Z          float64
	Visibility float64
}

// MarshalJSON encodes the landmark as a compact [x, y, z, visibility] tuple.
func (l Landmark) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{l.X, l.Y, l.Z, l.Visibility})
}

// UnmarshalJSON accepts the tuple form.
func (l *Landmark) UnmarshalJSON(data []byte) error {
	var v [4]float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	l.X, l.Y, l.Z, l.Visibility = v[0], v[1], v[2], v[3]
	return nil
}

// Skeleton holds the 13 tracked joints in Joint order.
type Skeleton [JointCount]Landmark

// SelectSkeleton reduces a pose engine result to the tracked joints. A full
// 33-point result is indexed by EngineIndex; a result that already has exactly
// JointCount points is taken as-is.
func SelectSkeleton(points []Landmark) (Skeleton, error) {
	var s Skeleton
	switch {
	case len(points) == JointCount:
		copy(s[:], points)
	case len(points) > engineIndex[JointRightAnkle]:
		for j := Joint(0); j < JointCount; j++ {
			s[j] = points[engineIndex[j]]
		}
	default:
		return s, fmt.Errorf("pose result has %d points, need %d or at least %d",
			len(points), JointCount, engineIndex[JointRightAnkle]+1)
	}
	return s, nil
}

// Pose is the per-frame tagged value: Detected(skeleton) or NoDetection.
// The zero value is NoDetection.
type Pose struct {
	detected bool
	skeleton Skeleton
}

// Detected wraps a skeleton.
func Detected(s Skeleton) Pose {
	return Pose{detected: true, skeleton: s}
}

// NoDetection is the sentinel for a sampled frame in which the engine found
// nobody.
func NoDetection() Pose {
	return Pose{}
}

// IsDetected reports whether the frame carries a skeleton.
func (p Pose) IsDetected() bool {
	return p.detected
}

// Skeleton returns the joints and true for a detection, or false for the
// sentinel.
func (p Pose) Skeleton() (Skeleton, bool) {
	return p.skeleton, p.detected
}

type poseJSON struct {
	Detected  bool       `json:"detected"`
	Landmarks []Landmark `json:"landmarks,omitempty"`
}

// MarshalJSON writes {"detected":false} for the sentinel and the 13 points
// otherwise.
func (p Pose) MarshalJSON() ([]byte, error) {
	if !p.detected {
		return json.Marshal(poseJSON{})
	}
	return json.Marshal(poseJSON{Detected: true, Landmarks: p.skeleton[:]})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var in poseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !in.Detected {
		*p = NoDetection()
		return nil
	}
	if len(in.Landmarks) != JointCount {
		return fmt.Errorf("detected pose has %d landmarks, want %d", len(in.Landmarks), JointCount)
	}
	var s Skeleton
	copy(s[:], in.Landmarks)
	*p = Detected(s)
	return nil
}

// LandmarkFrame is one sampled frame of a video. FrameIndex counts decoded
// frames from zero; Timestamp is in seconds.
type LandmarkFrame struct {
	VideoID    string  `json:"video_id"`
	FrameIndex int     `json:"frame_index"`
	Pose       Pose    `json:"pose"`
	Timestamp  float64 `json:"timestamp"`
}
