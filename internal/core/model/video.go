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

// Package model defines the persistent and transient data structures shared by
// the extractor, the artifact cache, the comparison engine and the API layer.
//
// This file holds the video record: the row the metadata store keeps for every
// uploaded video together with the status of its derived artifacts.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role separates the two populations of videos. The same identity may never be
// shared across roles, but lookups are always keyed by (id, role).
type Role string

const (
	RoleReference Role = "reference"
	RoleSubject   Role = "subject"
)

// ParseRole converts user input (path segments, query parameters) to a Role.
// "user" is accepted as an alias of subject for older clients.
func ParseRole(in string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case string(RoleReference):
		return RoleReference, nil
	case string(RoleSubject), "user":
		return RoleSubject, nil
	}
	return "", fmt.Errorf("%w: unknown video role %q", ErrNotFound, in)
}

// ArtifactStatus tracks a derived artifact. Only the artifact cache writes it.
type ArtifactStatus string

const (
	StatusPending ArtifactStatus = "pending"
	StatusDone    ArtifactStatus = "done"
)

// VideoRecord is the metadata store row for one uploaded video.
type VideoRecord struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"file_path"`
	Duration    float64   `json:"duration"`
	FPS         float64   `json:"fps"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	HasAudio    bool      `json:"has_audio"`
	Title       string    `json:"title,omitempty"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`
	ReferenceID string    `json:"reference_video_id,omitempty"`
	CreateDate  time.Time `json:"create_date"`

	LandmarkStatus  ArtifactStatus `json:"landmark_status"`
	LandmarkCount   int            `json:"landmark_count"`
	AnnotatedStatus ArtifactStatus `json:"annotated_status"`
	AnnotatedPath   string         `json:"annotated_path,omitempty"`
}

// NewVideoRecord creates a record with a fresh random identity and both
// artifacts pending.
func NewVideoRecord(role Role, filename string) *VideoRecord {
	return &VideoRecord{
		ID:              uuid.NewString(),
		Role:            role,
		Filename:        filename,
		Tags:            make([]string, 0),
		CreateDate:      time.Now(),
		LandmarkStatus:  StatusPending,
		AnnotatedStatus: StatusPending,
	}
}

// Clone returns a deep copy so stores can hand out records without sharing
// the tag slice.
func (v *VideoRecord) Clone() *VideoRecord {
	if v == nil {
		return nil
	}
	out := *v
	out.Tags = append(make([]string, 0, len(v.Tags)), v.Tags...)
	return &out
}

// ParseTags splits a comma separated tag list, dropping blanks.
func ParseTags(in string) []string {
	out := make([]string, 0)
	for _, t := range strings.Split(in, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
