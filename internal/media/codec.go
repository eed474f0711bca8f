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

// Package media binds the media codec engine: probing containers, decoding
// them into RGBA frames, encoding frames back into a playable container and
// re-attaching an audio track.
//
// The production implementation drives the ffmpeg and ffprobe executables;
// tests substitute an in-memory Codec.
package media

import (
	"context"
	"image"
)

// Probe describes a video container.
type Probe struct {
	Width      int
	Height     int
	FPS        float64
	Duration   float64
	FrameCount int
	HasAudio   bool
	// Rotation is the display rotation in degrees, in [0, 360).
	Rotation int
}

// FrameReader yields decoded frames in order. Next returns io.EOF after the
// last frame.
type FrameReader interface {
	Next() (*image.RGBA, error)
	Close() error
}

// FrameWriter accepts frames for encoding. Close flushes and finalizes the
// container; the output is only valid after Close returns nil.
type FrameWriter interface {
	Write(frame *image.RGBA) error
	Close() error
}

// Codec is the media codec engine.
type Codec interface {
	// Probe reads container metadata. A container without a usable video
	// stream or frame rate fails with model.ErrMediaUnreadable.
	Probe(ctx context.Context, path string) (*Probe, error)
	// OpenFrames starts decoding path.
	OpenFrames(ctx context.Context, path string) (FrameReader, error)
	// CreateVideo starts encoding a silent video of the given geometry.
	CreateVideo(ctx context.Context, outputPath string, fps float64, width, height int) (FrameWriter, error)
	// MuxAudio copies the video stream of videoOnlyPath and the first audio
	// stream of audioSourcePath into outputPath.
	MuxAudio(ctx context.Context, videoOnlyPath, audioSourcePath, outputPath string) error
}
