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

// Package media_test contains unit tests for ffprobe output parsing.
package media_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/media"
)

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, media.ParseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, media.ParseFrameRate("25/1"))
	assert.Equal(t, 24.0, media.ParseFrameRate("24"))
	assert.Equal(t, 0.0, media.ParseFrameRate("0/0"))
	assert.Equal(t, 0.0, media.ParseFrameRate(""))
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{
  "streams": [
    {"codec_type": "video", "width": 1280, "height": 720, "r_frame_rate": "30/1", "avg_frame_rate": "30/1", "nb_frames": "360", "duration": "12.000000"},
    {"codec_type": "audio"}
  ],
  "format": {"duration": "12.010000"}
}`)
	p, err := media.ParseProbe(data)
	assert.Nil(t, err)
	assert.Equal(t, 1280, p.Width)
	assert.Equal(t, 720, p.Height)
	assert.Equal(t, 30.0, p.FPS)
	assert.Equal(t, 360, p.FrameCount)
	assert.InDelta(t, 12.01, p.Duration, 1e-9)
	assert.True(t, p.HasAudio)
}

// TestParseProbeFallsBackToRealFrameRate covers containers that report no
// average frame rate.
func TestParseProbeFallsBackToRealFrameRate(t *testing.T) {
	data := []byte(`{"streams": [{"codec_type": "video", "width": 64, "height": 48, "avg_frame_rate": "0/0", "r_frame_rate": "25/1"}], "format": {"duration": "2.0"}}`)
	p, err := media.ParseProbe(data)
	assert.Nil(t, err)
	assert.Equal(t, 25.0, p.FPS)
	assert.Equal(t, 50, p.FrameCount)
	assert.False(t, p.HasAudio)
}

func TestParseProbeUnreadable(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"streams": [{"codec_type": "audio"}]}`,
		`{"streams": [{"codec_type": "video", "width": 64, "height": 48, "avg_frame_rate": "0/0", "r_frame_rate": "0/0"}]}`,
	} {
		_, err := media.ParseProbe([]byte(data))
		assert.True(t, errors.Is(err, model.ErrMediaUnreadable), data)
	}
}

// TestParseProbeRotation checks that portrait clips stored landscape with a
// display matrix report the dimensions ffmpeg decodes them at.
func TestParseProbeRotation(t *testing.T) {
	for _, tc := range []struct {
		name     string
		stream   string
		width    int
		height   int
		rotation int
	}{
		{"display matrix", `"side_data_list": [{"side_data_type": "Display Matrix", "rotation": -90}]`, 1080, 1920, 270},
		{"rotate tag", `"tags": {"rotate": "90"}`, 1080, 1920, 90},
		{"upside down", `"side_data_list": [{"rotation": 180}]`, 1920, 1080, 180},
		{"matrix wins over tag", `"tags": {"rotate": "90"}, "side_data_list": [{"rotation": 0}]`, 1920, 1080, 0},
		{"unrotated", `"side_data_list": [{"side_data_type": "CPB properties"}]`, 1920, 1080, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data := []byte(`{"streams": [{"codec_type": "video", "width": 1920, "height": 1080, "avg_frame_rate": "30/1", ` +
				tc.stream + `}], "format": {"duration": "1.0"}}`)
			p, err := media.ParseProbe(data)
			assert.Nil(t, err)
			assert.Equal(t, tc.width, p.Width)
			assert.Equal(t, tc.height, p.Height)
			assert.Equal(t, tc.rotation, p.Rotation)
		})
	}
}
