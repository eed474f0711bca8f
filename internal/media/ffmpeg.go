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

package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

const (
	DefaultFfmpegCommand  = "ffmpeg"
	DefaultFfprobeCommand = "ffprobe"

	// ProbeArgs asks ffprobe for every stream and the container format as JSON.
	ProbeArgs = "-v error -show_streams -show_format -of json"
	// DecodeArgs pipes raw RGBA frames to stdout.
	DecodeArgs = "-v error -i %s -f rawvideo -pix_fmt rgba -"
	// EncodeArgs reads raw RGBA frames from stdin. The scale filter keeps the
	// dimensions even, which yuv420p requires.
	EncodeArgs = "-v error -y -f rawvideo -pix_fmt rgba -s %dx%d -r %s -i - -vf scale=trunc(iw/2)*2:trunc(ih/2)*2 -c:v libx264 -pix_fmt yuv420p -movflags +faststart %s"
	// MuxArgs copies the video stream and re-encodes the first audio stream of
	// the second input.
	MuxArgs = "-v error -y -i %s -i %s -c:v copy -c:a aac -map 0:v:0 -map 1:a:0 -shortest %s"

	CommandSeparator = " "
)

// FFmpegCodec implements Codec with the ffmpeg command line tools. Paths are
// passed as single arguments, so they may contain spaces.
type FFmpegCodec struct {
	FfmpegPath  string
	FfprobePath string
}

// NewFFmpegCodec falls back to the executables on PATH for empty arguments.
func NewFFmpegCodec(ffmpegPath, ffprobePath string) *FFmpegCodec {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = DefaultFfmpegCommand
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = DefaultFfprobeCommand
	}
	return &FFmpegCodec{FfmpegPath: ffmpegPath, FfprobePath: ffprobePath}
}

// splitArgs expands an argument template. Placeholders are substituted after
// splitting so that values are never split themselves.
func splitArgs(template string, values ...string) []string {
	parts := strings.Split(template, CommandSeparator)
	next := 0
	for i, p := range parts {
		if strings.Contains(p, "%") && next < len(values) {
			count := strings.Count(p, "%")
			args := make([]any, 0, count)
			for k := 0; k < count && next < len(values); k++ {
				args = append(args, values[next])
				next++
			}
			parts[i] = fmt.Sprintf(strings.NewReplacer("%d", "%s").Replace(p), args...)
		}
	}
	return parts
}

type ffprobeSideData struct {
	Rotation *float64 `json:"rotation"`
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []ffprobeSideData `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseFrameRate converts ffprobe rationals ("30000/1001") and decimals.
func ParseFrameRate(in string) float64 {
	num, den, ok := strings.Cut(in, "/")
	if !ok {
		v, _ := strconv.ParseFloat(in, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// displayRotation returns the stream rotation in degrees, normalised to
// [0, 360). The display matrix wins over the legacy rotate tag.
func displayRotation(sideData []ffprobeSideData, rotateTag string) int {
	deg := 0
	found := false
	for _, sd := range sideData {
		if sd.Rotation != nil {
			deg = int(math.Round(*sd.Rotation))
			found = true
			break
		}
	}
	if !found {
		deg, _ = strconv.Atoi(strings.TrimSpace(rotateTag))
	}
	return ((deg % 360) + 360) % 360
}

// ParseProbe converts ffprobe JSON into a Probe. Width and Height are the
// display dimensions: ffmpeg rotates frames upright on decode, so streams
// rotated by 90 or 270 degrees report their stored dimensions swapped.
func ParseProbe(data []byte) (*Probe, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: invalid probe output: %v", model.ErrMediaUnreadable, err)
	}
	p := &Probe{}
	video := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if video {
				continue
			}
			video = true
			p.Width, p.Height = s.Width, s.Height
			p.Rotation = displayRotation(s.SideDataList, s.Tags.Rotate)
			if p.Rotation == 90 || p.Rotation == 270 {
				p.Width, p.Height = p.Height, p.Width
			}
			p.FPS = ParseFrameRate(s.AvgFrameRate)
			if p.FPS <= 0 {
				p.FPS = ParseFrameRate(s.RFrameRate)
			}
			p.FrameCount, _ = strconv.Atoi(s.NbFrames)
			p.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		case "audio":
			p.HasAudio = true
		}
	}
	if !video || p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: no video stream", model.ErrMediaUnreadable)
	}
	if p.FPS <= 0 {
		return nil, fmt.Errorf("%w: invalid frame rate", model.ErrMediaUnreadable)
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && d > 0 {
		p.Duration = d
	}
	if p.FrameCount == 0 && p.Duration > 0 {
		p.FrameCount = int(p.Duration * p.FPS)
	}
	return p, nil
}

// Probe runs ffprobe on path.
func (c *FFmpegCodec) Probe(ctx context.Context, path string) (*Probe, error) {
	args := append(strings.Split(ProbeArgs, CommandSeparator), path)
	cmd := exec.CommandContext(ctx, c.FfprobePath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %v: %s", model.ErrMediaUnreadable, path, err, strings.TrimSpace(stderr.String()))
	}
	return ParseProbe(out)
}

type ffmpegFrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	width  int
	height int
	done   bool
}

// OpenFrames probes path for its geometry and starts an ffmpeg decoder.
func (c *FFmpegCodec) OpenFrames(ctx context.Context, path string) (FrameReader, error) {
	probe, err := c.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	r := &ffmpegFrameReader{width: probe.Width, height: probe.Height}
	r.cmd = exec.CommandContext(ctx, c.FfmpegPath, splitArgs(DecodeArgs, path)...)
	r.cmd.Stderr = &r.stderr
	if r.stdout, err = r.cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMediaUnreadable, err)
	}
	if err = r.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", model.ErrMediaUnreadable, err)
	}
	return r, nil
}

func (r *ffmpegFrameReader) Next() (*image.RGBA, error) {
	if r.done {
		return nil, io.EOF
	}
	frame := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	if _, err := io.ReadFull(r.stdout, frame.Pix); err != nil {
		r.done = true
		if errors.Is(err, io.EOF) {
			if werr := r.cmd.Wait(); werr != nil {
				return nil, fmt.Errorf("%w: ffmpeg decode: %v: %s", model.ErrMediaUnreadable, werr, strings.TrimSpace(r.stderr.String()))
			}
			r.cmd = nil
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated frame: %v", model.ErrMediaUnreadable, err)
	}
	return frame, nil
}

func (r *ffmpegFrameReader) Close() error {
	if r.cmd == nil {
		return nil
	}
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	r.cmd = nil
	return nil
}

type ffmpegFrameWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	width  int
	height int
	row    []byte
}

// CreateVideo starts an H.264 encoder writing to outputPath.
func (c *FFmpegCodec) CreateVideo(ctx context.Context, outputPath string, fps float64, width, height int) (FrameWriter, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("invalid output geometry %dx%d@%.3f", width, height, fps)
	}
	w := &ffmpegFrameWriter{width: width, height: height, row: make([]byte, width*4)}
	args := splitArgs(EncodeArgs, strconv.Itoa(width), strconv.Itoa(height),
		strconv.FormatFloat(fps, 'f', -1, 64), outputPath)
	w.cmd = exec.CommandContext(ctx, c.FfmpegPath, args...)
	w.cmd.Stderr = &w.stderr
	var err error
	if w.stdin, err = w.cmd.StdinPipe(); err != nil {
		return nil, err
	}
	if err = w.cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg encoder: %w", err)
	}
	return w, nil
}

func (w *ffmpegFrameWriter) Write(frame *image.RGBA) error {
	b := frame.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), w.width, w.height)
	}
	if frame.Stride == w.width*4 && b.Min == (image.Point{}) {
		_, err := w.stdin.Write(frame.Pix[:w.width*w.height*4])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := frame.PixOffset(b.Min.X, y)
		copy(w.row, frame.Pix[start:start+w.width*4])
		if _, err := w.stdin.Write(w.row); err != nil {
			return err
		}
	}
	return nil
}

func (w *ffmpegFrameWriter) Close() error {
	_ = w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", err, strings.TrimSpace(w.stderr.String()))
	}
	return nil
}

// MuxAudio runs the mux command. Failure is reported to the caller, which
// decides on the fallback.
func (c *FFmpegCodec) MuxAudio(ctx context.Context, videoOnlyPath, audioSourcePath, outputPath string) error {
	cmd := exec.CommandContext(ctx, c.FfmpegPath, splitArgs(MuxArgs, videoOnlyPath, audioSourcePath, outputPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg mux: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
