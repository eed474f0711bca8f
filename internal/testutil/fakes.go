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

package test

import (
	"context"
	"image"
	"io"
	"iter"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/media"
)

// FakeCodec is an in-memory media.Codec. Every path decodes to Frames blank
// frames of the probed geometry; encoded videos are written as small files
// so renames and existence checks behave like the real thing.
type FakeCodec struct {
	Info     media.Probe
	Frames   int
	ProbeErr error
	MuxErr   error

	Opened  atomic.Int32
	Encoded atomic.Int32
	Muxed   atomic.Int32
}

// NewFakeCodec returns a 64x48, 30 fps codec with audio and the given frame
// count.
func NewFakeCodec(frames int) *FakeCodec {
	return &FakeCodec{
		Info: media.Probe{
			Width:      64,
			Height:     48,
			FPS:        30,
			Duration:   float64(frames) / 30,
			FrameCount: frames,
			HasAudio:   true,
		},
		Frames: frames,
	}
}

func (c *FakeCodec) Probe(_ context.Context, _ string) (*media.Probe, error) {
	if c.ProbeErr != nil {
		return nil, c.ProbeErr
	}
	p := c.Info
	return &p, nil
}

func (c *FakeCodec) OpenFrames(_ context.Context, _ string) (media.FrameReader, error) {
	if c.ProbeErr != nil {
		return nil, c.ProbeErr
	}
	c.Opened.Add(1)
	return &fakeReader{total: c.Frames, width: c.Info.Width, height: c.Info.Height}, nil
}

func (c *FakeCodec) CreateVideo(_ context.Context, outputPath string, _ float64, _, _ int) (media.FrameWriter, error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, err
	}
	return &fakeWriter{file: f, codec: c}, nil
}

func (c *FakeCodec) MuxAudio(_ context.Context, videoOnlyPath, _, outputPath string) error {
	if c.MuxErr != nil {
		return c.MuxErr
	}
	data, err := os.ReadFile(videoOnlyPath)
	if err != nil {
		return err
	}
	c.Muxed.Add(1)
	return os.WriteFile(outputPath, append(data, []byte("+audio")...), 0o644)
}

type fakeReader struct {
	next, total   int
	width, height int
}

func (r *fakeReader) Next() (*image.RGBA, error) {
	if r.next >= r.total {
		return nil, io.EOF
	}
	r.next++
	return image.NewRGBA(image.Rect(0, 0, r.width, r.height)), nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	file   *os.File
	codec  *FakeCodec
	frames int
}

func (w *fakeWriter) Write(_ *image.RGBA) error {
	w.frames++
	_, err := w.file.Write([]byte{'f'})
	return err
}

func (w *fakeWriter) Close() error {
	w.codec.Encoded.Add(1)
	return w.file.Close()
}

// FakeEstimator is a pose.Estimator returning ExampleSkeleton(0, 1) as a
// reduced 13-point result.
type FakeEstimator struct {
	// Missing lists the call numbers, counting from 0, that detect nobody.
	Missing map[int]bool
	// Err is returned from every call when set.
	Err error
	// Delay is slept before answering, honouring ctx.
	Delay time.Duration

	calls atomic.Int64
}

// Calls returns the number of Detect calls so far.
func (e *FakeEstimator) Calls() int {
	return int(e.calls.Load())
}

func (e *FakeEstimator) Detect(ctx context.Context, _ image.Image) ([]model.Landmark, bool, error) {
	n := int(e.calls.Add(1) - 1)
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if e.Err != nil {
		return nil, false, e.Err
	}
	if e.Missing[n] {
		return nil, false, nil
	}
	s := model.ExampleSkeleton(0, 1)
	return s[:], true, nil
}

// FakeExtractor is a services.LandmarkExtractor with call counters. Extract
// yields Frames with the requested video id; Annotate writes a small file.
type FakeExtractor struct {
	Frames      []model.LandmarkFrame
	ExtractErr  error
	AnnotateErr error
	Degraded    bool
	// Release, when set, blocks Extract and Annotate until it is closed.
	Release chan struct{}

	mu            sync.Mutex
	extractCalls  int
	annotateCalls int
}

// NewFakeExtractor yields detected frames at the stride-5 indices up to last.
func NewFakeExtractor(last int) *FakeExtractor {
	return &FakeExtractor{Frames: model.ExampleFrames("", 30, model.StrideIndices(5, last))}
}

// ExtractCalls returns the number of Extract calls so far.
func (e *FakeExtractor) ExtractCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.extractCalls
}

// AnnotateCalls returns the number of Annotate calls so far.
func (e *FakeExtractor) AnnotateCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.annotateCalls
}

func (e *FakeExtractor) wait(ctx context.Context) error {
	if e.Release == nil {
		return nil
	}
	select {
	case <-e.Release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *FakeExtractor) Extract(ctx context.Context, videoID, _ string, _ int) (iter.Seq2[model.LandmarkFrame, error], error) {
	e.mu.Lock()
	e.extractCalls++
	e.mu.Unlock()
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.ExtractErr != nil {
		return nil, e.ExtractErr
	}
	return func(yield func(model.LandmarkFrame, error) bool) {
		for _, f := range e.Frames {
			f.VideoID = videoID
			if !yield(f, nil) {
				return
			}
		}
	}, nil
}

func (e *FakeExtractor) Annotate(ctx context.Context, _, outputPath string, _ int) (*model.AnnotatedVideo, error) {
	e.mu.Lock()
	e.annotateCalls++
	e.mu.Unlock()
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	if e.AnnotateErr != nil {
		return nil, e.AnnotateErr
	}
	if err := os.WriteFile(outputPath, []byte("annotated"), 0o644); err != nil {
		return nil, err
	}
	return &model.AnnotatedVideo{Path: outputPath, HasAudio: !e.Degraded, Degraded: e.Degraded}, nil
}
