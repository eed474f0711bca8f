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

package pose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/media"
)

// DefaultStride samples every fifth decoded frame.
const DefaultStride = 5

// MuxPolicy declares what the annotate pipeline does when re-attaching the
// source audio fails.
type MuxPolicy int

const (
	// FallbackSilent keeps the silent render as the result. There is no
	// retry.
	FallbackSilent MuxPolicy = iota
	// FailOnMuxError turns a mux failure into an annotate failure.
	FailOnMuxError
)

// Extractor turns videos into landmark sequences and annotated copies.
type Extractor struct {
	codec     media.Codec
	estimator Estimator
	muxPolicy MuxPolicy
	tracer    trace.Tracer
}

// NewExtractor creates an extractor with the FallbackSilent mux policy.
func NewExtractor(codec media.Codec, estimator Estimator) *Extractor {
	return &Extractor{
		codec:     codec,
		estimator: estimator,
		muxPolicy: FallbackSilent,
		tracer:    otel.Tracer("pose-extractor"),
	}
}

// WithMuxPolicy overrides the audio mux fallback.
func (e *Extractor) WithMuxPolicy(p MuxPolicy) *Extractor {
	e.muxPolicy = p
	return e
}

func normalizeStride(stride int) int {
	if stride <= 0 {
		return DefaultStride
	}
	return stride
}

// detect runs the engine on one frame and reduces a detection to the tracked
// joints.
func (e *Extractor) detect(ctx context.Context, frame image.Image) (model.Pose, error) {
	points, ok, err := e.estimator.Detect(ctx, frame)
	if err != nil {
		return model.NoDetection(), err
	}
	if !ok {
		return model.NoDetection(), nil
	}
	s, err := model.SelectSkeleton(points)
	if err != nil {
		return model.NoDetection(), fmt.Errorf("%w: %v", model.ErrEngineUnavailable, err)
	}
	return model.Detected(s), nil
}

// Extract samples every stride-th frame of the video at path and returns a
// lazy sequence of landmark frames. Frames without a detection are yielded
// with the NoDetection sentinel, never skipped.
//
// A video that cannot be probed or opened fails immediately with
// model.ErrMediaUnreadable. Errors found while decoding are yielded once and
// end the sequence. The sequence can be ranged over only once; it owns the
// decoder and releases it when iteration stops, so callers must range over it.
func (e *Extractor) Extract(ctx context.Context, videoID, path string, stride int) (iter.Seq2[model.LandmarkFrame, error], error) {
	stride = normalizeStride(stride)
	probe, err := e.codec.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	reader, err := e.codec.OpenFrames(ctx, path)
	if err != nil {
		return nil, err
	}

	var used atomic.Bool
	return func(yield func(model.LandmarkFrame, error) bool) {
		if used.Swap(true) {
			yield(model.LandmarkFrame{}, model.ErrSequenceConsumed)
			return
		}
		defer reader.Close()

		spanCtx, span := e.tracer.Start(ctx, "extract-landmarks")
		span.SetAttributes(attribute.String("video_id", videoID), attribute.Int("stride", stride))
		defer span.End()

		sampled, undetected := 0, 0
		for i := 0; ; i++ {
			frame, err := reader.Next()
			if errors.Is(err, io.EOF) {
				if i == 0 {
					span.SetStatus(codes.Error, "no frames")
					yield(model.LandmarkFrame{}, fmt.Errorf("%w: %s has no decodable frames", model.ErrMediaUnreadable, path))
					return
				}
				span.SetAttributes(attribute.Int("sampled", sampled), attribute.Int("undetected", undetected))
				span.SetStatus(codes.Ok, "extracted")
				return
			}
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				yield(model.LandmarkFrame{}, err)
				return
			}
			if i%stride != 0 {
				continue
			}
			pose, err := e.detect(spanCtx, frame)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				yield(model.LandmarkFrame{}, fmt.Errorf("frame %d: %w", i, err))
				return
			}
			sampled++
			if !pose.IsDetected() {
				undetected++
			}
			lf := model.LandmarkFrame{
				VideoID:    videoID,
				FrameIndex: i,
				Pose:       pose,
				Timestamp:  float64(i) / probe.FPS,
			}
			if !yield(lf, nil) {
				return
			}
		}
	}, nil
}

// Annotate renders the video at path with the tracked joints drawn on every
// stride-th frame (other frames pass through) and writes it to outputPath.
//
// The pipeline has two stages. The render stage encodes a silent video next
// to outputPath. The mux stage copies the source audio into it; when that
// fails under FallbackSilent the silent render becomes the result and the
// result is marked Degraded. Sources without audio skip the mux stage.
func (e *Extractor) Annotate(ctx context.Context, path, outputPath string, stride int) (*model.AnnotatedVideo, error) {
	stride = normalizeStride(stride)
	ctx, span := e.tracer.Start(ctx, "annotate-video")
	defer span.End()

	probe, err := e.codec.Probe(ctx, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	silent, err := e.render(ctx, path, outputPath, probe, stride)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out, err := e.mux(ctx, silent, path, outputPath, probe.HasAudio)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("has_audio", out.HasAudio), attribute.Bool("degraded", out.Degraded))
	span.SetStatus(codes.Ok, "annotated")
	return out, nil
}

// render is the first annotate stage. It returns the path of the silent video.
func (e *Extractor) render(ctx context.Context, path, outputPath string, probe *media.Probe, stride int) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), "silent-*.mp4")
	if err != nil {
		return "", fmt.Errorf("creating silent render: %w", err)
	}
	silent := tmp.Name()
	_ = tmp.Close()

	fail := func(err error) (string, error) {
		_ = os.Remove(silent)
		return "", err
	}

	reader, err := e.codec.OpenFrames(ctx, path)
	if err != nil {
		return fail(err)
	}
	defer reader.Close()

	writer, err := e.codec.CreateVideo(ctx, silent, probe.FPS, probe.Width, probe.Height)
	if err != nil {
		return fail(err)
	}

	for i := 0; ; i++ {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			if i == 0 {
				_ = writer.Close()
				return fail(fmt.Errorf("%w: %s has no decodable frames", model.ErrMediaUnreadable, path))
			}
			break
		}
		if err != nil {
			_ = writer.Close()
			return fail(err)
		}
		if i%stride == 0 {
			pose, err := e.detect(ctx, frame)
			if err != nil {
				_ = writer.Close()
				return fail(fmt.Errorf("frame %d: %w", i, err))
			}
			if s, ok := pose.Skeleton(); ok {
				DrawSkeleton(frame, s)
			}
		}
		if err := writer.Write(frame); err != nil {
			_ = writer.Close()
			return fail(fmt.Errorf("encoding frame %d: %w", i, err))
		}
	}
	if err := writer.Close(); err != nil {
		return fail(err)
	}
	return silent, nil
}

// mux is the second annotate stage.
func (e *Extractor) mux(ctx context.Context, silent, source, outputPath string, hasAudio bool) (*model.AnnotatedVideo, error) {
	if !hasAudio {
		if err := os.Rename(silent, outputPath); err != nil {
			_ = os.Remove(silent)
			return nil, err
		}
		return &model.AnnotatedVideo{Path: outputPath}, nil
	}

	err := e.codec.MuxAudio(ctx, silent, source, outputPath)
	if err == nil {
		_ = os.Remove(silent)
		return &model.AnnotatedVideo{Path: outputPath, HasAudio: true}, nil
	}

	if e.muxPolicy == FailOnMuxError {
		_ = os.Remove(silent)
		return nil, fmt.Errorf("audio mux: %w", err)
	}
	slog.WarnContext(ctx, "audio mux failed, keeping silent annotated video",
		"error", fmt.Errorf("%w: %w", model.ErrEngineDegraded, err), "output", outputPath)
	_ = os.Remove(outputPath)
	if err := os.Rename(silent, outputPath); err != nil {
		_ = os.Remove(silent)
		return nil, err
	}
	return &model.AnnotatedVideo{Path: outputPath, Degraded: true}, nil
}
