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

// Package cloud - quota aware wrappers.
//
// This file wraps the pose estimation engine so that every detect call first
// waits for a token from a rate limiter and then runs under a soft deadline.
// A call that overruns the deadline is recorded as "no detection" for that
// frame; extraction carries on with the next frame and nothing is retried.
package cloud

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/pose"
)

// QuotaAwarePoseEstimator rate limits and bounds calls to a pose engine.
type QuotaAwarePoseEstimator struct {
	wrapped         pose.Estimator
	limiter         *rate.Limiter
	softDeadline    time.Duration
	deadlineCounter metric.Int64Counter
}

// NewQuotaAwarePoseEstimator wraps an estimator.
//
// Inputs:
//   - wrapped: the engine client.
//   - requestsPerSecond: sustained call rate; <= 0 disables limiting.
//   - burst: limiter bucket size.
//   - softDeadline: per-call deadline; <= 0 disables it.
func NewQuotaAwarePoseEstimator(wrapped pose.Estimator, requestsPerSecond float64, burst int, softDeadline time.Duration) *QuotaAwarePoseEstimator {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	counter, err := otel.Meter(cor.MeterName).Int64Counter("pose_engine.soft_deadline_exceeded")
	if err != nil {
		slog.Warn("failed to create soft deadline counter", "error", err)
	}
	return &QuotaAwarePoseEstimator{
		wrapped:         wrapped,
		limiter:         rate.NewLimiter(limit, max(1, burst)),
		softDeadline:    softDeadline,
		deadlineCounter: counter,
	}
}

// Detect implements pose.Estimator.
func (q *QuotaAwarePoseEstimator) Detect(ctx context.Context, frame image.Image) ([]model.Landmark, bool, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	if q.softDeadline <= 0 {
		return q.wrapped.Detect(ctx, frame)
	}

	callCtx, cancel := context.WithTimeout(ctx, q.softDeadline)
	defer cancel()
	points, ok, err := q.wrapped.Detect(callCtx, frame)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// The caller is still waiting, only this frame ran out of time.
		if q.deadlineCounter != nil {
			q.deadlineCounter.Add(ctx, 1)
		}
		slog.WarnContext(ctx, "pose engine soft deadline exceeded, recording no detection", "deadline", q.softDeadline)
		return nil, false, nil
	}
	return points, ok, err
}
