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

// Package pose binds the pose estimation engine and implements landmark
// extraction and annotated-video rendering on top of it.
package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// Estimator is the pose estimation engine. Detect returns the engine's full
// ordered landmark list and true, or false when nobody was detected.
type Estimator interface {
	Detect(ctx context.Context, frame image.Image) ([]model.Landmark, bool, error)
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(ctx context.Context, frame image.Image) ([]model.Landmark, bool, error)

// Detect calls f.
func (f EstimatorFunc) Detect(ctx context.Context, frame image.Image) ([]model.Landmark, bool, error) {
	return f(ctx, frame)
}

// DefaultJPEGQuality balances upload size against landmark accuracy.
const DefaultJPEGQuality = 90

// HTTPEstimator calls a pose engine sidecar over HTTP. The frame is posted as
// image/jpeg; the engine answers {"landmarks": [[x,y,z,visibility], ...]} or
// {"landmarks": null}.
type HTTPEstimator struct {
	Endpoint string
	Client   *http.Client
	Quality  int
}

// NewHTTPEstimator creates a client with a transport timeout. The soft
// per-frame deadline is applied by the caller through ctx.
func NewHTTPEstimator(endpoint string, timeout time.Duration) *HTTPEstimator {
	return &HTTPEstimator{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
		Quality:  DefaultJPEGQuality,
	}
}

type detectResponse struct {
	Landmarks []model.Landmark `json:"landmarks"`
}

// Detect implements Estimator.
func (e *HTTPEstimator) Detect(ctx context.Context, frame image.Image) ([]model.Landmark, bool, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, false, fmt.Errorf("encoding frame: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, &body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", model.ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("%w: status %d: %s", model.ErrEngineUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("%w: decoding response: %v", model.ErrEngineUnavailable, err)
	}
	if len(out.Landmarks) == 0 {
		return nil, false, nil
	}
	return out.Landmarks, true, nil
}
