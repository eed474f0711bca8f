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

package commands

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// EnsureLandmarks makes sure both videos of a comparison have cached
// landmark sequences, extracting them in parallel where needed.
type EnsureLandmarks struct {
	cor.BaseCommand
	cache *services.ArtifactCache
}

func NewEnsureLandmarks(name string, cache *services.ArtifactCache) *EnsureLandmarks {
	return &EnsureLandmarks{BaseCommand: *cor.NewBaseCommand(name), cache: cache}
}

func (c *EnsureLandmarks) IsExecutable(context cor.Context) bool {
	return hasComparisonState(context)
}

func (c *EnsureLandmarks) Execute(context cor.Context) {
	state, _ := loadComparisonState(context)
	var refFrames, subjFrames []model.LandmarkFrame

	g, ctx := errgroup.WithContext(context.GetContext())
	g.Go(func() (err error) {
		refFrames, err = c.cache.EnsureLandmarks(ctx, state.reference.ID, model.RoleReference)
		return err
	})
	g.Go(func() (err error) {
		subjFrames, err = c.cache.EnsureLandmarks(ctx, state.subject.ID, model.RoleSubject)
		return err
	})
	if err := g.Wait(); err != nil {
		c.Fail(context, err)
		return
	}

	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.Int("reference_frames", len(refFrames)),
		attribute.Int("subject_frames", len(subjFrames)),
	)
	context.Add(ParamReferenceFrames, refFrames)
	context.Add(ParamSubjectFrames, subjFrames)
	c.Succeed(context)
}
