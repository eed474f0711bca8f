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

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// CompareLandmarks runs the comparison engine over the two cached sequences
// and stores the difference list on the job.
type CompareLandmarks struct {
	cor.BaseCommand
	service *services.ComparisonService
}

func NewCompareLandmarks(name string, service *services.ComparisonService) *CompareLandmarks {
	return &CompareLandmarks{BaseCommand: *cor.NewBaseCommand(name), service: service}
}

func (c *CompareLandmarks) IsExecutable(context cor.Context) bool {
	return hasComparisonState(context) &&
		context.Get(ParamReferenceFrames) != nil &&
		context.Get(ParamSubjectFrames) != nil
}

func (c *CompareLandmarks) Execute(context cor.Context) {
	state, _ := loadComparisonState(context)
	refFrames, _ := cor.Value[[]model.LandmarkFrame](context, ParamReferenceFrames)
	subjFrames, _ := cor.Value[[]model.LandmarkFrame](context, ParamSubjectFrames)

	diffs := c.service.Differences(state.job, state.subject, refFrames, subjFrames)
	state.job.Differences = diffs
	state.job.TotalDifferences = len(diffs)

	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.Int("pairs", min(len(refFrames), len(subjFrames))),
		attribute.Int("differences", len(diffs)),
	)
	context.Add(c.GetOutputParam(), diffs)
	c.Succeed(context)
}
