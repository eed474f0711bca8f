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

package workflow

import (
	goctx "context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/commands"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// ReferenceWarmupWorkflow is a background job that finds reference videos
// whose landmarks or annotated video are not built yet and builds them with a
// worker pool, so the first comparison against a reference does not pay for
// it.
type ReferenceWarmupWorkflow struct {
	cor.BaseCommand
	chain cor.Chain
}

// Execute runs one warm-up pass.
func (w *ReferenceWarmupWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// IsExecutable always holds; the workflow needs no input.
func (w *ReferenceWarmupWorkflow) IsExecutable(_ cor.Context) bool {
	return true
}

// RunOnce executes a single pass under its own span and returns the joined
// errors of the failed warm-ups.
func (w *ReferenceWarmupWorkflow) RunOnce(ctx goctx.Context) error {
	traceCtx, span := otel.Tracer("reference-warmup").Start(ctx, "reference-warmup")
	defer span.End()

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(traceCtx)
	w.Execute(chainCtx)

	if err := chainCtx.Err(); err != nil {
		span.SetStatus(codes.Error, "failed to warm reference artifacts")
		return err
	}
	span.SetStatus(codes.Ok, "warmed reference artifacts")
	return nil
}

// StartTimer runs a pass every interval until ctx is done. A non-positive
// interval disables the timer.
func (w *ReferenceWarmupWorkflow) StartTimer(ctx goctx.Context, interval time.Duration) {
	if interval <= 0 {
		slog.Info("reference warm-up timer disabled")
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.RunOnce(ctx); err != nil {
					slog.WarnContext(ctx, "reference warm-up pass finished with errors", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// NewReferenceWarmupWorkflow creates the warm-up workflow.
func NewReferenceWarmupWorkflow(store services.Store, cache *services.ArtifactCache, numberOfWorkers int) *ReferenceWarmupWorkflow {
	out := cor.NewBaseChain("reference-warmup")
	out.AddCommand(commands.NewFindColdReferences("find-cold-references", store))
	out.AddCommand(commands.NewWarmArtifacts("warm-reference-artifacts", cache, numberOfWorkers))
	return &ReferenceWarmupWorkflow{
		BaseCommand: *cor.NewBaseCommand("reference-warmup-workflow"),
		chain:       out,
	}
}
