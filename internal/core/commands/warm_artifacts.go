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
	goctx "context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// WarmArtifacts builds the landmarks and annotated video of every
// []model.WarmupTask on its input with a fixed pool of workers.
//
// Logic Flow:
//  1. numberOfWorkers goroutines are started, reading from a jobs channel.
//  2. One job per task is queued, each with its own span; the channel is
//     closed once all are queued.
//  3. Every worker sends one result per job; the command waits for the pool
//     and then records every failed task as an error on the context.
type WarmArtifacts struct {
	cor.BaseCommand
	cache           *services.ArtifactCache
	numberOfWorkers int
}

func NewWarmArtifacts(name string, cache *services.ArtifactCache, numberOfWorkers int) *WarmArtifacts {
	return &WarmArtifacts{
		BaseCommand:     *cor.NewBaseCommand(name),
		cache:           cache,
		numberOfWorkers: max(1, numberOfWorkers),
	}
}

type warmJob struct {
	ctx  goctx.Context
	span trace.Span
	task model.WarmupTask
}

type warmResult struct {
	task model.WarmupTask
	err  error
}

func (c *WarmArtifacts) Execute(context cor.Context) {
	tasks, ok := cor.Value[[]model.WarmupTask](context, c.GetInputParam())
	if !ok {
		c.Fail(context, errWrongInput(c.GetName(), "[]model.WarmupTask"))
		return
	}

	var wg sync.WaitGroup
	jobs := make(chan *warmJob, len(tasks))
	results := make(chan *warmResult, len(tasks))
	for w := 0; w < c.numberOfWorkers; w++ {
		wg.Add(1)
		go c.worker(jobs, results, &wg)
	}
	for i, t := range tasks {
		ctx, span := c.Tracer.Start(context.GetContext(), fmt.Sprintf("%s_warm_%d", c.GetName(), i))
		span.SetAttributes(attribute.String("video_id", t.ID), attribute.String("role", string(t.Role)))
		jobs <- &warmJob{ctx: ctx, span: span, task: t}
	}
	close(jobs)
	wg.Wait()
	close(results)

	warmed := make([]model.WarmupTask, 0, len(tasks))
	for r := range results {
		if r.err != nil {
			context.AddError(fmt.Sprintf("%s/%s", c.GetName(), r.task.ID), r.err)
			if c.ErrorCounter != nil {
				c.ErrorCounter.Add(context.GetContext(), 1)
			}
			continue
		}
		warmed = append(warmed, r.task)
	}
	if !context.HasErrors() {
		c.Succeed(context)
	}
	context.Add(c.GetOutputParam(), warmed)
}

func (c *WarmArtifacts) worker(jobs <-chan *warmJob, results chan<- *warmResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		err := c.cache.Warm(j.ctx, j.task.ID, j.task.Role)
		if err != nil {
			j.span.SetStatus(codes.Error, err.Error())
		} else {
			j.span.SetStatus(codes.Ok, "warmed")
		}
		j.span.End()
		results <- &warmResult{task: j.task, err: err}
	}
}
