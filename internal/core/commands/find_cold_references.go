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

// FindColdReferences outputs a warm-up task for every reference video with
// an artifact that is not done yet. Its input is only a trigger and is
// ignored.
type FindColdReferences struct {
	cor.BaseCommand
	store services.Store
}

func NewFindColdReferences(name string, store services.Store) *FindColdReferences {
	return &FindColdReferences{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

func (c *FindColdReferences) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *FindColdReferences) Execute(context cor.Context) {
	refs, err := c.store.ListByRole(context.GetContext(), model.RoleReference)
	if err != nil {
		c.Fail(context, err)
		return
	}
	tasks := make([]model.WarmupTask, 0)
	for _, r := range refs {
		if r.LandmarkStatus != model.StatusDone || r.AnnotatedStatus != model.StatusDone {
			tasks = append(tasks, model.WarmupTask{ID: r.ID, Role: r.Role})
		}
	}
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.Int("references", len(refs)),
		attribute.Int("cold", len(tasks)),
	)
	context.Add(c.GetOutputParam(), tasks)
	c.Succeed(context)
}
