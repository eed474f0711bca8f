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
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// PersistComparison moves the job to completed and saves it. After this step
// the job is immutable.
type PersistComparison struct {
	cor.BaseCommand
	service *services.ComparisonService
}

func NewPersistComparison(name string, service *services.ComparisonService) *PersistComparison {
	return &PersistComparison{BaseCommand: *cor.NewBaseCommand(name), service: service}
}

func (c *PersistComparison) IsExecutable(context cor.Context) bool {
	return hasComparisonState(context)
}

func (c *PersistComparison) Execute(context cor.Context) {
	state, _ := loadComparisonState(context)
	state.job.Complete(state.job.Differences)
	if err := c.service.Complete(context.GetContext(), state.job); err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(c.GetOutputParam(), state.job)
	c.Succeed(context)
}
