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

// WriteReport renders the plain-text report of the job and records its path.
type WriteReport struct {
	cor.BaseCommand
	service *services.ComparisonService
}

func NewWriteReport(name string, service *services.ComparisonService) *WriteReport {
	return &WriteReport{BaseCommand: *cor.NewBaseCommand(name), service: service}
}

func (c *WriteReport) IsExecutable(context cor.Context) bool {
	return hasComparisonState(context)
}

func (c *WriteReport) Execute(context cor.Context) {
	state, _ := loadComparisonState(context)
	path, err := c.service.WriteReport(state.job, state.reference, state.subject)
	if err != nil {
		c.Fail(context, err)
		return
	}
	state.job.ReportPath = path
	context.Add(c.GetOutputParam(), path)
	c.Succeed(context)
}
