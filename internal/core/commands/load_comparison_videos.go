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
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// LoadComparisonVideos turns a *model.ComparisonRequest on its input into a
// processing job. It loads both videos, so an unknown id fails the chain with
// model.ErrNotFound before any work is done.
type LoadComparisonVideos struct {
	cor.BaseCommand
	service *services.ComparisonService
}

func NewLoadComparisonVideos(name string, service *services.ComparisonService) *LoadComparisonVideos {
	return &LoadComparisonVideos{BaseCommand: *cor.NewBaseCommand(name), service: service}
}

func (c *LoadComparisonVideos) Execute(context cor.Context) {
	req, ok := cor.Value[*model.ComparisonRequest](context, c.GetInputParam())
	if !ok {
		c.Fail(context, errWrongInput(c.GetName(), "*model.ComparisonRequest"))
		return
	}
	job, ref, subj, err := c.service.Start(context.GetContext(), req)
	if err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(ParamComparisonJob, job)
	context.Add(ParamReferenceVideo, ref)
	context.Add(ParamSubjectVideo, subj)
	context.Add(c.GetOutputParam(), job)
	c.Succeed(context)
}
