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

// MirrorToGCS uploads the report and both annotated videos of a completed
// job to the mirror bucket.
type MirrorToGCS struct {
	cor.BaseCommand
	mirror *services.ArtifactMirror
}

func NewMirrorToGCS(name string, mirror *services.ArtifactMirror) *MirrorToGCS {
	return &MirrorToGCS{BaseCommand: *cor.NewBaseCommand(name), mirror: mirror}
}

func (c *MirrorToGCS) IsExecutable(context cor.Context) bool {
	return hasComparisonState(context) && context.Get(ParamAnnotatedVideos) != nil
}

func (c *MirrorToGCS) Execute(context cor.Context) {
	state, _ := loadComparisonState(context)
	annotated, _ := cor.Value[map[model.Role]*model.AnnotatedVideo](context, ParamAnnotatedVideos)

	uploads := map[string]string{}
	if state.job.ReportPath != "" {
		uploads[state.job.ReportPath] = services.ReportObject(state.job.ID)
	}
	if v := annotated[model.RoleReference]; v != nil {
		uploads[v.Path] = services.AnnotatedObject(state.reference.ID, model.RoleReference)
	}
	if v := annotated[model.RoleSubject]; v != nil {
		uploads[v.Path] = services.AnnotatedObject(state.subject.ID, model.RoleSubject)
	}
	for local, object := range uploads {
		if err := c.mirror.Upload(context.GetContext(), local, object); err != nil {
			c.Fail(context, err)
			return
		}
	}
	c.Succeed(context)
}
