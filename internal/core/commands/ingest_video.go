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
	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// IngestVideo ingests the local file on its input as a video of the
// configured role. The name and the title, author, tags and description
// metadata come from the *cloud.GCSObject in the context. It outputs the
// warm-up task for the new video.
type IngestVideo struct {
	cor.BaseCommand
	videos *services.VideoService
	role   model.Role
}

func NewIngestVideo(name string, videos *services.VideoService, role model.Role) *IngestVideo {
	return &IngestVideo{BaseCommand: *cor.NewBaseCommand(name), videos: videos, role: role}
}

func (c *IngestVideo) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(cloud.GetGCSObjectName()) != nil
}

func (c *IngestVideo) Execute(context cor.Context) {
	path, ok := cor.Value[string](context, c.GetInputParam())
	obj, ok2 := cor.Value[*cloud.GCSObject](context, cloud.GetGCSObjectName())
	if !ok || !ok2 {
		c.Fail(context, errWrongInput(c.GetName(), "local file path"))
		return
	}

	meta := services.UploadMetadata{
		Title:       obj.Metadata["title"],
		Author:      obj.Metadata["author"],
		Tags:        model.ParseTags(obj.Metadata["tags"]),
		Description: obj.Metadata["description"],
		ReferenceID: obj.Metadata["reference_video_id"],
	}
	rec, err := c.videos.IngestFile(context.GetContext(), c.role, path, obj.BaseName(), meta)
	if err != nil {
		c.Fail(context, err)
		return
	}
	context.Add(ParamIngestedVideo, rec)
	context.Add(c.GetOutputParam(), []model.WarmupTask{{ID: rec.ID, Role: rec.Role}})
	c.Succeed(context)
}
