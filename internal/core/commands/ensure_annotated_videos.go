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
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// EnsureAnnotatedVideos renders the annotated copies of both videos of a
// comparison, in parallel, when they are not cached. A silent fallback on
// either side marks the job audio-degraded.
type EnsureAnnotatedVideos struct {
	cor.BaseCommand
	cache *services.ArtifactCache
}

func NewEnsureAnnotatedVideos(name string, cache *services.ArtifactCache) *EnsureAnnotatedVideos {
	return &EnsureAnnotatedVideos{BaseCommand: *cor.NewBaseCommand(name), cache: cache}
}

func (c *EnsureAnnotatedVideos) IsExecutable(context cor.Context) bool {
	return hasComparisonState(context)
}

func (c *EnsureAnnotatedVideos) Execute(context cor.Context) {
	state, _ := loadComparisonState(context)
	videos := map[model.Role]*model.VideoRecord{
		model.RoleReference: state.reference,
		model.RoleSubject:   state.subject,
	}
	results := make(map[model.Role]*model.AnnotatedVideo, len(videos))
	out := make(chan struct {
		role  model.Role
		video *model.AnnotatedVideo
	}, len(videos))

	g, ctx := errgroup.WithContext(context.GetContext())
	for role, rec := range videos {
		g.Go(func() error {
			v, err := c.cache.EnsureAnnotatedVideo(ctx, rec.ID, role)
			if err != nil {
				return err
			}
			out <- struct {
				role  model.Role
				video *model.AnnotatedVideo
			}{role, v}
			return nil
		})
	}
	err := g.Wait()
	close(out)
	if err != nil {
		c.Fail(context, err)
		return
	}
	for r := range out {
		results[r.role] = r.video
		if r.video.Degraded {
			state.job.AudioDegraded = true
			slog.WarnContext(context.GetContext(), "annotated video kept without audio",
				"job_id", state.job.ID, "role", r.role, "video_id", videos[r.role].ID)
		}
	}
	context.Add(ParamAnnotatedVideos, results)
	c.Succeed(context)
}
