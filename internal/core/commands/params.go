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

// Package commands holds the cor commands the workflows are assembled from.
//
// Commands exchange values through the chain context. The keys below name
// the values shared by more than one command; everything else flows through
// cor.CtxIn and cor.CtxOut.
package commands

import (
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

const (
	ParamComparisonJob   = "__COMPARISON_JOB__"
	ParamReferenceVideo  = "__REFERENCE_VIDEO__"
	ParamSubjectVideo    = "__SUBJECT_VIDEO__"
	ParamReferenceFrames = "__REFERENCE_FRAMES__"
	ParamSubjectFrames   = "__SUBJECT_FRAMES__"
	ParamAnnotatedVideos = "__ANNOTATED_VIDEOS__"
	ParamIngestedVideo   = "__INGESTED_VIDEO__"
)

// comparisonState is the state every step after LoadComparisonVideos reads.
type comparisonState struct {
	job       *model.ComparisonJob
	reference *model.VideoRecord
	subject   *model.VideoRecord
}

func loadComparisonState(context cor.Context) (comparisonState, bool) {
	job, ok1 := cor.Value[*model.ComparisonJob](context, ParamComparisonJob)
	ref, ok2 := cor.Value[*model.VideoRecord](context, ParamReferenceVideo)
	subj, ok3 := cor.Value[*model.VideoRecord](context, ParamSubjectVideo)
	return comparisonState{job: job, reference: ref, subject: subj}, ok1 && ok2 && ok3
}

// hasComparisonState is the IsExecutable check of the comparison steps.
func hasComparisonState(context cor.Context) bool {
	if context == nil || context.GetContext() == nil {
		return false
	}
	_, ok := loadComparisonState(context)
	return ok
}
