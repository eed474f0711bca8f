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

// Package workflow defines the high-level business logic orchestrations,
// combining commands into pipelines. This file implements the comparison
// workflow run for every comparison request.
package workflow

import (
	goctx "context"
	"errors"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/commands"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// ComparisonWorkflow turns a *model.ComparisonRequest into a completed or
// failed *model.ComparisonJob.
//
// It is made of two chains. The main chain loads both videos, ensures their
// landmarks, compares them, ensures the annotated videos, writes the report
// and marks the job completed; the first error stops it and the job is marked
// failed. The publish chain runs only after a completed job, continues on
// failure and its errors are logged without touching the job.
type ComparisonWorkflow struct {
	cor.BaseCommand
	service        *services.ComparisonService
	cache          *services.ArtifactCache
	mirror         *services.ArtifactMirror
	bigqueryClient *bigquery.Client
	dataset        string
	table          string
	chain          cor.Chain
	publish        cor.Chain
}

// Execute runs the main chain and then, when it succeeded, the publish chain.
// Failed jobs are recorded in the store.
func (w *ComparisonWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	job, _ := cor.Value[*model.ComparisonJob](context, commands.ParamComparisonJob)
	if context.HasErrors() {
		if job != nil {
			w.service.Fail(context.GetContext(), job, context.Err())
		}
		return
	}
	if w.publish == nil {
		return
	}

	// The publish chain gets its own context so its errors stay out of the
	// comparison outcome.
	publishCtx := cor.NewBaseContext()
	publishCtx.SetContext(goctx.WithoutCancel(context.GetContext()))
	for _, key := range []string{
		commands.ParamComparisonJob,
		commands.ParamReferenceVideo,
		commands.ParamSubjectVideo,
		commands.ParamAnnotatedVideos,
	} {
		if v := context.Get(key); v != nil {
			publishCtx.Add(key, v)
		}
	}
	w.publish.Execute(publishCtx)
	for name, err := range publishCtx.GetErrors() {
		slog.WarnContext(context.GetContext(), "comparison publish step failed", "step", name, "job_id", job.ID, "error", err)
	}
}

// Run executes the workflow for one request and returns the resulting job.
//
// Inputs:
//   - ctx: the request context. Cancelling it abandons the wait for shared
//     artifacts; the job is then marked failed.
//   - req: the comparison request.
//
// Outputs:
//   - *model.ComparisonJob: the job, completed or failed. Nil when the request
//     was rejected before a job was created (unknown video, bad threshold).
//   - error: the joined chain errors; errors.Is works on the model sentinels.
func (w *ComparisonWorkflow) Run(ctx goctx.Context, req *model.ComparisonRequest) (*model.ComparisonJob, error) {
	traceCtx, span := w.Tracer.Start(ctx, "comparison-run")
	defer span.End()
	span.SetAttributes(
		attribute.String("reference_video_id", req.ReferenceID),
		attribute.String("subject_video_id", req.SubjectID),
	)

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(traceCtx)
	chainCtx.Add(cor.CtxIn, req)

	w.Execute(chainCtx)

	job, _ := cor.Value[*model.ComparisonJob](chainCtx, commands.ParamComparisonJob)
	if err := chainCtx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return job, err
	}
	if job == nil {
		err := errors.New("comparison workflow finished without a job")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("job_id", job.ID), attribute.Int("total_differences", job.TotalDifferences))
	span.SetStatus(codes.Ok, "comparison completed")
	return job, nil
}

func (w *ComparisonWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewLoadComparisonVideos("load-comparison-videos", w.service))
	out.AddCommand(commands.NewEnsureLandmarks("ensure-landmarks", w.cache))
	out.AddCommand(commands.NewCompareLandmarks("compare-landmarks", w.service))
	out.AddCommand(commands.NewEnsureAnnotatedVideos("ensure-annotated-videos", w.cache))
	out.AddCommand(commands.NewWriteReport("write-report", w.service))
	out.AddCommand(commands.NewPersistComparison("persist-comparison", w.service))
	w.chain = out

	if w.mirror == nil && w.bigqueryClient == nil {
		return
	}
	publish := cor.NewBaseChain(w.GetName() + "-publish")
	publish.ContinueOnFailure(true)
	if w.mirror != nil {
		publish.AddCommand(commands.NewMirrorToGCS("mirror-to-gcs", w.mirror))
	}
	if w.bigqueryClient != nil {
		publish.AddCommand(commands.NewComparisonToBigQuery("comparison-to-bigquery", w.bigqueryClient, w.dataset, w.table))
	}
	w.publish = publish
}

// NewComparisonWorkflow builds the workflow. The mirror and BigQuery steps are
// added only when serviceClients carries the matching clients.
//
// Inputs:
//   - config: the application configuration, for the BigQuery table names.
//   - serviceClients: optional cloud clients; may be nil.
//   - service: the comparison service.
//   - mirror: the artifact mirror, or nil.
func NewComparisonWorkflow(
	config *cloud.Config,
	serviceClients *cloud.ServiceClients,
	service *services.ComparisonService,
	mirror *services.ArtifactMirror) *ComparisonWorkflow {

	w := &ComparisonWorkflow{
		BaseCommand: *cor.NewBaseCommand("comparison-workflow"),
		service:     service,
		cache:       service.Cache,
		mirror:      mirror,
		dataset:     config.BigQueryDataSource.DatasetName,
		table:       config.BigQueryDataSource.ComparisonTable,
	}
	if serviceClients != nil && serviceClients.BigQueryClient != nil && w.dataset != "" {
		w.bigqueryClient = serviceClients.BigQueryClient
	}
	w.initializeChain()
	return w
}
