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

package workflow

import (
	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/commands"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
)

// GCSIngestWorkflow ingests reference videos dropped into a Cloud Storage
// bucket. It is attached to the Pub/Sub listener of the bucket notification
// subscription; the message is acknowledged only when every step succeeded.
//
// Steps: parse the notification, download the object to a temp file, ingest
// it as a reference video (metadata comes from the object metadata) and warm
// its landmarks and annotated video.
type GCSIngestWorkflow struct {
	cor.BaseCommand
	storageClient   *storage.Client
	videos          *services.VideoService
	numberOfWorkers int
	chain           cor.Chain
}

// Execute runs the ingest chain. The input is the raw notification payload.
func (w *GCSIngestWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

func (w *GCSIngestWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewMediaTriggerToGCSObject("gcs-notification-reader"))
	out.AddCommand(commands.NewGCSToTempFile("gcs-to-temp-file", w.storageClient, "reference-upload-"))
	out.AddCommand(commands.NewIngestVideo("ingest-reference-video", w.videos, model.RoleReference))
	out.AddCommand(commands.NewWarmArtifacts("warm-reference-artifacts", w.videos.Cache, w.numberOfWorkers))
	w.chain = out
}

// NewGCSIngestWorkflow creates the ingest workflow.
func NewGCSIngestWorkflow(storageClient *storage.Client, videos *services.VideoService, numberOfWorkers int) *GCSIngestWorkflow {
	w := &GCSIngestWorkflow{
		BaseCommand:     *cor.NewBaseCommand("gcs-ingest-workflow"),
		storageClient:   storageClient,
		videos:          videos,
		numberOfWorkers: numberOfWorkers,
	}
	w.initializeChain()
	return w
}
