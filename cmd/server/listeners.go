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

// Package main - Pub/Sub listeners.
//
// The only subscription is the bucket notification feed of reference
// uploads; every finalized object runs the GCS ingest workflow.
package main

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/workflow"
)

// SetupListeners attaches the ingest workflow to the reference upload
// listener and starts it. It does nothing when no such subscription is
// configured.
func SetupListeners(config *cloud.Config, cloudClients *cloud.ServiceClients, videos *services.VideoService, ctx context.Context) {
	listener, ok := cloudClients.PubSubListeners[cloud.ReferenceUploadsTopic]
	if !ok || listener == nil {
		slog.Info("no reference upload subscription configured")
		return
	}
	ingest := workflow.NewGCSIngestWorkflow(cloudClients.StorageClient, videos, config.Application.ThreadPoolSize)
	listener.SetCommand(ingest)
	listener.Listen(ctx)
}
