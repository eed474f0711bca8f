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

// Package main contains the setup and initialization logic for the
// application's state. The StateManager holds the configuration, the cloud
// and infrastructure clients, the services and the workflows, wired together
// once at start-up.
//
// Functions:
//   - SetupOS: points the configuration loader at the configs directory.
//   - GetConfig: loads the configuration once.
//   - InitState: creates clients, services and workflows, and starts the
//     background listeners and timers.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-pose-compare/internal/api"
	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/services"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/workflow"
	"github.com/jaycherian/gcp-go-pose-compare/internal/media"
	"github.com/jaycherian/gcp-go-pose-compare/internal/pose"
)

// StateManager holds the shared dependencies of the server.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	store    services.Store
	handlers *api.Handlers
}

var state = &StateManager{}

// SetupOS sets the configuration directory and, unless already set, the
// runtime whose override file is loaded.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig returns the configuration, loading it on first use.
func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// newStore picks the metadata store named by the configuration.
func newStore(ctx context.Context, clients *cloud.ServiceClients) (services.Store, error) {
	if clients.PostgresPool == nil {
		return services.NewMemoryStore(), nil
	}
	store := services.NewPostgresStore(clients.PostgresPool)
	if err := store.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("initializing postgres schema: %w", err)
	}
	return store, nil
}

// InitState creates every client, service and workflow.
//
// Steps:
//  1. Create the service clients (pose engine, store pool, lock, optional
//     Cloud Storage, IAM, Pub/Sub and BigQuery).
//  2. Build the store, the artifact cache and the video and comparison
//     services.
//  3. Build the comparison workflow and the HTTP handlers.
//  4. Start the reference warm-up timer and the Pub/Sub listeners.
func InitState(ctx context.Context) error {
	config := GetConfig()

	clients, err := cloud.NewServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = clients

	store, err := newStore(ctx, clients)
	if err != nil {
		return err
	}
	state.store = store

	codec := media.NewFFmpegCodec(config.Media.FfmpegPath, config.Media.FfprobePath)
	extractor := pose.NewExtractor(codec, clients.PoseEstimator)
	cache := services.NewArtifactCache(store, extractor, clients.ArtifactLocker,
		config.Application.ArtifactDir, config.Application.KeyframeStride)

	videos := &services.VideoService{
		Store:                store,
		Codec:                codec,
		Cache:                cache,
		UploadDir:            config.Application.UploadDir,
		AllowedFormats:       config.Application.AllowedFormats,
		MaxUploadBytes:       config.Application.MaxUploadMB << 20,
		EagerReferenceWarmup: config.Application.EagerReferenceWarmup,
	}

	var mirror *services.ArtifactMirror
	if clients.StorageClient != nil && config.Storage.MirrorBucket != "" {
		mirror = &services.ArtifactMirror{
			StorageClient: clients.StorageClient,
			IAMClient:     clients.IAMClient,
			Bucket:        config.Storage.MirrorBucket,
			SignerEmail:   config.Storage.SignerServiceAccountEmail,
			Expires:       time.Duration(config.Storage.SignedURLMinutes) * time.Minute,
		}
	}

	comparisons := &services.ComparisonService{
		Store:            store,
		Cache:            cache,
		ReportDir:        config.Application.ReportDir,
		DefaultThreshold: config.Comparison.DefaultThreshold,
		VisibilityGate:   config.Comparison.VisibilityGate,
		SecondsPerSample: config.Comparison.SecondsPerSample,
		Mirror:           mirror,
	}

	var history *services.ComparisonHistory
	if clients.BigQueryClient != nil {
		history = &services.ComparisonHistory{
			BigqueryClient: clients.BigQueryClient,
			DatasetName:    config.BigQueryDataSource.DatasetName,
			Table:          config.BigQueryDataSource.ComparisonTable,
		}
	}

	state.handlers = &api.Handlers{
		Videos:      videos,
		Comparisons: comparisons,
		Workflow:    workflow.NewComparisonWorkflow(config, clients, comparisons, mirror),
		History:     history,
		StoreDriver: config.Store.Driver,
	}

	warmup := workflow.NewReferenceWarmupWorkflow(store, cache, config.Application.ThreadPoolSize)
	warmup.StartTimer(ctx, time.Duration(config.Warmup.IntervalSeconds)*time.Second)

	SetupListeners(config, clients, videos, ctx)
	slog.Info("state initialized", "store", config.Store.Driver, "mirror", mirror != nil, "history", history != nil)
	return nil
}
