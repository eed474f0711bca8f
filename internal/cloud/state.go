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

// Package cloud - service clients.
//
// ServiceClients is the container for every client to an external system the
// service talks to. It is created once at startup by NewServiceClients and
// handed to the workflows and API handlers that need it.
//
// Only the pose engine and the artifact lock are always present. The other
// clients are created when their configuration asks for them, so the service
// runs on a laptop with nothing but ffmpeg and a pose engine:
//   - Postgres pool: store.driver = "postgres".
//   - Redis client: lock.driver = "redis".
//   - Storage and IAM credentials: storage.mirror_bucket is set or a topic
//     subscription is configured.
//   - Pub/Sub: at least one topic subscription is configured.
//   - BigQuery: big_query_data_source.dataset is set.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jaycherian/gcp-go-pose-compare/internal/pose"
)

// ServiceClients holds the clients to external systems.
type ServiceClients struct {
	StorageClient   *storage.Client
	PubsubClient    *pubsub.Client
	BigQueryClient  *bigquery.Client
	IAMClient       *credentials.IamCredentialsClient // signs mirror URLs
	PostgresPool    *pgxpool.Pool
	RedisClient     *redis.Client
	PubSubListeners map[string]*PubSubListener
	// PoseEstimator is the rate limited pose engine client.
	PoseEstimator pose.Estimator
	// ArtifactLocker serializes artifact computation per video identity.
	ArtifactLocker Locker
}

// Close releases every client that was created.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BigQueryClient != nil {
		_ = c.BigQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
	if c.PostgresPool != nil {
		c.PostgresPool.Close()
	}
	if c.RedisClient != nil {
		_ = c.RedisClient.Close()
	}
}

// NewServiceClients creates the clients the configuration asks for.
//
// Inputs:
//   - ctx: the application root context.
//   - config: the loaded configuration.
//
// Outputs:
//   - *ServiceClients: the clients. On error every client created so far is
//     closed.
//   - error: the first client that failed to initialize.
func NewServiceClients(ctx context.Context, config *Config) (clients *ServiceClients, err error) {
	created := &ServiceClients{PubSubListeners: make(map[string]*PubSubListener)}
	clients = created
	defer func() {
		if err != nil {
			created.Close()
		}
	}()

	engine := pose.NewHTTPEstimator(config.PoseEngine.Endpoint, 2*config.PoseEngine.Timeout())
	clients.PoseEstimator = NewQuotaAwarePoseEstimator(engine, config.PoseEngine.RateLimit, config.PoseEngine.Burst, config.PoseEngine.Timeout())

	if config.Store.Driver == "postgres" {
		if config.Store.DSN == "" {
			return nil, errors.New("store.dsn is required for the postgres driver")
		}
		pool, err := pgxpool.New(ctx, config.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("creating postgres pool: %w", err)
		}
		clients.PostgresPool = pool
	}

	lockTTL := time.Duration(config.Lock.TTLSeconds) * time.Second
	switch config.Lock.Driver {
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     config.Lock.RedisAddr,
			Password: config.Lock.RedisPassword,
			DB:       config.Lock.RedisDB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", config.Lock.RedisAddr, err)
		}
		clients.RedisClient = rc
		clients.ArtifactLocker = NewRedisLocker(rc, config.Application.Name+":artifact:", lockTTL)
	default:
		clients.ArtifactLocker = NewKeyedMutex()
	}

	needsStorage := config.Storage.MirrorBucket != "" || len(config.TopicSubscriptions) > 0
	if needsStorage {
		sc, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		clients.StorageClient = sc
	}
	if config.Storage.MirrorBucket != "" && config.Storage.SignerServiceAccountEmail != "" {
		ic, err := credentials.NewIamCredentialsClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating iam credentials client: %w", err)
		}
		clients.IAMClient = ic
	}

	if len(config.TopicSubscriptions) > 0 {
		pc, err := pubsub.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			return nil, fmt.Errorf("creating pub/sub client: %w", err)
		}
		clients.PubsubClient = pc
		// Commands are attached once the workflows exist.
		for key, sub := range config.TopicSubscriptions {
			listener, err := NewPubSubListener(pc, sub.Name, nil)
			if err != nil {
				return nil, err
			}
			clients.PubSubListeners[key] = listener
		}
	}

	if config.BigQueryDataSource.DatasetName != "" {
		bc, err := bigquery.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			return nil, fmt.Errorf("creating bigquery client: %w", err)
		}
		clients.BigQueryClient = bc
	}

	slog.Info("service clients ready",
		"store", config.Store.Driver,
		"lock", config.Lock.Driver,
		"storage", clients.StorageClient != nil,
		"pubsub", clients.PubsubClient != nil,
		"bigquery", clients.BigQueryClient != nil)
	return clients, nil
}
