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

// Package cloud defines the application configuration, loaded from TOML files,
// and the clients for the external services the application talks to.
//
// Structs:
//   - Application: process-wide settings (directories, upload limits, worker pool).
//   - Logging / Telemetry: observability settings.
//   - Media / PoseEngine: locations and limits of the codec and pose engines.
//   - Comparison: defaults for the comparison engine.
//   - Store / Lock: metadata store and per-identity lock backends.
//   - Storage / BigQueryDataSource / TopicSubscription: optional Google Cloud integrations.
//   - Config: the top-level struct aggregating all of the above.
//
// Functions:
//   - NewConfig: returns a Config populated with defaults, so a missing or
//     partial configuration file still yields a runnable service.
package cloud

import "time"

// Application holds process-wide settings.
type Application struct {
	Name            string   `toml:"name"`
	ListenAddress   string   `toml:"listen_address"`
	GoogleProjectId string   `toml:"google_project_id"`
	UploadDir       string   `toml:"upload_dir"`
	ArtifactDir     string   `toml:"artifact_dir"`
	ReportDir       string   `toml:"report_dir"`
	MaxUploadMB     int64    `toml:"max_upload_mb"`
	AllowedFormats  []string `toml:"allowed_extensions"`
	KeyframeStride  int      `toml:"keyframe_stride"`
	ThreadPoolSize  int      `toml:"thread_pool_size"`
	// EagerReferenceWarmup builds landmarks and the annotated video in the
	// background right after a reference upload.
	EagerReferenceWarmup bool `toml:"eager_reference_warmup"`
	ShutdownTimeoutSecs  int  `toml:"shutdown_timeout_seconds"`
}

// Logging selects the slog handler.
type Logging struct {
	Format string `toml:"format"` // "json" (Cloud Logging fields) or "text" (tint console)
	Level  string `toml:"level"`
	File   string `toml:"file"` // optional tee target
}

// Telemetry selects the OpenTelemetry exporters.
type Telemetry struct {
	Exporter string `toml:"exporter"` // "none" or "gcp"
}

// Media locates the codec executables.
type Media struct {
	FfmpegPath  string `toml:"ffmpeg_path"`
	FfprobePath string `toml:"ffprobe_path"`
}

// PoseEngine configures the pose estimation sidecar.
type PoseEngine struct {
	Endpoint string `toml:"endpoint"`
	// TimeoutMillis is the soft deadline of a single detect call.
	TimeoutMillis int `toml:"timeout_ms"`
	// RateLimit is the sustained number of detect calls per second; Burst the
	// bucket size.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

// Timeout returns the soft deadline as a duration.
func (p PoseEngine) Timeout() time.Duration {
	return time.Duration(p.TimeoutMillis) * time.Millisecond
}

// Comparison holds comparison defaults.
type Comparison struct {
	DefaultThreshold float64 `toml:"default_threshold"`
	VisibilityGate   float64 `toml:"visibility_gate"`
	SecondsPerSample float64 `toml:"seconds_per_sample"`
}

// Store selects the video metadata store.
type Store struct {
	Driver string `toml:"driver"` // "memory" or "postgres"
	DSN    string `toml:"dsn"`
}

// Lock selects the per-identity lock used by the artifact cache.
type Lock struct {
	Driver        string `toml:"driver"` // "local" or "redis"
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

// Storage configures the optional artifact mirror bucket.
type Storage struct {
	MirrorBucket              string `toml:"mirror_bucket"`
	SignerServiceAccountEmail string `toml:"signer_service_account_email"`
	SignedURLMinutes          int    `toml:"signed_url_minutes"`
}

// BigQueryDataSource configures the optional comparison export.
type BigQueryDataSource struct {
	DatasetName     string `toml:"dataset"`
	ComparisonTable string `toml:"comparison_table"`
}

// TopicSubscription configures one Pub/Sub subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`
	DeadLetterTopic  string `toml:"dead_letter_topic"`
	TimeoutInSeconds int    `toml:"timeout_in_seconds"`
}

// Warmup configures the periodic reference warm-up.
type Warmup struct {
	IntervalSeconds int `toml:"interval_seconds"` // 0 disables it
}

// Config is the top-level configuration.
type Config struct {
	Application        Application                  `toml:"application"`
	Logging            Logging                      `toml:"logging"`
	Telemetry          Telemetry                    `toml:"telemetry"`
	Media              Media                        `toml:"media"`
	PoseEngine         PoseEngine                   `toml:"pose_engine"`
	Comparison         Comparison                   `toml:"comparison"`
	Store              Store                        `toml:"store"`
	Lock               Lock                         `toml:"lock"`
	Storage            Storage                      `toml:"storage"`
	BigQueryDataSource BigQueryDataSource           `toml:"big_query_data_source"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`
	Warmup             Warmup                       `toml:"warmup"`
}

// ReferenceUploadsTopic is the TopicSubscriptions key of the bucket
// notification subscription that feeds the ingest workflow.
const ReferenceUploadsTopic = "ReferenceUploads"

// NewConfig returns a Config with defaults for every setting.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:                "pose-compare",
			ListenAddress:       ":8080",
			UploadDir:           "uploads",
			ArtifactDir:         "artifacts",
			ReportDir:           "reports",
			MaxUploadMB:         500,
			AllowedFormats:      []string{"mp4", "avi", "mov", "mkv", "webm"},
			KeyframeStride:      5,
			ThreadPoolSize:      4,
			ShutdownTimeoutSecs: 5,
		},
		Logging:    Logging{Format: "json", Level: "info"},
		Telemetry:  Telemetry{Exporter: "none"},
		Media:      Media{FfmpegPath: "ffmpeg", FfprobePath: "ffprobe"},
		PoseEngine: PoseEngine{Endpoint: "http://localhost:8501/v1/pose", TimeoutMillis: 2000, RateLimit: 50, Burst: 10},
		Comparison: Comparison{DefaultThreshold: 0.3, VisibilityGate: 0.7, SecondsPerSample: 1.0},
		Store:      Store{Driver: "memory"},
		Lock:       Lock{Driver: "local", TTLSeconds: 900},
		Storage:    Storage{SignedURLMinutes: 15},
		BigQueryDataSource: BigQueryDataSource{
			ComparisonTable: "comparisons",
		},
		TopicSubscriptions: make(map[string]TopicSubscription),
	}
}
