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

// Package services - SQL.
//
// This file centralizes the SQL text used by the services: the Postgres
// schema and statements of PostgresStore, and the BigQuery queries of the
// comparison history. BigQuery statements use fmt verbs for the fully
// qualified table name only; values are always passed as query parameters.
package services

const (
	// Schema statements create the Postgres tables on first start.
	SchemaVideos = `CREATE TABLE IF NOT EXISTS videos (
	id               TEXT NOT NULL,
	role             TEXT NOT NULL,
	filename         TEXT NOT NULL,
	file_path        TEXT NOT NULL,
	duration         DOUBLE PRECISION NOT NULL DEFAULT 0,
	fps              DOUBLE PRECISION NOT NULL DEFAULT 0,
	width            INTEGER NOT NULL DEFAULT 0,
	height           INTEGER NOT NULL DEFAULT 0,
	has_audio        BOOLEAN NOT NULL DEFAULT FALSE,
	title            TEXT NOT NULL DEFAULT '',
	author           TEXT NOT NULL DEFAULT '',
	tags             TEXT[] NOT NULL DEFAULT '{}',
	description      TEXT NOT NULL DEFAULT '',
	reference_id     TEXT NOT NULL DEFAULT '',
	create_date      TIMESTAMPTZ NOT NULL,
	landmark_status  TEXT NOT NULL DEFAULT 'pending',
	landmark_count   INTEGER NOT NULL DEFAULT 0,
	annotated_status TEXT NOT NULL DEFAULT 'pending',
	annotated_path   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (id, role)
)`

	SchemaLandmarkFrames = `CREATE TABLE IF NOT EXISTS landmark_frames (
	video_id    TEXT NOT NULL,
	role        TEXT NOT NULL,
	frame_index INTEGER NOT NULL,
	pose        JSONB NOT NULL,
	ts          DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (video_id, role, frame_index),
	FOREIGN KEY (video_id, role) REFERENCES videos (id, role) ON DELETE CASCADE
)`

	SchemaComparisons = `CREATE TABLE IF NOT EXISTS comparisons (
	id                TEXT PRIMARY KEY,
	reference_id      TEXT NOT NULL,
	subject_id        TEXT NOT NULL,
	threshold         DOUBLE PRECISION NOT NULL,
	status            TEXT NOT NULL,
	differences       JSONB NOT NULL DEFAULT '[]',
	total_differences INTEGER NOT NULL DEFAULT 0,
	report_path       TEXT NOT NULL DEFAULT '',
	audio_degraded    BOOLEAN NOT NULL DEFAULT FALSE,
	error             TEXT NOT NULL DEFAULT '',
	create_date       TIMESTAMPTZ NOT NULL,
	complete_date     TIMESTAMPTZ
)`

	videoColumns = `id, role, filename, file_path, duration, fps, width, height, has_audio, title, author, tags,
	description, reference_id, create_date, landmark_status, landmark_count, annotated_status, annotated_path`

	QryGetVideo = "SELECT " + videoColumns + " FROM videos WHERE id = $1 AND role = $2"

	QryListVideos = "SELECT " + videoColumns + " FROM videos WHERE role = $1 ORDER BY create_date DESC, id"

	QryUpsertVideo = "INSERT INTO videos (" + videoColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (id, role) DO UPDATE SET
	filename = EXCLUDED.filename, file_path = EXCLUDED.file_path, duration = EXCLUDED.duration,
	fps = EXCLUDED.fps, width = EXCLUDED.width, height = EXCLUDED.height, has_audio = EXCLUDED.has_audio,
	title = EXCLUDED.title, author = EXCLUDED.author, tags = EXCLUDED.tags, description = EXCLUDED.description,
	reference_id = EXCLUDED.reference_id, landmark_status = EXCLUDED.landmark_status,
	landmark_count = EXCLUDED.landmark_count, annotated_status = EXCLUDED.annotated_status,
	annotated_path = EXCLUDED.annotated_path`

	QryDeleteVideo = "DELETE FROM videos WHERE id = $1 AND role = $2"

	QryDeleteLandmarks = "DELETE FROM landmark_frames WHERE video_id = $1 AND role = $2"

	QryLandmarks = "SELECT frame_index, pose, ts FROM landmark_frames WHERE video_id = $1 AND role = $2 ORDER BY frame_index"

	QryMarkLandmarksDone = "UPDATE videos SET landmark_status = 'done', landmark_count = $3 WHERE id = $1 AND role = $2"

	QryMarkAnnotatedDone = "UPDATE videos SET annotated_status = 'done', annotated_path = $3 WHERE id = $1 AND role = $2"

	QryResetArtifacts = `UPDATE videos SET landmark_status = 'pending', landmark_count = 0,
	annotated_status = 'pending', annotated_path = '' WHERE id = $1 AND role = $2`

	comparisonColumns = `id, reference_id, subject_id, threshold, status, differences, total_differences,
	report_path, audio_degraded, error, create_date, complete_date`

	QryInsertComparison = "INSERT INTO comparisons (" + comparisonColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)"

	QryUpdateComparison = `UPDATE comparisons SET status = $2, differences = $3, total_differences = $4,
	report_path = $5, audio_degraded = $6, error = $7, complete_date = $8 WHERE id = $1`

	QryGetComparison = "SELECT " + comparisonColumns + " FROM comparisons WHERE id = $1"

	QryListComparisons = "SELECT " + comparisonColumns + " FROM comparisons ORDER BY create_date DESC, id LIMIT $1"

	QryStats = `SELECT
	(SELECT COUNT(*) FROM videos WHERE role = 'reference'),
	(SELECT COUNT(*) FROM videos WHERE role = 'subject'),
	(SELECT COUNT(*) FROM comparisons),
	(SELECT COUNT(*) FROM landmark_frames)`
)

const (
	// QryComparisonHistory lists exported comparisons of one reference video,
	// newest first. The placeholder is the fully qualified table name.
	QryComparisonHistory = "SELECT job_id, reference_id, subject_id, threshold, status, total_differences, incomparable_frames, degraded_frames, audio_degraded, create_date FROM `%s` WHERE reference_id = @reference_id ORDER BY create_date DESC LIMIT @limit"
)
