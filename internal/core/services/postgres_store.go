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

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// PostgresStore is a Store backed by a pgx connection pool. Landmark poses
// are kept as JSONB, one row per sampled frame.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a pool. Call InitSchema before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the tables if they do not exist.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	for _, stmt := range []string{SchemaVideos, SchemaLandmarkFrames, SchemaComparisons} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

func scanVideo(row pgx.Row) (*model.VideoRecord, error) {
	v := &model.VideoRecord{}
	var role, landmarkStatus, annotatedStatus string
	err := row.Scan(&v.ID, &role, &v.Filename, &v.FilePath, &v.Duration, &v.FPS, &v.Width, &v.Height,
		&v.HasAudio, &v.Title, &v.Author, &v.Tags, &v.Description, &v.ReferenceID, &v.CreateDate,
		&landmarkStatus, &v.LandmarkCount, &annotatedStatus, &v.AnnotatedPath)
	if err != nil {
		return nil, err
	}
	v.Role = model.Role(role)
	v.LandmarkStatus = model.ArtifactStatus(landmarkStatus)
	v.AnnotatedStatus = model.ArtifactStatus(annotatedStatus)
	if v.Tags == nil {
		v.Tags = make([]string, 0)
	}
	return v, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string, role model.Role) (*model.VideoRecord, error) {
	v, err := scanVideo(s.pool.QueryRow(ctx, QryGetVideo, id, string(role)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(string(role)+" video", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading video %s: %w", id, err)
	}
	return v, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, v *model.VideoRecord) error {
	tags := v.Tags
	if tags == nil {
		tags = make([]string, 0)
	}
	_, err := s.pool.Exec(ctx, QryUpsertVideo,
		v.ID, string(v.Role), v.Filename, v.FilePath, v.Duration, v.FPS, v.Width, v.Height, v.HasAudio,
		v.Title, v.Author, tags, v.Description, v.ReferenceID, v.CreateDate,
		string(v.LandmarkStatus), v.LandmarkCount, string(v.AnnotatedStatus), v.AnnotatedPath)
	if err != nil {
		return fmt.Errorf("saving video %s: %w", v.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListByRole(ctx context.Context, role model.Role) ([]*model.VideoRecord, error) {
	rows, err := s.pool.Query(ctx, QryListVideos, string(role))
	if err != nil {
		return nil, fmt.Errorf("listing %s videos: %w", role, err)
	}
	defer rows.Close()
	out := make([]*model.VideoRecord, 0)
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string, role model.Role) error {
	tag, err := s.pool.Exec(ctx, QryDeleteVideo, id, string(role))
	if err != nil {
		return fmt.Errorf("deleting video %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(string(role)+" video", id)
	}
	return nil
}

// SaveLandmarks replaces the stored sequence in one transaction: the old rows
// are deleted and the new ones bulk copied in frame order.
func (s *PostgresStore) SaveLandmarks(ctx context.Context, id string, role model.Role, frames []model.LandmarkFrame) error {
	rows := make([][]any, 0, len(frames))
	for _, f := range frames {
		pose, err := json.Marshal(f.Pose)
		if err != nil {
			return fmt.Errorf("encoding frame %d: %w", f.FrameIndex, err)
		}
		rows = append(rows, []any{id, string(role), f.FrameIndex, pose, f.Timestamp})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, QryDeleteLandmarks, id, string(role)); err != nil {
		return fmt.Errorf("clearing landmarks of %s: %w", id, err)
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"landmark_frames"},
		[]string{"video_id", "role", "frame_index", "pose", "ts"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copying landmarks of %s: %w", id, err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Landmarks(ctx context.Context, id string, role model.Role) ([]model.LandmarkFrame, error) {
	if _, err := s.Get(ctx, id, role); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, QryLandmarks, id, string(role))
	if err != nil {
		return nil, fmt.Errorf("reading landmarks of %s: %w", id, err)
	}
	defer rows.Close()
	out := make([]model.LandmarkFrame, 0)
	for rows.Next() {
		f := model.LandmarkFrame{VideoID: id}
		var pose []byte
		if err := rows.Scan(&f.FrameIndex, &pose, &f.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(pose, &f.Pose); err != nil {
			return nil, fmt.Errorf("decoding frame %d of %s: %w", f.FrameIndex, id, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) execOne(ctx context.Context, sql, id string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("updating video %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("video", id)
	}
	return nil
}

func (s *PostgresStore) MarkLandmarksDone(ctx context.Context, id string, role model.Role, count int) error {
	return s.execOne(ctx, QryMarkLandmarksDone, id, id, string(role), count)
}

func (s *PostgresStore) MarkAnnotatedDone(ctx context.Context, id string, role model.Role, path string) error {
	return s.execOne(ctx, QryMarkAnnotatedDone, id, id, string(role), path)
}

func (s *PostgresStore) ResetArtifacts(ctx context.Context, id string, role model.Role) error {
	return s.execOne(ctx, QryResetArtifacts, id, id, string(role))
}

func (s *PostgresStore) CreateComparison(ctx context.Context, j *model.ComparisonJob) error {
	diffs, err := json.Marshal(j.Differences)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, QryInsertComparison,
		j.ID, j.ReferenceID, j.SubjectID, j.Threshold, string(j.Status), diffs, j.TotalDifferences,
		j.ReportPath, j.AudioDegraded, j.Error, j.CreateDate, j.CompleteDate)
	if err != nil {
		return fmt.Errorf("creating comparison %s: %w", j.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateComparison(ctx context.Context, j *model.ComparisonJob) error {
	diffs, err := json.Marshal(j.Differences)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, QryUpdateComparison,
		j.ID, string(j.Status), diffs, j.TotalDifferences, j.ReportPath, j.AudioDegraded, j.Error, j.CompleteDate)
	if err != nil {
		return fmt.Errorf("updating comparison %s: %w", j.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("comparison", j.ID)
	}
	return nil
}

func scanComparison(row pgx.Row) (*model.ComparisonJob, error) {
	j := &model.ComparisonJob{}
	var status string
	var diffs []byte
	var completed *time.Time
	err := row.Scan(&j.ID, &j.ReferenceID, &j.SubjectID, &j.Threshold, &status, &diffs, &j.TotalDifferences,
		&j.ReportPath, &j.AudioDegraded, &j.Error, &j.CreateDate, &completed)
	if err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	j.CompleteDate = completed
	if err := json.Unmarshal(diffs, &j.Differences); err != nil {
		return nil, fmt.Errorf("decoding differences of %s: %w", j.ID, err)
	}
	if j.Differences == nil {
		j.Differences = make([]model.FrameDifference, 0)
	}
	return j, nil
}

func (s *PostgresStore) GetComparison(ctx context.Context, id string) (*model.ComparisonJob, error) {
	j, err := scanComparison(s.pool.QueryRow(ctx, QryGetComparison, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("comparison", id)
	}
	return j, err
}

func (s *PostgresStore) ListComparisons(ctx context.Context, limit int) ([]*model.ComparisonJob, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, QryListComparisons, limit)
	if err != nil {
		return nil, fmt.Errorf("listing comparisons: %w", err)
	}
	defer rows.Close()
	out := make([]*model.ComparisonJob, 0)
	for rows.Next() {
		j, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{}
	err := s.pool.QueryRow(ctx, QryStats).Scan(&st.ReferenceVideos, &st.SubjectVideos, &st.Comparisons, &st.LandmarkFrames)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}
	return st, nil
}
