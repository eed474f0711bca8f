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
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// ArtifactMirror copies annotated videos and reports of completed comparisons
// to a Cloud Storage bucket and hands out V4 signed URLs for them.
type ArtifactMirror struct {
	StorageClient *storage.Client
	// IAMClient signs URLs through SignBlob on behalf of SignerEmail. Without
	// it the storage client's own credentials sign.
	IAMClient   *credentials.IamCredentialsClient
	Bucket      string
	SignerEmail string
	Expires     time.Duration
}

// ReportObject is the object name of a job's report.
func ReportObject(jobID string) string {
	return fmt.Sprintf("comparisons/%s/%s", jobID, ReportFileName(jobID))
}

// AnnotatedObject is the object name of a video's annotated copy.
func AnnotatedObject(id string, role model.Role) string {
	return fmt.Sprintf("annotated/%s/%s_annotated.mp4", role, id)
}

// Upload copies a local file to objectName.
func (m *ArtifactMirror) Upload(ctx context.Context, localPath, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer f.Close()

	writer := m.StorageClient.Bucket(m.Bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = mime.TypeByExtension(filepath.Ext(localPath))
	if written, err := io.Copy(writer, f); err != nil {
		_ = writer.Close()
		return fmt.Errorf("copying to gs://%s/%s after %d bytes: %w", m.Bucket, objectName, written, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing gs://%s/%s: %w", m.Bucket, objectName, err)
	}
	slog.InfoContext(ctx, "artifact mirrored", "bucket", m.Bucket, "object", objectName)
	return nil
}

// SignedURL returns a GET URL for objectName valid for Expires.
func (m *ArtifactMirror) SignedURL(ctx context.Context, objectName string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(m.Expires),
	}
	if m.IAMClient != nil && m.SignerEmail != "" {
		opts.GoogleAccessID = m.SignerEmail
		opts.SignBytes = func(payload []byte) ([]byte, error) {
			resp, err := m.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    "projects/-/serviceAccounts/" + m.SignerEmail,
				Payload: payload,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		}
	}
	u, err := m.StorageClient.Bucket(m.Bucket).SignedURL(objectName, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", m.Bucket, objectName, err)
	}
	return u, nil
}
