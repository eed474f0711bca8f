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

package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
)

// GCSToTempFile downloads the *cloud.GCSObject on its input into a temporary
// file, keeping the object's extension, and outputs the file path. The file
// is registered with the context so it is removed when the chain closes.
type GCSToTempFile struct {
	cor.BaseCommand
	client         *storage.Client
	tempFilePrefix string
}

func NewGCSToTempFile(name string, client *storage.Client, tempFilePrefix string) *GCSToTempFile {
	return &GCSToTempFile{
		BaseCommand:    *cor.NewBaseCommand(name),
		client:         client,
		tempFilePrefix: tempFilePrefix,
	}
}

func (c *GCSToTempFile) Execute(context cor.Context) {
	msg, ok := cor.Value[*cloud.GCSObject](context, c.GetInputParam())
	if !ok {
		c.Fail(context, errWrongInput(c.GetName(), "*cloud.GCSObject"))
		return
	}

	reader, err := c.client.Bucket(msg.Bucket).Object(msg.Name).NewReader(context.GetContext())
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to create GCS reader for gs://%s/%s: %w", msg.Bucket, msg.Name, err))
		return
	}
	defer func() {
		if err := reader.Close(); err != nil {
			slog.Warn("failed to close GCS reader", "error", err)
		}
	}()

	tempFile, err := os.CreateTemp("", c.tempFilePrefix+"*."+msg.Extension())
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create temp file: %w", err))
		return
	}
	context.AddTempFile(tempFile.Name())

	written, err := io.Copy(tempFile, reader)
	_ = tempFile.Close()
	if err != nil {
		c.Fail(context, fmt.Errorf("copying gs://%s/%s after %d bytes: %w", msg.Bucket, msg.Name, written, err))
		return
	}

	slog.InfoContext(context.GetContext(), "downloaded storage object",
		"bucket", msg.Bucket, "object", msg.Name, "file", tempFile.Name(), "bytes", written)
	context.Add(c.GetOutputParam(), tempFile.Name())
	c.Succeed(context)
}
