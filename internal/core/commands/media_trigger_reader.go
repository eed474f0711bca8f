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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
)

// MediaTriggerToGCSObject parses the Cloud Storage notification on its input
// into a *cloud.GCSObject. The object is also stored under
// cloud.GetGCSObjectName() for the commands further down the chain.
type MediaTriggerToGCSObject struct {
	cor.BaseCommand
}

func NewMediaTriggerToGCSObject(name string) *MediaTriggerToGCSObject {
	return &MediaTriggerToGCSObject{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *MediaTriggerToGCSObject) Execute(context cor.Context) {
	in, ok := cor.Value[string](context, c.GetInputParam())
	if !ok {
		c.Fail(context, errWrongInput(c.GetName(), "string"))
		return
	}

	var notification cloud.GCSPubSubNotification
	if err := json.Unmarshal([]byte(in), &notification); err != nil {
		c.Fail(context, fmt.Errorf("failed to unmarshal GCS notification: %w", err))
		return
	}
	if notification.Bucket == "" || notification.Name == "" {
		c.Fail(context, fmt.Errorf("GCS notification without bucket or object name"))
		return
	}

	obj := &cloud.GCSObject{
		Bucket:   notification.Bucket,
		Name:     notification.Name,
		MIMEType: notification.ContentType,
		Metadata: notification.MetaData,
	}
	slog.InfoContext(context.GetContext(), "storage notification received", "bucket", obj.Bucket, "object", obj.Name)
	context.Add(cloud.GetGCSObjectName(), obj)
	context.Add(c.GetOutputParam(), obj)
	c.Succeed(context)
}
