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

// Package cloud - Cloud Storage notification models.
//
// Structs:
//   - GCSPubSubNotification: the JSON payload of a bucket notification.
//   - GCSObject: the subset of it the ingest workflow needs.
package cloud

import (
	"path"
	"strings"
)

// GetGCSObjectName returns the chain context key holding the GCSObject being
// ingested.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSPubSubNotification maps the payload Cloud Storage publishes when an
// object in a watched bucket is finalized.
type GCSPubSubNotification struct {
	Kind        string            `json:"kind"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	Generation  string            `json:"generation"`
	ContentType string            `json:"contentType"`
	TimeCreated string            `json:"timeCreated"`
	Updated     string            `json:"updated"`
	Size        string            `json:"size"`
	MD5Hash     string            `json:"md5Hash"`
	MediaLink   string            `json:"mediaLink"`
	MetaData    map[string]string `json:"metadata"`
	Crc32c      string            `json:"crc32c"`
	ETag        string            `json:"etag"`
}

// GCSObject is an object to ingest.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
	// Metadata carries the object's custom metadata, e.g. title and tags.
	Metadata map[string]string
}

// BaseName returns the last path element of the object name.
func (o *GCSObject) BaseName() string {
	return path.Base(o.Name)
}

// Extension returns the lower-case extension without the dot.
func (o *GCSObject) Extension() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(o.Name)), ".")
}
