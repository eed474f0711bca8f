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
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// ComparisonHistory reads exported comparisons back from BigQuery.
type ComparisonHistory struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	Table          string
}

// GetFQN returns the table name in the dotted form SQL expects.
func (h *ComparisonHistory) GetFQN() string {
	fqn := h.BigqueryClient.Dataset(h.DatasetName).Table(h.Table).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", -1)
}

// ForReference lists the exported comparisons of a reference video, newest
// first.
func (h *ComparisonHistory) ForReference(ctx context.Context, referenceID string, limit int) ([]*model.ComparisonExport, error) {
	if limit <= 0 {
		limit = 50
	}
	q := h.BigqueryClient.Query(fmt.Sprintf(QryComparisonHistory, h.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "reference_id", Value: referenceID},
		{Name: "limit", Value: limit},
	}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read from BigQuery: %w", err)
	}

	out := make([]*model.ComparisonExport, 0)
	for {
		row := &model.ComparisonExport{}
		err := itr.Next(row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to iterate results: %w", err)
		}
		out = append(out, row)
	}
	return out, nil
}
