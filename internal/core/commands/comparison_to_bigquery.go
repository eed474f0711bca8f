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
	"log/slog"

	"cloud.google.com/go/bigquery"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

// ComparisonToBigQuery appends a summary row of a completed job to the
// comparison table.
type ComparisonToBigQuery struct {
	cor.BaseCommand
	client  *bigquery.Client
	dataset string
	table   string
}

func NewComparisonToBigQuery(name string, client *bigquery.Client, dataset, table string) *ComparisonToBigQuery {
	return &ComparisonToBigQuery{BaseCommand: *cor.NewBaseCommand(name), client: client, dataset: dataset, table: table}
}

func (c *ComparisonToBigQuery) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(ParamComparisonJob) != nil
}

func (c *ComparisonToBigQuery) Execute(context cor.Context) {
	job, _ := cor.Value[*model.ComparisonJob](context, ParamComparisonJob)
	row := model.NewComparisonExport(job)

	inserter := c.client.Dataset(c.dataset).Table(c.table).Inserter()
	if err := inserter.Put(context.GetContext(), row); err != nil {
		c.Fail(context, fmt.Errorf("bigquery insert failed for comparison %s: %w", job.ID, err))
		return
	}
	slog.InfoContext(context.GetContext(), "comparison exported", "job_id", job.ID, "table", c.table)
	c.Succeed(context)
}
