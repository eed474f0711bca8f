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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
)

var reportTemplate = template.Must(template.New("report").Parse(`Pose Comparison Report
{{.Rule}}
Reference video: {{.Reference.Filename}} ({{.Reference.ID}})
Subject video: {{.Subject.Filename}} ({{.Subject.ID}})
Reference duration: {{printf "%.2f" .Reference.Duration}}s, frame rate: {{printf "%.2f" .Reference.FPS}} fps
Subject duration: {{printf "%.2f" .Subject.Duration}}s, frame rate: {{printf "%.2f" .Subject.FPS}} fps
Difference threshold: {{.Job.Threshold}}
Total differences: {{.Job.TotalDifferences}}

{{range .Job.Differences}}Frame {{.FrameIndex}}: {{.Describe}}, timestamp {{printf "%.2f" .Timestamp}}s
{{end}}`))

type reportData struct {
	Rule      string
	Job       *model.ComparisonJob
	Reference *model.VideoRecord
	Subject   *model.VideoRecord
}

// RenderReport writes the plain-text report of a job.
func RenderReport(w io.Writer, job *model.ComparisonJob, reference, subject *model.VideoRecord) error {
	return reportTemplate.Execute(w, reportData{
		Rule:      strings.Repeat("=", 50),
		Job:       job,
		Reference: reference,
		Subject:   subject,
	})
}

// ReportFileName is the report file of a job inside the report directory.
func ReportFileName(jobID string) string {
	return fmt.Sprintf("comparison_%s.txt", jobID)
}

// WriteReportFile renders the report into dir and returns its path.
func WriteReportFile(dir string, job *model.ComparisonJob, reference, subject *model.VideoRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ReportFileName(job.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := RenderReport(f, job, reference, subject); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("rendering report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
