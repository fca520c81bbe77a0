package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/pixelpress/internal/imaging"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	ObjectKey  string         `json:"object_key,omitempty"`
	Pipeline   []PipelineStep `json:"pipeline"`
}

// PipelineStep names one rendition of the source. The flat transform
// options are inlined, e.g. {"id":"thumb","format":"jpeg","quality":80,"width":200}.
type PipelineStep struct {
	ID string `json:"id"`
	imaging.Options
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Pipeline   []PipelineStep
	ObjectKey  string
	Outputs    []JobOutput
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JobOutput records where a finished step was written.
type JobOutput struct {
	StepID      string `json:"step_id"`
	Format      string `json:"format"`
	Location    string `json:"location"`
	Bytes       int    `json:"bytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Passthrough bool   `json:"passthrough,omitempty"`
}

func (j Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile {
		key := strings.TrimSpace(r.ObjectKey)
		if key == "" {
			return errors.New("object_key is required for source_type=local_file")
		}
		// Local keys resolve under the worker input directory.
		if !filepath.IsLocal(filepath.FromSlash(key)) {
			return fmt.Errorf("object_key must be a relative path inside the input directory: %s", r.ObjectKey)
		}
	}
	if len(r.Pipeline) == 0 {
		return errors.New("pipeline must contain at least one step")
	}

	seen := make(map[string]struct{}, len(r.Pipeline))
	for i, step := range r.Pipeline {
		stepID := strings.TrimSpace(step.ID)
		if stepID == "" {
			return fmt.Errorf("pipeline[%d].id is required", i)
		}
		if _, dup := seen[stepID]; dup {
			return fmt.Errorf("pipeline[%d].id %q is duplicated", i, step.ID)
		}
		seen[stepID] = struct{}{}

		if step.Format != "" {
			if _, err := imaging.ParseOutputFormat(step.Format); err != nil {
				return fmt.Errorf("pipeline[%d]: %w", i, err)
			}
		}
		if step.Width < 0 || step.Height < 0 || step.Quality < 0 {
			return fmt.Errorf("pipeline[%d]: width, height and quality must not be negative", i)
		}
	}
	return nil
}
