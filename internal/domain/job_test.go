package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dunamismax/pixelpress/internal/imaging"
)

func TestCreateJobRequestValidate(t *testing.T) {
	thumb := PipelineStep{ID: "thumb_small", Options: imaging.Options{Format: "jpeg", Quality: 80, Width: 120}}

	valid := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Pipeline:   []PipelineStep{thumb},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateJobRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingObjectKey := CreateJobRequest{
		SourceType: SourceTypeLocalFile,
		Pipeline:   []PipelineStep{thumb},
	}
	if err := missingObjectKey.Validate(); err == nil {
		t.Fatal("expected validation error for local_file object_key")
	}

	for _, key := range []string{"/etc/passwd", "../secrets/key.png", "uploads/../../x.png"} {
		escaping := CreateJobRequest{
			SourceType: SourceTypeLocalFile,
			ObjectKey:  key,
			Pipeline:   []PipelineStep{thumb},
		}
		if err := escaping.Validate(); err == nil {
			t.Fatalf("expected object_key %q to be rejected", key)
		}
	}

	nested := CreateJobRequest{
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "batch-1/source.png",
		Pipeline:   []PipelineStep{thumb},
	}
	if err := nested.Validate(); err != nil {
		t.Fatalf("expected nested relative key to be valid, got %v", err)
	}

	unsupportedSourceType := CreateJobRequest{
		SourceType: "http_url",
		Pipeline:   []PipelineStep{thumb},
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}

	duplicated := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Pipeline:   []PipelineStep{thumb, thumb},
	}
	if err := duplicated.Validate(); err == nil {
		t.Fatal("expected validation error for duplicated step ids")
	}

	badFormat := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Pipeline:   []PipelineStep{{ID: "gif", Options: imaging.Options{Format: "gif"}}},
	}
	if err := badFormat.Validate(); !errors.Is(err, imaging.ErrUnsupportedOutputFormat) {
		t.Fatalf("expected unsupported output format, got %v", err)
	}
}

func TestPipelineStepJSONIsFlat(t *testing.T) {
	var step PipelineStep
	body := `{"id":"crop","format":"png","grayscale":true,"crop":{"x":1,"y":2,"width":3,"height":4}}`
	if err := json.Unmarshal([]byte(body), &step); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if step.ID != "crop" || step.Format != "png" || !step.Grayscale {
		t.Fatalf("unexpected step %+v", step)
	}
	if step.Crop == nil || step.Crop.Height != 4 {
		t.Fatalf("unexpected crop %+v", step.Crop)
	}
}
