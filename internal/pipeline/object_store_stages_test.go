package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/imaging"
	"github.com/dunamismax/pixelpress/internal/storage"
)

func TestObjectStoreRoundTrip(t *testing.T) {
	objects := &memoryObjects{data: map[string][]byte{
		"uploads/job-1/source": buildTestPNG(t, 80, 40),
	}}
	processor := NewProcessor(
		ObjectStoreFetcher{Storage: objects},
		newEngineTransformer(imaging.DefaultSettings()),
		ObjectStoreEmitter{Storage: objects, OutputPrefix: "/renditions/"},
	)

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-1",
		SourceType: SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-1/source",
		Pipeline: []domain.PipelineStep{
			{ID: "small", Options: imaging.Options{Format: "jpeg", Quality: 75, Width: 20}},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	const key = "renditions/job-1/small.jpg"
	if result.Outputs[0].Path != key {
		t.Fatalf("unexpected output key %q", result.Outputs[0].Path)
	}
	meta := objects.meta[key]
	if meta.ContentType != "image/jpeg" || meta.Width != 20 || meta.Height != 10 || meta.StepID != "small" {
		t.Fatalf("unexpected object metadata %+v", meta)
	}
	info, err := imaging.Identify(objects.data[key])
	if err != nil || info.Width != 20 {
		t.Fatalf("stored rendition not readable: %+v %v", info, err)
	}
}

func TestObjectStoreFetcherRejectsLocalSources(t *testing.T) {
	_, err := ObjectStoreFetcher{Storage: &memoryObjects{}}.Fetch(context.Background(), Request{
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "/etc/passwd",
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source type, got %v", err)
	}
}

func TestObjectStoreStagesRequireStorage(t *testing.T) {
	if _, err := (ObjectStoreFetcher{}).Fetch(context.Background(), Request{SourceType: SourceTypeS3Presigned}); err == nil {
		t.Fatal("expected fetch error without storage")
	}
	if _, err := (ObjectStoreEmitter{}).Emit(context.Background(), Request{}, domain.PipelineStep{ID: "x"}, Rendition{}); err == nil {
		t.Fatal("expected emit error without storage")
	}
}

type memoryObjects struct {
	data map[string][]byte
	meta map[string]storage.ObjectMeta
}

func (m *memoryObjects) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m.data[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *memoryObjects) WriteObject(_ context.Context, key string, data []byte, meta storage.ObjectMeta) error {
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	if m.meta == nil {
		m.meta = map[string]storage.ObjectMeta{}
	}
	m.data[key] = data
	m.meta[key] = meta
	return nil
}
