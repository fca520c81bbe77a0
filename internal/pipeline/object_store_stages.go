package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/storage"
)

const SourceTypeS3Presigned = domain.SourceTypeS3Presigned

var errNoStorage = errors.New("storage client is required")

// ObjectReader is the read side of the object store. *storage.Client
// implements it.
type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

type ObjectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, meta storage.ObjectMeta) error
}

// ObjectStoreFetcher loads uploaded sources, e.g. uploads/<job>/source.
type ObjectStoreFetcher struct {
	Storage ObjectReader
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errNoStorage
	}
	if !strings.EqualFold(req.SourceType, SourceTypeS3Presigned) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	data, err := f.Storage.ReadObject(ctx, req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// ObjectStoreEmitter writes each rendition with its content type and
// dimensions attached as object metadata.
type ObjectStoreEmitter struct {
	Storage      ObjectWriter
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, step domain.PipelineStep, r Rendition) (Output, error) {
	if e.Storage == nil {
		return Output{}, errNoStorage
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, ErrMissingStepID
	}

	key := ObjectKey(e.OutputPrefix, req.JobID, step, r)
	err := e.Storage.WriteObject(ctx, key, r.Data, storage.ObjectMeta{
		ContentType: r.Format.ContentType(),
		Width:       r.Width,
		Height:      r.Height,
		StepID:      step.ID,
	})
	if err != nil {
		return Output{}, fmt.Errorf("write rendition %s: %w", key, err)
	}
	return outputFor(step, r, key), nil
}

// ObjectKey is where a rendition is stored: <prefix>/<job>/<step>.<ext>.
// An empty prefix means "outputs".
func ObjectKey(prefix, jobID string, step domain.PipelineStep, r Rendition) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "outputs"
	}
	return path.Join(prefix, sanitizePathToken(jobID), outputName(step, r.Format))
}
