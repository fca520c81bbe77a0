package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/imaging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrMissingStepID         = errors.New("pipeline step id is required")
	ErrUnsafeObjectKey       = errors.New("object_key escapes the input directory")
)

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Pipeline   []domain.PipelineStep
}

type Output struct {
	StepID      string `json:"step_id"`
	Format      string `json:"format"`
	Path        string `json:"path"`
	Bytes       int    `json:"bytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Passthrough bool   `json:"passthrough,omitempty"`
	Success     bool   `json:"success"`
}

type Result struct {
	SourceBytes int
	Outputs     []Output
}

// Rendition is one encoded output of a step.
type Rendition struct {
	Data        []byte
	Format      imaging.Format
	Width       int
	Height      int
	Passthrough bool
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.PipelineStep, r Rendition) (Output, error)
}

type Processor struct {
	fetcher     Fetcher
	transformer Transformer
	emitter     Emitter
	tracer      trace.Tracer
}

func NewProcessor(fetcher Fetcher, transformer Transformer, emitter Emitter) *Processor {
	return &Processor{
		fetcher:     fetcher,
		transformer: transformer,
		emitter:     emitter,
		tracer:      otel.Tracer("pixelpress/pipeline"),
	}
}

func NewLocalProcessor(inputDir, outputDir string, settings imaging.Settings) (*Processor, error) {
	transformer, err := NewTransformer(settings)
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return NewProcessor(LocalFileFetcher{InputDir: inputDir}, transformer, LocalFileEmitter{OutputDir: outputDir}), nil
}

func NewObjectStoreProcessor(fetcher ObjectStoreFetcher, emitter ObjectStoreEmitter, settings imaging.Settings) (*Processor, error) {
	if fetcher.Storage == nil || emitter.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	transformer, err := NewTransformer(settings)
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return NewProcessor(fetcher, transformer, emitter), nil
}

// Process fetches the source once and runs every step against it in order.
// The first failing step aborts the request.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Pipeline) == 0 {
		return Result{}, errors.New("pipeline must contain at least one step")
	}

	sourceBytes, err := p.fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	out := Result{
		SourceBytes: len(sourceBytes),
		Outputs:     make([]Output, 0, len(req.Pipeline)),
	}
	for _, step := range req.Pipeline {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		rendition, err := p.transform(ctx, sourceBytes, step)
		if err != nil {
			return Result{}, fmt.Errorf("transform stage step=%s: %w", step.ID, err)
		}

		written, err := p.emit(ctx, req, step, rendition)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage step=%s: %w", step.ID, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

func (p *Processor) fetch(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.source_type", req.SourceType),
		attribute.String("job.object_key", req.ObjectKey),
	)

	data, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("source.bytes", len(data)))
	return data, nil
}

func (p *Processor) transform(ctx context.Context, input []byte, step domain.PipelineStep) (Rendition, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.transform")
	defer span.End()
	span.SetAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.format", step.Format),
		attribute.Int("step.width", step.Width),
		attribute.Int("step.height", step.Height),
		attribute.Bool("step.grayscale", step.Grayscale),
		attribute.Bool("step.crop", step.Crop != nil),
	)

	r, err := p.transformer.Transform(ctx, input, step)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, imaging.KindOf(err).String())
		return Rendition{}, err
	}
	span.SetAttributes(
		attribute.String("output.format", string(r.Format)),
		attribute.Int("output.bytes", len(r.Data)),
		attribute.Bool("output.passthrough", r.Passthrough),
	)
	return r, nil
}

func (p *Processor) emit(ctx context.Context, req Request, step domain.PipelineStep, r Rendition) (Output, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.emit")
	defer span.End()
	span.SetAttributes(attribute.String("step.id", step.ID))

	out, err := p.emitter.Emit(ctx, req, step, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "emit failed")
		return Output{}, err
	}
	return out, nil
}

// IsPermanent reports whether err is deterministic for the same input, so
// retrying the job without changing it cannot succeed.
func IsPermanent(err error) bool {
	var imgErr *imaging.Error
	return errors.As(err, &imgErr) ||
		errors.Is(err, ErrUnsupportedSourceType) ||
		errors.Is(err, ErrMissingStepID) ||
		errors.Is(err, ErrUnsafeObjectKey)
}

// LocalFileFetcher reads local_file sources from below InputDir. Keys are
// relative paths; nothing outside the directory is reachable, symlinks
// included.
type LocalFileFetcher struct {
	InputDir string
}

func (f LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	root, name, err := openInputRoot(f.InputDir, req.ObjectKey)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(name)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// StatLocalSource checks that key names a regular file below inputDir.
func StatLocalSource(inputDir, key string) error {
	root, name, err := openInputRoot(inputDir, key)
	if err != nil {
		return err
	}
	defer root.Close()

	info, err := root.Stat(name)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", key)
	}
	return nil
}

func openInputRoot(inputDir, key string) (*os.Root, string, error) {
	name := filepath.FromSlash(strings.TrimSpace(key))
	if !filepath.IsLocal(name) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsafeObjectKey, key)
	}
	if strings.TrimSpace(inputDir) == "" {
		return nil, "", errors.New("input directory is required")
	}
	root, err := os.OpenRoot(inputDir)
	if err != nil {
		return nil, "", fmt.Errorf("open input directory: %w", err)
	}
	return root, name, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.PipelineStep, r Rendition) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, ErrMissingStepID
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputName(step, r.Format))
	if err := os.WriteFile(fullPath, r.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}
	return outputFor(step, r, fullPath), nil
}

func outputName(step domain.PipelineStep, format imaging.Format) string {
	return fmt.Sprintf("%s.%s", sanitizePathToken(step.ID), format.Extension())
}

func outputFor(step domain.PipelineStep, r Rendition, path string) Output {
	return Output{
		StepID:      step.ID,
		Format:      string(r.Format),
		Path:        path,
		Bytes:       len(r.Data),
		Width:       r.Width,
		Height:      r.Height,
		Passthrough: r.Passthrough,
		Success:     true,
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
