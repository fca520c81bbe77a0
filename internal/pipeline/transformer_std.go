package pipeline

import (
	"context"

	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/imaging"
)

// engineTransformer runs steps on the pure-Go imaging engine.
type engineTransformer struct {
	engine *imaging.Engine
}

func newEngineTransformer(settings imaging.Settings) engineTransformer {
	return engineTransformer{engine: imaging.New(settings)}
}

func (t engineTransformer) Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Rendition, error) {
	select {
	case <-ctx.Done():
		return Rendition{}, ctx.Err()
	default:
	}

	req, err := step.Options.Request(input)
	if err != nil {
		return Rendition{}, err
	}
	res, err := t.engine.Process(req)
	if err != nil {
		return Rendition{}, err
	}
	return Rendition{
		Data:        res.Data,
		Format:      res.Format,
		Width:       res.Width,
		Height:      res.Height,
		Passthrough: res.Passthrough,
	}, nil
}
