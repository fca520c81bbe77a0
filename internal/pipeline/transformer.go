package pipeline

import (
	"context"

	"github.com/dunamismax/pixelpress/internal/domain"
)

// Transformer renders one pipeline step from the source bytes. All
// implementations apply crop, resize, color and encode in that order.
type Transformer interface {
	Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Rendition, error)
}
