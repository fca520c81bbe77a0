//go:build !govips || !cgo

package pipeline

import "github.com/dunamismax/pixelpress/internal/imaging"

const Backend = "go"

func Shutdown() {}

// NewTransformer returns the pure-Go engine; build with -tags govips to use
// libvips instead.
func NewTransformer(settings imaging.Settings) (Transformer, error) {
	return newEngineTransformer(settings), nil
}
