//go:build govips && cgo

package pipeline

import (
	"runtime"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelpress/internal/imaging"
)

// Backend names the transformer compiled into this binary.
const Backend = "libvips"

var vipsRuntime struct {
	once    sync.Once
	mu      sync.Mutex
	running bool
}

func startVips() {
	vipsRuntime.once.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: runtime.GOMAXPROCS(0),
			MaxCacheMem:      128 << 20,
			MaxCacheSize:     100,
		})
		vipsRuntime.mu.Lock()
		vipsRuntime.running = true
		vipsRuntime.mu.Unlock()
	})
}

// Shutdown releases libvips. Transformers must not be used afterwards.
func Shutdown() {
	vipsRuntime.mu.Lock()
	defer vipsRuntime.mu.Unlock()
	if vipsRuntime.running {
		vips.Shutdown()
		vipsRuntime.running = false
	}
}

func NewTransformer(settings imaging.Settings) (Transformer, error) {
	startVips()
	return newGovipsTransformer(settings), nil
}
