package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/png"
)

const (
	DefaultMaxPixels      = 100_000_000
	DefaultMaxDimension   = 16384
	DefaultPNGCompression = png.BestCompression
)

// Settings tune an Engine. Zero fields take the defaults.
type Settings struct {
	Resampler      Resampler
	PNGCompression png.CompressionLevel
	MaxPixels      int
	MaxDimension   int

	// DisablePassthrough forces the full decode/encode path even when the
	// source PNG could be returned as is.
	DisablePassthrough bool
}

func DefaultSettings() Settings {
	return Settings{
		Resampler:      ResampleBilinear,
		PNGCompression: DefaultPNGCompression,
		MaxPixels:      DefaultMaxPixels,
		MaxDimension:   DefaultMaxDimension,
	}
}

// Request is one unit of work. The engine never writes to Source.
type Request struct {
	Source    []byte
	Output    OutputSpec
	Crop      *CropRegion
	Resize    ResizeTarget
	ColorMode ColorMode
}

// Validate performs the structural checks that need no pixel data.
func (r Request) Validate() error {
	if len(r.Source) == 0 {
		return newError(KindEmptyInput, "validate", errors.New("no source bytes"))
	}
	if err := r.Output.Validate(); err != nil {
		return err
	}
	if r.Crop != nil {
		if r.Crop.Width <= 0 || r.Crop.Height <= 0 {
			return newError(KindDegenerateRegion, "validate",
				fmt.Errorf("crop size %dx%d", r.Crop.Width, r.Crop.Height))
		}
	}
	if r.Resize.Width < 0 || r.Resize.Height < 0 {
		return newError(KindMalformedRequest, "validate",
			fmt.Errorf("negative resize target %dx%d", r.Resize.Width, r.Resize.Height))
	}
	if r.ColorMode != ColorOriginal && r.ColorMode != ColorGrayscale {
		return newError(KindMalformedRequest, "validate", fmt.Errorf("unknown color mode %d", int(r.ColorMode)))
	}
	return nil
}

type Result struct {
	Data   []byte
	Format Format
	Width  int
	Height int

	// Passthrough is set when Data is a copy of the source bytes.
	Passthrough bool
}

// Engine runs requests with fixed settings. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	settings Settings
}

func New(settings Settings) *Engine {
	def := DefaultSettings()
	if settings.Resampler == "" {
		settings.Resampler = def.Resampler
	}
	if settings.PNGCompression == 0 {
		settings.PNGCompression = def.PNGCompression
	}
	if settings.MaxPixels == 0 {
		settings.MaxPixels = def.MaxPixels
	}
	if settings.MaxDimension == 0 {
		settings.MaxDimension = def.MaxDimension
	}
	return &Engine{settings: settings}
}

var defaultEngine = New(DefaultSettings())

// Process runs req on an engine with default settings.
func Process(req Request) (Result, error) {
	return defaultEngine.Process(req)
}

func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) Decode(data []byte) (*PixelBuffer, error) {
	return decode(data, e.settings.MaxPixels)
}

func (e *Engine) Resize(src *PixelBuffer, target ResizeTarget) (*PixelBuffer, error) {
	return resize(src, target, e.settings.Resampler, e.settings.MaxDimension)
}

func (e *Engine) Encode(buf *PixelBuffer, spec OutputSpec) ([]byte, error) {
	return encode(buf, spec, e.settings.PNGCompression)
}

// Process runs decode, crop, resize, color and encode in that order and
// stops at the first failing stage.
func (e *Engine) Process(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	buf, err := e.Decode(req.Source)
	if err != nil {
		return Result{}, err
	}

	if req.Crop != nil {
		if buf, err = Crop(buf, *req.Crop); err != nil {
			return Result{}, err
		}
	}

	if e.passthrough(req, buf) {
		return Result{
			Data:        bytes.Clone(req.Source),
			Format:      FormatPNG,
			Width:       buf.width,
			Height:      buf.height,
			Passthrough: true,
		}, nil
	}

	if buf, err = e.Resize(buf, req.Resize); err != nil {
		return Result{}, err
	}
	if buf, err = ApplyColorMode(buf, req.ColorMode); err != nil {
		return Result{}, err
	}

	data, err := e.Encode(buf, req.Output)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Data:   data,
		Format: req.Output.Format,
		Width:  buf.width,
		Height: buf.height,
	}, nil
}

// passthrough reports whether the source bytes already are the answer: an
// 8-bit-or-less PNG, fully decoded without error, with no geometry or color
// change and PNG output. Anything else runs the full pipeline.
func (e *Engine) passthrough(req Request, decoded *PixelBuffer) bool {
	if e.settings.DisablePassthrough {
		return false
	}
	if req.Output.Format != FormatPNG || req.Crop != nil || req.ColorMode != ColorOriginal {
		return false
	}
	if format, err := Sniff(req.Source); err != nil || format != FormatPNG {
		return false
	}
	if depth, ok := pngBitDepth(req.Source); !ok || depth > 8 {
		return false
	}
	if !pngEndsAtIEND(req.Source) {
		return false
	}
	w, h := ResolveTarget(decoded.width, decoded.height, req.Resize)
	return w == decoded.width && h == decoded.height
}

// pngEndsAtIEND walks the chunk list and reports whether the stream stops
// exactly after IEND. Bytes the decoder never reads must not be copied out.
func pngEndsAtIEND(data []byte) bool {
	const sigLen, chunkOverhead = 8, 12
	pos := sigLen
	for pos+chunkOverhead <= len(data) {
		n := int64(binary.BigEndian.Uint32(data[pos : pos+4]))
		end := int64(pos) + chunkOverhead + n
		if end > int64(len(data)) {
			return false
		}
		if string(data[pos+4:pos+8]) == "IEND" {
			return end == int64(len(data))
		}
		pos = int(end)
	}
	return false
}

func pngBitDepth(data []byte) (int, bool) {
	const ihdrDepthOffset = 24
	if len(data) <= ihdrDepthOffset || string(data[12:16]) != "IHDR" {
		return 0, false
	}
	return int(data[ihdrDepthOffset]), true
}
