//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/imaging"
)

// govipsTransformer renders steps with libvips. Validation and error kinds
// come from the imaging package so both transformers fail the same way.
type govipsTransformer struct {
	settings imaging.Settings
}

func newGovipsTransformer(settings imaging.Settings) govipsTransformer {
	return govipsTransformer{settings: imaging.New(settings).Settings()}
}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, step domain.PipelineStep) (Rendition, error) {
	select {
	case <-ctx.Done():
		return Rendition{}, ctx.Err()
	default:
	}

	req, err := step.Options.Request(input)
	if err != nil {
		return Rendition{}, err
	}
	info, err := imaging.Identify(input)
	if err != nil {
		return Rendition{}, err
	}
	if err := info.CheckLimit(t.settings.MaxPixels); err != nil {
		return Rendition{}, err
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Rendition{}, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if req.Crop != nil {
		if err := req.Crop.Within(img.Width(), img.Height()); err != nil {
			return Rendition{}, err
		}
		if err := img.ExtractArea(req.Crop.X, req.Crop.Y, req.Crop.Width, req.Crop.Height); err != nil {
			return Rendition{}, fmt.Errorf("crop image: %w", err)
		}
	}

	if err := t.resize(img, req.Resize); err != nil {
		return Rendition{}, err
	}

	if req.ColorMode == imaging.ColorGrayscale {
		if err := img.ToColorSpace(vips.InterpretationBW); err != nil {
			return Rendition{}, fmt.Errorf("convert to grayscale: %w", err)
		}
	}

	data, err := t.export(img, req.Output)
	if err != nil {
		return Rendition{}, err
	}
	return Rendition{
		Data:   data,
		Format: req.Output.Format,
		Width:  img.Width(),
		Height: img.Height(),
	}, nil
}

func (t govipsTransformer) resize(img *vips.ImageRef, target imaging.ResizeTarget) error {
	w, h, err := target.Resolve(img.Width(), img.Height(), t.settings.MaxDimension)
	if err != nil {
		return err
	}
	if w == img.Width() && h == img.Height() {
		return nil
	}

	hscale := float64(w) / float64(img.Width())
	vscale := float64(h) / float64(img.Height())
	if err := img.ResizeWithVScale(hscale, vscale, vipsKernel(t.settings.Resampler)); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func (t govipsTransformer) export(img *vips.ImageRef, spec imaging.OutputSpec) ([]byte, error) {
	switch spec.Format {
	case imaging.FormatJPEG:
		if img.HasAlpha() {
			if err := img.ExtractBand(0, img.Bands()-1); err != nil {
				return nil, fmt.Errorf("drop alpha: %w", err)
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = spec.Quality
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case imaging.FormatPNG:
		params := vips.NewPngExportParams()
		params.Compression = vipsCompression(t.settings.PNGCompression)
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	default:
		return nil, spec.Validate()
	}
}

func vipsKernel(r imaging.Resampler) vips.Kernel {
	switch r {
	case imaging.ResampleLanczos3:
		return vips.KernelLanczos3
	case imaging.ResampleCatmullRom:
		return vips.KernelCubic
	default:
		return vips.KernelLinear
	}
}

func vipsCompression(level png.CompressionLevel) int {
	switch level {
	case png.NoCompression:
		return 0
	case png.BestSpeed:
		return 1
	case png.DefaultCompression:
		return 6
	default:
		return 9
	}
}
