package imaging

import (
	"fmt"
)

// Options is the flat structure a host passes across the boundary.
type Options struct {
	Format    string      `json:"format"`
	Quality   int         `json:"quality"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Grayscale bool        `json:"grayscale"`
	Crop      *CropRegion `json:"crop,omitempty"`
}

// Request builds an immutable request from flat options. An empty format
// means "same as the source": JPEG stays JPEG, everything else becomes PNG.
func (o Options) Request(src []byte) (Request, error) {
	if len(src) == 0 {
		return Request{}, ErrEmptyInput
	}

	var (
		format Format
		err    error
	)
	if o.Format == "" {
		format, err = Sniff(src)
		if err != nil {
			return Request{}, err
		}
		if format != FormatJPEG {
			format = FormatPNG
		}
	} else if format, err = ParseOutputFormat(o.Format); err != nil {
		return Request{}, err
	}

	if o.Width < 0 || o.Height < 0 {
		return Request{}, newError(KindMalformedRequest, "options", fmt.Errorf("negative size %dx%d", o.Width, o.Height))
	}
	if o.Quality < 0 {
		return Request{}, newError(KindMalformedRequest, "options", fmt.Errorf("negative quality %d", o.Quality))
	}

	req := Request{
		Source:    src,
		Output:    OutputSpec{Format: format, Quality: o.Quality},
		Resize:    ResizeTarget{Width: o.Width, Height: o.Height},
		ColorMode: ColorOriginal,
	}
	if o.Grayscale {
		req.ColorMode = ColorGrayscale
	}
	if o.Crop != nil {
		crop := *o.Crop
		req.Crop = &crop
	}
	return req, req.Validate()
}

// ProcessBytes is the single host entry point on the default engine.
func ProcessBytes(src []byte, opts Options) ([]byte, error) {
	return defaultEngine.ProcessBytes(src, opts)
}

func (e *Engine) ProcessBytes(src []byte, opts Options) ([]byte, error) {
	req, err := opts.Request(src)
	if err != nil {
		return nil, err
	}
	res, err := e.Process(req)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}
