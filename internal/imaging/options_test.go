package imaging

import (
	"errors"
	"strings"
	"testing"
)

func TestOptionsRequest(t *testing.T) {
	png := pngBytes(t, gradientImage(10, 10))
	jpg := jpegBytes(t, gradientImage(10, 10), 80)

	req, err := Options{Quality: 80}.Request(jpg)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Output.Format != FormatJPEG {
		t.Fatalf("expected jpeg source to keep jpeg output, got %s", req.Output.Format)
	}

	req, err = Options{}.Request(png)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Output.Format != FormatPNG || req.ColorMode != ColorOriginal {
		t.Fatalf("unexpected request %+v", req)
	}

	crop := &CropRegion{X: 1, Y: 1, Width: 4, Height: 4}
	req, err = Options{Format: "png", Grayscale: true, Width: 2, Crop: crop}.Request(png)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	crop.Width = 99
	if req.Crop.Width != 4 {
		t.Fatal("request shares the caller's crop region")
	}
	if req.ColorMode != ColorGrayscale || req.Resize.Width != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestOptionsRequestRejectsBadInput(t *testing.T) {
	png := pngBytes(t, gradientImage(10, 10))

	tests := []struct {
		name    string
		src     []byte
		opts    Options
		wantErr error
	}{
		{name: "empty", opts: Options{Format: "png"}, wantErr: ErrEmptyInput},
		{name: "negative width", src: png, opts: Options{Format: "png", Width: -1}, wantErr: ErrMalformedRequest},
		{name: "negative quality", src: png, opts: Options{Format: "jpeg", Quality: -1}, wantErr: ErrMalformedRequest},
		{name: "unknown format", src: png, opts: Options{Format: "bmp"}, wantErr: ErrUnsupportedOutputFormat},
		{name: "missing jpeg quality", src: png, opts: Options{Format: "jpeg"}, wantErr: ErrInvalidQuality},
		{name: "unrecognized source", src: []byte("hello"), opts: Options{}, wantErr: ErrUnsupportedFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.opts.Request(tc.src); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProcessBytes(t *testing.T) {
	src := pngBytes(t, gradientImage(80, 40))

	out, err := ProcessBytes(src, Options{Format: "jpeg", Quality: 85, Height: 20})
	if err != nil {
		t.Fatalf("process bytes: %v", err)
	}
	info, err := Identify(out)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if info.Width != 40 || info.Height != 20 {
		t.Fatalf("expected 40x20, got %dx%d", info.Width, info.Height)
	}

	_, err = ProcessBytes(src, Options{Crop: &CropRegion{X: 70, Width: 20, Height: 5}})
	if err == nil || !strings.Contains(err.Error(), "geometry error: region out of bounds") {
		t.Fatalf("expected readable out of bounds message, got %v", err)
	}
}
