package imaging

import (
	"errors"
	"image/color"
	"testing"
)

func TestCropRejectsRegionsOutsideSource(t *testing.T) {
	src := gradientBuffer(t, 10, 8)

	tests := []struct {
		name    string
		region  CropRegion
		wantErr error
	}{
		{name: "right edge", region: CropRegion{X: 5, Y: 0, Width: 6, Height: 1}, wantErr: ErrOutOfBounds},
		{name: "bottom edge", region: CropRegion{X: 0, Y: 7, Width: 1, Height: 2}, wantErr: ErrOutOfBounds},
		{name: "starts past width", region: CropRegion{X: 10, Y: 0, Width: 1, Height: 1}, wantErr: ErrOutOfBounds},
		{name: "negative offset", region: CropRegion{X: -1, Y: 0, Width: 1, Height: 1}, wantErr: ErrOutOfBounds},
		{name: "zero width", region: CropRegion{X: 0, Y: 0, Width: 0, Height: 1}, wantErr: ErrDegenerateRegion},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Crop(src, tc.region); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCropExtractsSubRectangle(t *testing.T) {
	src := gradientBuffer(t, 10, 8)
	before := append([]byte(nil), src.Pix()...)

	got, err := Crop(src, CropRegion{X: 2, Y: 3, Width: 4, Height: 5})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if got.Width() != 4 || got.Height() != 5 {
		t.Fatalf("expected 4x5, got %dx%d", got.Width(), got.Height())
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 4; x++ {
			if got.At(x, y) != src.At(x+2, y+3) {
				t.Fatalf("pixel (%d,%d) differs from source", x, y)
			}
		}
	}

	got.Set(0, 0, color.NRGBA{})
	if string(before) != string(src.Pix()) {
		t.Fatal("crop output shares memory with its source")
	}
}

func TestResizeIdentity(t *testing.T) {
	src := gradientBuffer(t, 31, 17)
	got, err := Resize(src, ResizeTarget{Width: 31, Height: 17})
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if !got.Equal(src) {
		t.Fatal("identity resize changed pixels")
	}
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		target       ResizeTarget
		wantW, wantH int
	}{
		{name: "width only", srcW: 400, srcH: 300, target: ResizeTarget{Width: 200}, wantW: 200, wantH: 150},
		{name: "height only", srcW: 400, srcH: 300, target: ResizeTarget{Height: 150}, wantW: 200, wantH: 150},
		{name: "both zero", srcW: 400, srcH: 300, wantW: 400, wantH: 300},
		{name: "both given distorts", srcW: 400, srcH: 300, target: ResizeTarget{Width: 50, Height: 50}, wantW: 50, wantH: 50},
		{name: "never zero", srcW: 1000, srcH: 1, target: ResizeTarget{Width: 10}, wantW: 10, wantH: 1},
		{name: "rounds to nearest", srcW: 3, srcH: 2, target: ResizeTarget{Width: 2}, wantW: 2, wantH: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, h := ResolveTarget(tc.srcW, tc.srcH, tc.target)
			if w != tc.wantW || h != tc.wantH {
				t.Fatalf("expected %dx%d, got %dx%d", tc.wantW, tc.wantH, w, h)
			}
		})
	}
}

func TestResizeAspectPreservation(t *testing.T) {
	src := gradientBuffer(t, 400, 300)
	got, err := Resize(src, ResizeTarget{Width: 200})
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if got.Width() != 200 || got.Height() != 150 {
		t.Fatalf("expected 200x150, got %dx%d", got.Width(), got.Height())
	}
}

func TestResizeEveryResampler(t *testing.T) {
	src := gradientBuffer(t, 64, 48)
	for _, r := range []Resampler{ResampleBilinear, ResampleCatmullRom, ResampleBox, ResampleLanczos3} {
		t.Run(string(r), func(t *testing.T) {
			for _, target := range []ResizeTarget{{Width: 16}, {Width: 100, Height: 20}} {
				got, err := resize(src, target, r, DefaultMaxDimension)
				if err != nil {
					t.Fatalf("resize %+v: %v", target, err)
				}
				wantW, wantH := ResolveTarget(64, 48, target)
				if got.Width() != wantW || got.Height() != wantH {
					t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, got.Width(), got.Height())
				}
			}
		})
	}
}

func TestResizeRejectsBadTargets(t *testing.T) {
	src := gradientBuffer(t, 10, 10)
	if _, err := Resize(src, ResizeTarget{Width: -1}); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected malformed request, got %v", err)
	}
	if _, err := resize(src, ResizeTarget{Width: 20000}, ResampleBilinear, DefaultMaxDimension); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected malformed request for oversized target, got %v", err)
	}
}

func TestCropBeforeResizeDiffersFromResizeBeforeCrop(t *testing.T) {
	src, err := NewPixelBuffer(1000, 1000)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	black := color.NRGBA{A: 0xff}
	white := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	for y := 0; y < 1000; y++ {
		for x := 0; x < 1000; x++ {
			if x < 500 && y < 500 {
				src.Set(x, y, black)
			} else {
				src.Set(x, y, white)
			}
		}
	}

	cropped, err := Crop(src, CropRegion{Width: 500, Height: 500})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	cropFirst, err := Resize(cropped, ResizeTarget{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("resize: %v", err)
	}

	shrunk, err := Resize(src, ResizeTarget{Width: 200, Height: 200})
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	resizeFirst, err := Crop(shrunk, CropRegion{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}

	if cropFirst.Equal(resizeFirst) {
		t.Fatal("expected crop-then-resize to differ from resize-then-crop")
	}
	if got := cropFirst.At(99, 99); got != black {
		t.Fatalf("expected crop-first corner to stay black, got %+v", got)
	}
}

func TestParseCropRegion(t *testing.T) {
	got, err := ParseCropRegion(" 1, 2,30 ,40")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != (CropRegion{X: 1, Y: 2, Width: 30, Height: 40}) {
		t.Fatalf("unexpected region %+v", got)
	}
	for _, bad := range []string{"", "1,2,3", "1,2,3,x", "1,2,3,4,5"} {
		if _, err := ParseCropRegion(bad); !errors.Is(err, ErrMalformedRequest) {
			t.Fatalf("ParseCropRegion(%q): expected malformed request, got %v", bad, err)
		}
	}
}
