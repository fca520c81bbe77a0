package imaging

import (
	"fmt"
	"strconv"
	"strings"
)

// CropRegion is a sub-rectangle given by its top-left corner and size.
type CropRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ResizeTarget holds the requested output size. A zero axis is derived from
// the other one so that the input aspect ratio is kept.
type ResizeTarget struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (t ResizeTarget) IsZero() bool { return t.Width == 0 && t.Height == 0 }

// Crop extracts region from src into a new buffer. Regions that do not fit
// inside src are rejected, never clamped.
func Crop(src *PixelBuffer, region CropRegion) (*PixelBuffer, error) {
	if err := checkRegion(src.width, src.height, region); err != nil {
		return nil, err
	}

	dst, err := NewPixelBuffer(region.Width, region.Height)
	if err != nil {
		return nil, err
	}

	rowBytes := region.Width * 4
	for y := 0; y < region.Height; y++ {
		srcOff := ((region.Y+y)*src.width + region.X) * 4
		copy(dst.pix[y*rowBytes:(y+1)*rowBytes], src.pix[srcOff:srcOff+rowBytes])
	}
	return dst, nil
}

// Within reports whether the region fits a width x height source.
func (r CropRegion) Within(width, height int) error {
	return checkRegion(width, height, r)
}

func checkRegion(width, height int, region CropRegion) error {
	if region.Width <= 0 || region.Height <= 0 {
		return newError(KindDegenerateRegion, "crop",
			fmt.Errorf("region size %dx%d", region.Width, region.Height))
	}
	if region.X < 0 || region.Y < 0 ||
		region.X > width-region.Width || region.Y > height-region.Height {
		return newError(KindOutOfBounds, "crop",
			fmt.Errorf("region (%d,%d %dx%d) exceeds source %dx%d",
				region.X, region.Y, region.Width, region.Height, width, height))
	}
	return nil
}

// ResolveTarget fills zero axes of t from the source aspect ratio. The result
// is rounded to the nearest pixel and never smaller than 1.
func ResolveTarget(srcW, srcH int, t ResizeTarget) (int, int) {
	switch {
	case t.Width == 0 && t.Height == 0:
		return srcW, srcH
	case t.Width == 0:
		return max(1, roundDiv(int64(srcW)*int64(t.Height), int64(srcH))), t.Height
	case t.Height == 0:
		return t.Width, max(1, roundDiv(int64(srcH)*int64(t.Width), int64(srcW)))
	default:
		return t.Width, t.Height
	}
}

func roundDiv(num, den int64) int {
	return int((2*num + den) / (2 * den))
}

// Resize scales src to target with the default resampler.
func Resize(src *PixelBuffer, target ResizeTarget) (*PixelBuffer, error) {
	return resize(src, target, ResampleBilinear, DefaultMaxDimension)
}

func resize(src *PixelBuffer, target ResizeTarget, resampler Resampler, maxDimension int) (*PixelBuffer, error) {
	w, h, err := target.Resolve(src.width, src.height, maxDimension)
	if err != nil {
		return nil, err
	}
	if w == src.width && h == src.height {
		return src, nil
	}
	return resampler.scale(src, w, h)
}

// Resolve validates t and returns the output size for a srcW x srcH input.
// Sizes that change the input and exceed maxDimension on either axis are
// rejected; a maxDimension of zero or less disables that check.
func (t ResizeTarget) Resolve(srcW, srcH, maxDimension int) (int, int, error) {
	if t.Width < 0 || t.Height < 0 {
		return 0, 0, newError(KindMalformedRequest, "resize",
			fmt.Errorf("negative target %dx%d", t.Width, t.Height))
	}

	w, h := ResolveTarget(srcW, srcH, t)
	if w == srcW && h == srcH {
		return w, h, nil
	}
	if maxDimension > 0 && (w > maxDimension || h > maxDimension) {
		return 0, 0, newError(KindMalformedRequest, "resize",
			fmt.Errorf("target %dx%d exceeds the %d pixel dimension limit", w, h, maxDimension))
	}
	return w, h, nil
}

// ParseCropRegion reads "x,y,width,height" as used on query strings and
// command lines.
func ParseCropRegion(s string) (CropRegion, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return CropRegion{}, newError(KindMalformedRequest, "crop", fmt.Errorf("want x,y,width,height, got %q", s))
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return CropRegion{}, newError(KindMalformedRequest, "crop", fmt.Errorf("want x,y,width,height, got %q", s))
		}
		v[i] = n
	}
	return CropRegion{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}
