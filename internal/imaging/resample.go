package imaging

import (
	"fmt"
	"image"
	"strings"

	dimaging "github.com/disintegration/imaging"
	nfnt "github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

// Resampler names the filter kernel used when a resize changes dimensions.
type Resampler string

const (
	ResampleBilinear   Resampler = "bilinear"
	ResampleCatmullRom Resampler = "catmullrom"
	ResampleBox        Resampler = "box"
	ResampleLanczos3   Resampler = "lanczos3"
)

func ParseResampler(s string) (Resampler, error) {
	switch r := Resampler(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return ResampleBilinear, nil
	case ResampleBilinear, ResampleCatmullRom, ResampleBox, ResampleLanczos3:
		return r, nil
	default:
		return "", fmt.Errorf("unknown resampler %q", s)
	}
}

func (r Resampler) scale(src *PixelBuffer, w, h int) (*PixelBuffer, error) {
	view := src.NRGBA()

	switch r {
	case ResampleBox:
		return FromImage(dimaging.Resize(view, w, h, dimaging.Box))
	case ResampleLanczos3:
		return FromImage(nfnt.Resize(uint(w), uint(h), view, nfnt.Lanczos3))
	case ResampleCatmullRom:
		return scaleKernel(xdraw.CatmullRom, view, w, h)
	default:
		// x/image/draw widens the tent kernel by the scale factor when
		// shrinking, so this behaves as an area-weighted filter.
		return scaleKernel(xdraw.BiLinear, view, w, h)
	}
}

func scaleKernel(k *xdraw.Kernel, src *image.NRGBA, w, h int) (*PixelBuffer, error) {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	k.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return FromImage(dst)
}
