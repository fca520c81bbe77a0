package imaging

import (
	"fmt"
	"strings"
)

type ColorMode int

const (
	ColorOriginal ColorMode = iota
	ColorGrayscale
)

func (m ColorMode) String() string {
	switch m {
	case ColorOriginal:
		return "original"
	case ColorGrayscale:
		return "grayscale"
	default:
		return fmt.Sprintf("colormode(%d)", int(m))
	}
}

func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original":
		return ColorOriginal, nil
	case "grayscale", "gray", "grey":
		return ColorGrayscale, nil
	default:
		return 0, newError(KindMalformedRequest, "color", fmt.Errorf("unknown color mode %q", s))
	}
}

// ApplyColorMode returns src itself for ColorOriginal and a new buffer
// otherwise.
func ApplyColorMode(src *PixelBuffer, mode ColorMode) (*PixelBuffer, error) {
	switch mode {
	case ColorOriginal:
		return src, nil
	case ColorGrayscale:
		return grayscale(src), nil
	default:
		return nil, newError(KindMalformedRequest, "color", fmt.Errorf("unknown color mode %d", int(mode)))
	}
}

// grayscale replaces RGB with BT.601 luma rounded to nearest; alpha is kept.
func grayscale(src *PixelBuffer) *PixelBuffer {
	dst := &PixelBuffer{
		width:  src.width,
		height: src.height,
		pix:    make([]byte, len(src.pix)),
	}
	for i := 0; i < len(src.pix); i += 4 {
		y := luma(src.pix[i], src.pix[i+1], src.pix[i+2])
		dst.pix[i], dst.pix[i+1], dst.pix[i+2], dst.pix[i+3] = y, y, y, src.pix[i+3]
	}
	return dst
}

func luma(r, g, b uint8) uint8 {
	y := (299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000
	if y > 0xff {
		y = 0xff
	}
	return uint8(y)
}
