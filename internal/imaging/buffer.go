// Package imaging implements the decode → crop → resize → color → encode
// transform pipeline over a canonical 8-bit RGBA pixel buffer.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
)

// PixelBuffer is a row-major, non-premultiplied 8-bit RGBA image with no row
// padding. Stages never mutate a buffer they received; geometry changes
// always produce a new buffer.
type PixelBuffer struct {
	width  int
	height int
	pix    []byte
}

func NewPixelBuffer(width, height int) (*PixelBuffer, error) {
	if width < 1 || height < 1 {
		return nil, newError(KindDegenerateRegion, "buffer.new", fmt.Errorf("dimensions %dx%d", width, height))
	}
	return &PixelBuffer{
		width:  width,
		height: height,
		pix:    make([]byte, width*height*4),
	}, nil
}

func (b *PixelBuffer) Width() int  { return b.width }
func (b *PixelBuffer) Height() int { return b.height }

// Pix returns the underlying bytes. Callers must treat them as read-only.
func (b *PixelBuffer) Pix() []byte { return b.pix }

func (b *PixelBuffer) At(x, y int) color.NRGBA {
	i := (y*b.width + x) * 4
	return color.NRGBA{R: b.pix[i], G: b.pix[i+1], B: b.pix[i+2], A: b.pix[i+3]}
}

func (b *PixelBuffer) Set(x, y int, c color.NRGBA) {
	i := (y*b.width + x) * 4
	b.pix[i], b.pix[i+1], b.pix[i+2], b.pix[i+3] = c.R, c.G, c.B, c.A
}

// NRGBA returns an image view that shares memory with the buffer.
func (b *PixelBuffer) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.pix,
		Stride: b.width * 4,
		Rect:   image.Rect(0, 0, b.width, b.height),
	}
}

func (b *PixelBuffer) Equal(other *PixelBuffer) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.width == other.width && b.height == other.height && bytes.Equal(b.pix, other.pix)
}

func (b *PixelBuffer) Opaque() bool {
	for i := 3; i < len(b.pix); i += 4 {
		if b.pix[i] != 0xff {
			return false
		}
	}
	return true
}

// FromImage copies any image.Image into a new canonical buffer. 16-bit
// samples keep their high byte, palettes are expanded and missing alpha is
// filled as opaque.
func FromImage(src image.Image) (*PixelBuffer, error) {
	bounds := src.Bounds()
	dst, err := NewPixelBuffer(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	switch m := src.(type) {
	case *image.NRGBA:
		for y := 0; y < dst.height; y++ {
			srcOff := m.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(dst.pix[y*dst.width*4:(y+1)*dst.width*4], m.Pix[srcOff:srcOff+dst.width*4])
		}
	case *image.NRGBA64:
		for y := 0; y < dst.height; y++ {
			srcOff := m.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := dst.pix[y*dst.width*4 : (y+1)*dst.width*4]
			for i := range row {
				row[i] = m.Pix[srcOff+i*2]
			}
		}
	case *image.RGBA:
		for y := 0; y < dst.height; y++ {
			srcOff := m.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := dst.pix[y*dst.width*4 : (y+1)*dst.width*4]
			for i := 0; i < len(row); i += 4 {
				unpremultiply(row[i:i+4], m.Pix[srcOff+i], m.Pix[srcOff+i+1], m.Pix[srcOff+i+2], m.Pix[srcOff+i+3])
			}
		}
	case *image.Gray:
		for y := 0; y < dst.height; y++ {
			srcOff := m.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := dst.pix[y*dst.width*4 : (y+1)*dst.width*4]
			for x := 0; x < dst.width; x++ {
				v := m.Pix[srcOff+x]
				row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = v, v, v, 0xff
			}
		}
	case *image.Paletted:
		palette := make([]color.NRGBA, len(m.Palette))
		for i, c := range m.Palette {
			palette[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
		}
		for y := 0; y < dst.height; y++ {
			srcOff := m.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < dst.width; x++ {
				idx := int(m.Pix[srcOff+x])
				c := color.NRGBA{A: 0xff}
				if idx < len(palette) {
					c = palette[idx]
				}
				dst.Set(x, y, c)
			}
		}
	case *image.YCbCr:
		for y := 0; y < dst.height; y++ {
			for x := 0; x < dst.width; x++ {
				yi := m.YOffset(bounds.Min.X+x, bounds.Min.Y+y)
				ci := m.COffset(bounds.Min.X+x, bounds.Min.Y+y)
				r, g, b := ycbcrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
				dst.Set(x, y, color.NRGBA{R: r, G: g, B: b, A: 0xff})
			}
		}
	default:
		for y := 0; y < dst.height; y++ {
			for x := 0; x < dst.width; x++ {
				c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				dst.Set(x, y, c)
			}
		}
	}
	return dst, nil
}

func unpremultiply(dst []byte, r, g, b, a uint8) {
	switch a {
	case 0xff:
		dst[0], dst[1], dst[2], dst[3] = r, g, b, a
	case 0:
		dst[0], dst[1], dst[2], dst[3] = 0, 0, 0, 0
	default:
		dst[0] = uint8((uint32(r)*0xff + uint32(a)/2) / uint32(a))
		dst[1] = uint8((uint32(g)*0xff + uint32(a)/2) / uint32(a))
		dst[2] = uint8((uint32(b)*0xff + uint32(a)/2) / uint32(a))
		dst[3] = a
	}
}

// ycbcrToRGB applies the JFIF / ITU-R BT.601 full-range inverse transform:
//
//	R = Y + 1.402 (Cr-128)
//	G = Y - 0.344136 (Cb-128) - 0.714136 (Cr-128)
//	B = Y + 1.772 (Cb-128)
func ycbcrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy := int32(y) << 16
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128

	r := yy + 91881*cr1
	g := yy - 22554*cb1 - 46802*cr1
	b := yy + 116130*cb1
	return clampFixed(r), clampFixed(g), clampFixed(b)
}

func clampFixed(v int32) uint8 {
	v += 1 << 15
	if v < 0 {
		return 0
	}
	if v > 0xffffff {
		return 0xff
	}
	return uint8(v >> 16)
}
