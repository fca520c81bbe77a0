package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
)

// OutputSpec selects the output codec. Quality applies to JPEG only.
type OutputSpec struct {
	Format  Format
	Quality int
}

func ParseOutputFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", newError(KindUnsupportedOutputFormat, "encode", fmt.Errorf("format %q", s))
	}
}

func (s OutputSpec) Validate() error {
	switch s.Format {
	case FormatJPEG:
		if s.Quality < 1 || s.Quality > 100 {
			return newError(KindInvalidQuality, "encode.jpeg", fmt.Errorf("quality %d outside 1-100", s.Quality))
		}
		return nil
	case FormatPNG:
		return nil
	default:
		return newError(KindUnsupportedOutputFormat, "encode", fmt.Errorf("format %q", s.Format))
	}
}

// Encode serializes buf with the default PNG compression level.
func Encode(buf *PixelBuffer, spec OutputSpec) ([]byte, error) {
	return encode(buf, spec, DefaultPNGCompression)
}

func encode(buf *PixelBuffer, spec OutputSpec, level png.CompressionLevel) ([]byte, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	switch spec.Format {
	case FormatJPEG:
		// JPEG carries no alpha; the RGB samples are written as if opaque.
		if err := jpeg.Encode(&out, opaqueRGBA(buf), &jpeg.Options{Quality: spec.Quality}); err != nil {
			return nil, newError(KindUnknown, "encode.jpeg", err)
		}
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: level}
		if err := enc.Encode(&out, buf.NRGBA()); err != nil {
			return nil, newError(KindUnknown, "encode.png", err)
		}
	}
	return out.Bytes(), nil
}

func opaqueRGBA(buf *PixelBuffer) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, buf.width, buf.height))
	copy(dst.Pix, buf.pix)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
