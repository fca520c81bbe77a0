package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/webp"
)

// Info is what the header pass learns about a source without decoding pixels.
type Info struct {
	Format Format
	Width  int
	Height int
}

type codec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
}

var codecs = map[Format]codec{
	FormatJPEG: {decode: jpeg.Decode, decodeConfig: jpeg.DecodeConfig},
	FormatPNG:  {decode: png.Decode, decodeConfig: png.DecodeConfig},
	FormatWebP: {decode: webp.Decode, decodeConfig: webp.DecodeConfig},
}

// Identify sniffs the format and reads the image dimensions from the header.
func Identify(data []byte) (Info, error) {
	format, err := Sniff(data)
	if err != nil {
		return Info{}, err
	}
	return readHeader(data, format)
}

// Decode turns a JPEG, PNG or WebP byte stream into a canonical buffer using
// the default pixel limit.
func Decode(data []byte) (*PixelBuffer, error) {
	return decode(data, DefaultMaxPixels)
}

func decode(data []byte, maxPixels int) (*PixelBuffer, error) {
	info, err := Identify(data)
	if err != nil {
		return nil, err
	}
	if err := info.CheckLimit(maxPixels); err != nil {
		return nil, err
	}

	r := bytes.NewReader(data)
	img, err := codecs[info.Format].decode(r)
	if err != nil {
		return nil, classifyDecodeError("decode."+string(info.Format), r, err)
	}

	if b := img.Bounds(); b.Dx() != info.Width || b.Dy() != info.Height {
		e := newError(KindCorrupt, "decode."+string(info.Format),
			fmt.Errorf("decoded %dx%d, header declared %dx%d", b.Dx(), b.Dy(), info.Width, info.Height))
		e.Offset = offset(r)
		return nil, e
	}
	return FromImage(img)
}

// CheckLimit rejects images whose pixel count exceeds maxPixels. A limit of
// zero or less disables the check.
func (i Info) CheckLimit(maxPixels int) error {
	if maxPixels > 0 && int64(i.Width)*int64(i.Height) > int64(maxPixels) {
		e := newError(KindTooLarge, "decode."+string(i.Format),
			fmt.Errorf("%dx%d exceeds the %d pixel limit", i.Width, i.Height, maxPixels))
		e.Offset = 0
		return e
	}
	return nil
}

func readHeader(data []byte, format Format) (Info, error) {
	r := bytes.NewReader(data)
	cfg, err := codecs[format].decodeConfig(r)
	if err != nil {
		return Info{}, classifyDecodeError("header."+string(format), r, err)
	}
	if cfg.Width < 1 || cfg.Height < 1 {
		e := newError(KindCorrupt, "header."+string(format), fmt.Errorf("declared size %dx%d", cfg.Width, cfg.Height))
		e.Offset = offset(r)
		return Info{}, e
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func classifyDecodeError(op string, r *bytes.Reader, err error) *Error {
	var (
		jpegFormat      jpeg.FormatError
		pngFormat       png.FormatError
		jpegUnsupported jpeg.UnsupportedError
		pngUnsupported  png.UnsupportedError
	)

	kind := KindCorrupt
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		kind = KindTruncated
	case errors.As(err, &jpegFormat):
		if string(jpegFormat) == "short Huffman data" {
			kind = KindTruncated
		}
	case errors.As(err, &pngFormat):
		// image/png reports a stream cut inside IDAT as a format error.
		if string(pngFormat) == "not enough pixel data" ||
			(r.Len() == 0 && string(pngFormat) != "invalid checksum") {
			kind = KindTruncated
		}
	case errors.As(err, &jpegUnsupported), errors.As(err, &pngUnsupported):
		kind = KindUnsupportedFormat
	}

	e := newError(kind, op, err)
	e.Offset = offset(r)
	return e
}

func offset(r *bytes.Reader) int64 {
	return r.Size() - int64(r.Len())
}
