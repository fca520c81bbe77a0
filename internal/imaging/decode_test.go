package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Format
		wantErr error
	}{
		{name: "jpeg", data: []byte("\xff\xd8\xff\xe0rest"), want: FormatJPEG},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n\x00\x00"), want: FormatPNG},
		{name: "webp", data: []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), want: FormatWebP},
		{name: "empty", data: nil, wantErr: ErrEmptyInput},
		{name: "png prefix", data: []byte("\x89PN"), wantErr: ErrTruncated},
		{name: "gif", data: []byte("GIF89a\x01\x00\x01\x00"), wantErr: ErrUnsupportedFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Sniff(tc.data)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("sniff: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIdentifyReadsHeaderOnly(t *testing.T) {
	data := pngBytes(t, gradientImage(37, 21))
	info, err := Identify(data[:len(data)-12])
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if info.Format != FormatPNG || info.Width != 37 || info.Height != 21 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestDecodePNGRoundTrip(t *testing.T) {
	want := gradientBuffer(t, 33, 17)
	data, err := Encode(want, OutputSpec{Format: FormatPNG})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(want) {
		t.Fatal("png round trip is not pixel identical")
	}
}

func TestDecodeSixteenBitPNG(t *testing.T) {
	img := image.NewNRGBA64(image.Rect(0, 0, 2, 2))
	img.SetNRGBA64(1, 1, color.NRGBA64{R: 0xfedc, G: 0x0180, B: 0x7fff, A: 0x9000})

	buf, err := Decode(pngBytes(t, img))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := color.NRGBA{R: 0xfe, G: 0x01, B: 0x7f, A: 0x90}
	if got := buf.At(1, 1); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDecodeJPEGIsOpaque(t *testing.T) {
	buf, err := Decode(jpegBytes(t, gradientImage(40, 24), 90))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Width() != 40 || buf.Height() != 24 {
		t.Fatalf("expected 40x24, got %dx%d", buf.Width(), buf.Height())
	}
	if !buf.Opaque() {
		t.Fatal("expected decoded jpeg to be opaque")
	}
}

func TestDecodeTruncated(t *testing.T) {
	jpg := jpegBytes(t, gradientImage(64, 64), 80)
	pngData := pngBytes(t, gradientImage(64, 64))

	tests := []struct {
		name string
		data []byte
	}{
		{name: "jpeg inside quantization table", data: jpg[:60]},
		{name: "png inside image data", data: pngData[:len(pngData)/2]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("expected truncated, got %v", err)
			}
			var e *Error
			if !errors.As(err, &e) || e.Offset <= 0 {
				t.Fatalf("expected a positive byte offset, got %v", err)
			}
		})
	}
}

func TestDecodeCorruptChecksum(t *testing.T) {
	data := pngBytes(t, gradientImage(8, 8))
	// IHDR CRC occupies bytes 29-32.
	data[30] ^= 0xff

	_, err := Decode(data)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected corrupt, got %v", err)
	}
	if !IsClass(err, ClassDecode) {
		t.Fatalf("expected decode class, got %v", err)
	}
}

func TestDecodeRejectsOversizedImage(t *testing.T) {
	data := pngBytes(t, gradientImage(20, 20))
	if _, err := decode(data, 399); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if _, err := decode(data, 400); err != nil {
		t.Fatalf("expected 400 pixel limit to pass, got %v", err)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode([]byte("BM\x36\x00\x00\x00\x00\x00"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestClassifyPNGFormatErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		drained bool
		want    error
	}{
		{name: "pixel data cut short", err: png.FormatError("not enough pixel data"), want: ErrTruncated},
		{name: "chunk cut at end of stream", err: png.FormatError("bad IEND length"), drained: true, want: ErrTruncated},
		{name: "checksum at end of stream", err: png.FormatError("invalid checksum"), drained: true, want: ErrCorrupt},
		{name: "checksum mid stream", err: png.FormatError("invalid checksum"), want: ErrCorrupt},
		{name: "bad filter", err: png.FormatError("bad filter type"), want: ErrCorrupt},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := bytes.NewReader(make([]byte, 16))
			if tc.drained {
				_, _ = r.Seek(0, io.SeekEnd)
			} else {
				_, _ = r.Seek(8, io.SeekStart)
			}
			if err := classifyDecodeError("decode.png", r, tc.err); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
