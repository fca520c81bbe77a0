package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// assertMatchesStdlib decodes data with the stdlib codec and compares every
// pixel against buf after NRGBA conversion.
func assertMatchesStdlib(t *testing.T, buf *PixelBuffer, data []byte, format Format) {
	t.Helper()
	var (
		ref image.Image
		err error
	)
	switch format {
	case FormatJPEG:
		ref, err = jpeg.Decode(bytes.NewReader(data))
	default:
		ref, err = png.Decode(bytes.NewReader(data))
	}
	if err != nil {
		t.Fatalf("stdlib decode: %v", err)
	}

	b := ref.Bounds()
	if buf.Width() != b.Dx() || buf.Height() != b.Dy() {
		t.Fatalf("expected %dx%d, got %dx%d", b.Dx(), b.Dy(), buf.Width(), buf.Height())
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			want := color.NRGBAModel.Convert(ref.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if got := buf.At(x, y); got != want {
				t.Fatalf("pixel (%d,%d): expected %+v, got %+v", x, y, want, got)
			}
		}
	}
}

func TestDecodeFixtures(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		format Format
		opaque bool
	}{
		{name: "progressive jpeg", file: "progressive-420.jpeg", format: FormatJPEG, opaque: true},
		{name: "jpeg 4:2:2", file: "baseline-422.jpeg", format: FormatJPEG, opaque: true},
		{name: "jpeg 4:4:4", file: "baseline-444.jpeg", format: FormatJPEG, opaque: true},
		{name: "interlaced gray png", file: "gray-interlaced.png", format: FormatPNG, opaque: true},
		{name: "indexed png with tRNS", file: "paletted-trns.png", format: FormatPNG},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := readFixture(t, tc.file)
			info, err := Identify(data)
			if err != nil {
				t.Fatalf("identify: %v", err)
			}
			if info.Format != tc.format {
				t.Fatalf("expected %s, got %s", tc.format, info.Format)
			}

			buf, err := Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if buf.Opaque() != tc.opaque {
				t.Fatalf("expected opaque=%v", tc.opaque)
			}
			assertMatchesStdlib(t, buf, data, tc.format)
		})
	}
}

func TestDecodeInterlacedMatchesSequential(t *testing.T) {
	interlaced, err := Decode(readFixture(t, "gray-interlaced.png"))
	if err != nil {
		t.Fatalf("decode interlaced: %v", err)
	}
	sequential, err := Decode(readFixture(t, "gray.png"))
	if err != nil {
		t.Fatalf("decode sequential: %v", err)
	}
	if !interlaced.Equal(sequential) {
		t.Fatal("interlaced and sequential encodings decoded differently")
	}
}

func TestDecodePalettedTransparencyKeepsAlpha(t *testing.T) {
	buf, err := Decode(readFixture(t, "paletted-trns.png"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	var transparent, partial int
	for y := 0; y < buf.Height(); y++ {
		for x := 0; x < buf.Width(); x++ {
			switch a := buf.At(x, y).A; {
			case a == 0:
				transparent++
			case a < 0xff:
				partial++
			}
		}
	}
	if transparent == 0 && partial == 0 {
		t.Fatal("expected tRNS entries to produce non-opaque pixels")
	}
}
