package imaging

import "errors"

// Format is the closed set of codecs the pipeline knows about. WebP is
// accepted as an input only.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

type signature struct {
	format Format
	magic  string // '?' matches any byte
}

var signatures = []signature{
	{format: FormatJPEG, magic: "\xff\xd8\xff"},
	{format: FormatPNG, magic: "\x89PNG\r\n\x1a\n"},
	{format: FormatWebP, magic: "RIFF????WEBP"},
}

// Sniff identifies the codec from the leading magic bytes. Input that is a
// strict prefix of a known signature is reported as truncated.
func Sniff(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", newError(KindEmptyInput, "sniff", errors.New("no source bytes"))
	}

	partial := false
	for _, sig := range signatures {
		n := min(len(data), len(sig.magic))
		if !matchMagic(data[:n], sig.magic[:n]) {
			continue
		}
		if n == len(sig.magic) {
			return sig.format, nil
		}
		partial = true
	}

	if partial {
		e := newError(KindTruncated, "sniff", errors.New("stream ends inside the format signature"))
		e.Offset = int64(len(data))
		return "", e
	}
	e := newError(KindUnsupportedFormat, "sniff", errors.New("signature not recognized"))
	e.Offset = 0
	return "", e
}

func matchMagic(data []byte, magic string) bool {
	for i := range data {
		if magic[i] != '?' && data[i] != magic[i] {
			return false
		}
	}
	return true
}
