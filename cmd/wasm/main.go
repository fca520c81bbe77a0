//go:build js && wasm

// Command wasm exposes the transform pipeline to JavaScript as
// processImage(bytes: Uint8Array, options: object) -> Uint8Array.
// On failure it returns a string starting with "Error: ".
package main

import (
	"syscall/js"

	"github.com/dunamismax/pixelpress/internal/imaging"
)

func main() {
	js.Global().Set("processImage", js.FuncOf(processImage))
	select {}
}

func processImage(_ js.Value, args []js.Value) any {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return failure(imaging.ErrEmptyInput)
	}
	src := make([]byte, args[0].Get("length").Int())
	js.CopyBytesToGo(src, args[0])

	var opts imaging.Options
	if len(args) > 1 && args[1].Type() == js.TypeObject {
		opts = optionsFrom(args[1])
	}

	out, err := imaging.ProcessBytes(src, opts)
	if err != nil {
		return failure(err)
	}
	dst := js.Global().Get("Uint8Array").New(len(out))
	js.CopyBytesToJS(dst, out)
	return dst
}

// optionsFrom reads the flat options object; absent fields keep their
// zero value except quality, which defaults to 80.
func optionsFrom(v js.Value) imaging.Options {
	opts := imaging.Options{
		Format:    stringField(v, "format"),
		Quality:   intField(v, "quality", 80),
		Width:     intField(v, "width", 0),
		Height:    intField(v, "height", 0),
		Grayscale: boolField(v, "grayscale"),
	}
	if c := v.Get("crop"); c.Type() == js.TypeObject {
		opts.Crop = &imaging.CropRegion{
			X:      intField(c, "x", 0),
			Y:      intField(c, "y", 0),
			Width:  intField(c, "width", 0),
			Height: intField(c, "height", 0),
		}
	}
	return opts
}

func stringField(v js.Value, name string) string {
	f := v.Get(name)
	if f.Type() != js.TypeString {
		return ""
	}
	return f.String()
}

func intField(v js.Value, name string, def int) int {
	f := v.Get(name)
	if f.Type() != js.TypeNumber {
		return def
	}
	return f.Int()
}

func boolField(v js.Value, name string) bool {
	f := v.Get(name)
	return f.Type() == js.TypeBoolean && f.Bool()
}

func failure(err error) any {
	return js.ValueOf("Error: " + err.Error())
}
