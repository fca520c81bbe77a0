package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dunamismax/pixelpress/internal/imaging"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultQuality = 80

// handleProcess runs one transform synchronously. The request body is the
// encoded source; options come from the query string.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	src, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	opts, err := parseOptions(r.URL.Query())
	if err != nil {
		s.writeImagingError(w, r, err)
		return
	}
	req, err := opts.Request(src)
	if err != nil {
		s.writeImagingError(w, r, err)
		return
	}
	res, err := s.engine.Process(req)
	if err != nil {
		s.writeImagingError(w, r, err)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("output.format", string(res.Format)),
		attribute.Int("output.width", res.Width),
		attribute.Int("output.height", res.Height),
		attribute.Bool("output.passthrough", res.Passthrough),
	)
	s.metrics.processTotal.WithLabelValues(string(res.Format), "ok").Inc()
	s.metrics.processBytes.WithLabelValues("in").Add(float64(len(src)))
	s.metrics.processBytes.WithLabelValues("out").Add(float64(len(res.Data)))

	etag := etagFor(res.Data)
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Content-Type", res.Format.ContentType())
	h.Set("X-Image-Width", strconv.Itoa(res.Width))
	h.Set("X-Image-Height", strconv.Itoa(res.Height))
	h.Set("X-Passthrough", strconv.FormatBool(res.Passthrough))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	src, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if len(src) == 0 {
		s.writeImagingError(w, r, imaging.ErrEmptyInput)
		return
	}

	info, err := imaging.Identify(src)
	if err != nil {
		s.writeImagingError(w, r, err)
		return
	}
	settings := s.engine.Settings()
	pixels := int64(info.Width) * int64(info.Height)
	writeJSON(w, http.StatusOK, map[string]any{
		"format":       info.Format,
		"content_type": info.Format.ContentType(),
		"width":        info.Width,
		"height":       info.Height,
		"pixels":       pixels,
		"megapixels":   humanize.FtoaWithDigits(float64(pixels)/1e6, 2),
		"bytes":        len(src),
		"size":         humanize.Bytes(uint64(len(src))),
		"decodable":    info.CheckLimit(settings.MaxPixels) == nil,
	})
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %s", humanize.IBytes(uint64(tooLarge.Limit))))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return data, true
}

func (s *Server) writeImagingError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	kind := imaging.KindOf(err)
	s.metrics.processTotal.WithLabelValues("", string(kind.Class())).Inc()
	if status >= http.StatusInternalServerError {
		s.logger.Error("imaging request failed", "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("imaging request rejected", "path", r.URL.Path, "kind", kind.String(), "err", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
		"class": string(kind.Class()),
	})
}

// statusForError maps the imaging error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch kind := imaging.KindOf(err); {
	case kind == imaging.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case kind.Class() == imaging.ClassDecode:
		return http.StatusUnprocessableEntity
	case kind.Class() == imaging.ClassGeometry,
		kind.Class() == imaging.ClassEncode,
		kind.Class() == imaging.ClassValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parseOptions reads transform options from the query string, e.g.
// ?format=jpeg&quality=85&width=320&grayscale=true&crop=10,10,200,200.
// An absent quality defaults to 80; PNG output ignores it.
func parseOptions(q url.Values) (imaging.Options, error) {
	opts := imaging.Options{
		Format:  strings.TrimSpace(q.Get("format")),
		Quality: defaultQuality,
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"quality", &opts.Quality},
		{"width", &opts.Width},
		{"height", &opts.Height},
	}
	for _, f := range ints {
		raw := strings.TrimSpace(q.Get(f.key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return imaging.Options{}, malformed("%s must be an integer, got %q", f.key, raw)
		}
		*f.dst = v
	}

	if raw := strings.TrimSpace(q.Get("grayscale")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return imaging.Options{}, malformed("grayscale must be a boolean, got %q", raw)
		}
		opts.Grayscale = v
	}

	if raw := strings.TrimSpace(q.Get("crop")); raw != "" {
		region, err := imaging.ParseCropRegion(raw)
		if err != nil {
			return imaging.Options{}, err
		}
		opts.Crop = &region
	}
	return opts, nil
}

func malformed(format string, args ...any) error {
	return &imaging.Error{
		Kind:   imaging.KindMalformedRequest,
		Op:     "query",
		Offset: -1,
		Err:    fmt.Errorf(format, args...),
	}
}

// etagFor is a strong validator over the encoded output.
func etagFor(data []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
}
