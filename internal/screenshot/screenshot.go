// Package screenshot composites user annotations onto a captured image and
// compresses the result to a size budget. The annotated image is a derived
// cache: it is cleared whenever the annotation list resets and recomputed
// only by an explicit Render, so a stale composite is never served.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/webdiag-project/webdiag/internal/capture"
)

const (
	highlightAlpha = 76 // ~0.3 of 255
	outlineWidth   = 2
)

// New builds a Screenshot from encoded image bytes, reading dimensions from
// the image header.
func New(original []byte) (capture.Screenshot, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(original))
	if err != nil {
		return capture.Screenshot{}, fmt.Errorf("decode screenshot config: %w", err)
	}
	return capture.Screenshot{
		Original:    original,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Annotations: []capture.Annotation{},
	}, nil
}

// AddAnnotation returns a copy of s with the annotation appended. The
// derived image is left for Render to recompute.
func AddAnnotation(s capture.Screenshot, a capture.Annotation) capture.Screenshot {
	out := s
	out.Annotations = append(append([]capture.Annotation(nil), s.Annotations...), a)
	return out
}

// RemoveLastAnnotation returns a copy of s with the most recent annotation
// removed. Undo is a true inverse of a single AddAnnotation.
func RemoveLastAnnotation(s capture.Screenshot) capture.Screenshot {
	out := s
	if len(s.Annotations) == 0 {
		out.Annotations = []capture.Annotation{}
		return out
	}
	out.Annotations = append([]capture.Annotation(nil), s.Annotations[:len(s.Annotations)-1]...)
	return out
}

// ResetAnnotations returns a copy of s with an empty annotation list and no
// derived image, regardless of prior state.
func ResetAnnotations(s capture.Screenshot) capture.Screenshot {
	out := s
	out.Annotations = []capture.Annotation{}
	out.Annotated = nil
	return out
}

// Render composites all annotations onto the original image in append
// order, later annotations on top. With an empty list it clears the derived
// image so exports fall back to the original.
func Render(s capture.Screenshot) (capture.Screenshot, error) {
	out := s
	if len(s.Annotations) == 0 {
		out.Annotated = nil
		return out, nil
	}

	src, _, err := image.Decode(bytes.NewReader(s.Original))
	if err != nil {
		return s, fmt.Errorf("decode screenshot: %w", err)
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, a := range s.Annotations {
		drawAnnotation(canvas, a)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return s, fmt.Errorf("encode annotated screenshot: %w", err)
	}
	out.Annotated = buf.Bytes()
	return out, nil
}

// ExportForUpload returns the rendered annotated image when present, else
// the original.
func ExportForUpload(s capture.Screenshot) []byte {
	if s.Annotated != nil {
		return s.Annotated
	}
	return s.Original
}

func drawAnnotation(canvas *image.RGBA, a capture.Annotation) {
	rect := image.Rect(a.X, a.Y, a.X+a.Width, a.Y+a.Height).Intersect(canvas.Bounds())
	if rect.Empty() {
		return
	}
	switch a.Type {
	case capture.AnnotationRedact:
		// Always an opaque black block; the content underneath must be
		// unrecoverable.
		draw.Draw(canvas, rect, image.NewUniform(color.NRGBA{A: 255}), image.Point{}, draw.Src)
	case capture.AnnotationHighlight:
		tint := parseHexColor(a.Color)
		fill := tint
		fill.A = highlightAlpha
		draw.Draw(canvas, rect, image.NewUniform(fill), image.Point{}, draw.Over)
		drawOutline(canvas, rect, tint)
	}
}

func drawOutline(canvas *image.RGBA, rect image.Rectangle, c color.NRGBA) {
	uniform := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+outlineWidth),
		image.Rect(rect.Min.X, rect.Max.Y-outlineWidth, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+outlineWidth, rect.Max.Y),
		image.Rect(rect.Max.X-outlineWidth, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(canvas, edge.Intersect(canvas.Bounds()), uniform, image.Point{}, draw.Src)
	}
}

func parseHexColor(s string) color.NRGBA {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{R: 255, A: 255}
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
