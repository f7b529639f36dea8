package screenshot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webdiag-project/webdiag/internal/capture"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func whiteImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return encodePNG(t, img)
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestNewReadsDimensions(t *testing.T) {
	t.Parallel()

	shot, err := New(whiteImage(t, 64, 48))
	require.NoError(t, err)
	require.Equal(t, 64, shot.Width)
	require.Equal(t, 48, shot.Height)
	require.Empty(t, shot.Annotations)
	require.Nil(t, shot.Annotated)
}

func TestNewRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := New([]byte("not an image"))
	require.Error(t, err)
}

func TestAnnotationListOperations(t *testing.T) {
	t.Parallel()

	shot, err := New(whiteImage(t, 32, 32))
	require.NoError(t, err)

	a1 := capture.Annotation{Type: capture.AnnotationHighlight, X: 0, Y: 0, Width: 8, Height: 8, Color: "#ff0000"}
	a2 := capture.Annotation{Type: capture.AnnotationRedact, X: 8, Y: 8, Width: 8, Height: 8}

	with1 := AddAnnotation(shot, a1)
	with2 := AddAnnotation(with1, a2)
	require.Empty(t, shot.Annotations)
	require.Len(t, with1.Annotations, 1)
	require.Len(t, with2.Annotations, 2)

	undone := RemoveLastAnnotation(with2)
	require.Len(t, undone.Annotations, 1)
	require.Equal(t, with1.Annotations, undone.Annotations)
	// Undo on the empty list stays empty.
	require.Empty(t, RemoveLastAnnotation(shot).Annotations)

	reset := ResetAnnotations(with2)
	require.Empty(t, reset.Annotations)
	require.Nil(t, reset.Annotated)
}

func TestRenderEmptyListClearsDerivedImage(t *testing.T) {
	t.Parallel()

	shot, err := New(whiteImage(t, 16, 16))
	require.NoError(t, err)
	shot.Annotated = []byte("stale")

	rendered, err := Render(shot)
	require.NoError(t, err)
	require.Nil(t, rendered.Annotated)
	require.Equal(t, shot.Original, ExportForUpload(rendered))
}

func TestRenderRedactPaintsOpaqueBlack(t *testing.T) {
	t.Parallel()

	shot, err := New(whiteImage(t, 16, 16))
	require.NoError(t, err)
	shot = AddAnnotation(shot, capture.Annotation{
		Type: capture.AnnotationRedact, X: 4, Y: 4, Width: 8, Height: 8,
	})

	rendered, err := Render(shot)
	require.NoError(t, err)
	require.NotNil(t, rendered.Annotated)

	img := decode(t, rendered.Annotated)
	r, g, b, a := img.At(8, 8).RGBA()
	require.Zero(t, r)
	require.Zero(t, g)
	require.Zero(t, b)
	require.Equal(t, uint32(0xffff), a)

	// Outside the rectangle the image is untouched.
	r, g, b, _ = img.At(1, 1).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Equal(t, uint32(0xffff), g)
	require.Equal(t, uint32(0xffff), b)
}

func TestRenderHighlightTintsAndOutlines(t *testing.T) {
	t.Parallel()

	shot, err := New(whiteImage(t, 32, 32))
	require.NoError(t, err)
	shot = AddAnnotation(shot, capture.Annotation{
		Type: capture.AnnotationHighlight, X: 4, Y: 4, Width: 16, Height: 16, Color: "#ff0000",
	})

	rendered, err := Render(shot)
	require.NoError(t, err)
	img := decode(t, rendered.Annotated)

	// Interior is a translucent red wash over white: red stays full, the
	// other channels drop but remain visible.
	r, g, b, _ := img.At(12, 12).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Less(t, g, uint32(0xffff))
	require.NotZero(t, g)
	require.Equal(t, g, b)

	// The border is the solid outline color.
	r, g, b, _ = img.At(5, 5).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Zero(t, g)
	require.Zero(t, b)
}

func TestRenderClipsOutOfBoundsAnnotations(t *testing.T) {
	t.Parallel()

	shot, err := New(whiteImage(t, 16, 16))
	require.NoError(t, err)
	shot = AddAnnotation(shot, capture.Annotation{
		Type: capture.AnnotationRedact, X: 12, Y: 12, Width: 100, Height: 100,
	})
	shot = AddAnnotation(shot, capture.Annotation{
		Type: capture.AnnotationRedact, X: 50, Y: 50, Width: 4, Height: 4,
	})

	rendered, err := Render(shot)
	require.NoError(t, err)
	img := decode(t, rendered.Annotated)
	r, _, _, _ := img.At(14, 14).RGBA()
	require.Zero(t, r)
}

func TestExportForUploadPrefersAnnotated(t *testing.T) {
	t.Parallel()

	shot := capture.Screenshot{Original: []byte("orig"), Annotated: []byte("annotated")}
	require.Equal(t, []byte("annotated"), ExportForUpload(shot))

	shot.Annotated = nil
	require.Equal(t, []byte("orig"), ExportForUpload(shot))
}
