package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/webdiag-project/webdiag/internal/capture"
)

const (
	compressStartQuality = 90
	compressFloorQuality = 20
	compressQualityStep  = 10
)

// Compress re-encodes data as JPEG at decreasing quality until it fits
// maxBytes. Input already within budget is returned unchanged. Quality
// walks from 0.9 down in 0.1 steps; if even the floor attempt is oversized,
// that attempt is returned anyway — slightly-oversized output beats no
// output. Each attempt re-encodes from the source image, never from a prior
// attempt, and the loop is bounded by the quality ladder.
func Compress(data []byte, maxBytes int) ([]byte, error) {
	if len(data) <= maxBytes {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image for compression: %w", err)
	}

	var attempt []byte
	for quality := compressStartQuality; quality >= compressFloorQuality; quality -= compressQualityStep {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg at quality %d: %w", quality, err)
		}
		attempt = buf.Bytes()
		if len(attempt) <= maxBytes {
			return attempt, nil
		}
	}
	return attempt, nil
}

// CompressScreenshot compresses the screenshot's exportable image (the
// annotated composite when present, else the original) to maxBytes and
// stores the result as the derived image.
func CompressScreenshot(s capture.Screenshot, maxBytes int) (capture.Screenshot, error) {
	source := ExportForUpload(s)
	if len(source) <= maxBytes {
		return s, nil
	}
	compressed, err := Compress(source, maxBytes)
	if err != nil {
		return s, err
	}
	out := s
	out.Annotated = compressed
	return out, nil
}
