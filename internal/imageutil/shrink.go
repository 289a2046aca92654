// Package imageutil prepares photos for multimodal requests.
package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MaxSide bounds the longest edge of images sent to the model.
	MaxSide     = 320
	jpegQuality = 85
	jpegMIME    = "image/jpeg"
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Shrunk is a reduced JPEG copy of an image.
type Shrunk struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// DetectMIME sniffs the image type and rejects anything that is not a supported raster format.
func DetectMIME(data []byte) (string, error) {
	mimeType := http.DetectContentType(data)
	switch mimeType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return mimeType, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
}

// Shrink decodes data and returns a new JPEG whose longest side is at most maxSide.
// The input slice is never modified.
func Shrink(data []byte, maxSide int) (Shrunk, error) {
	if len(data) == 0 {
		return Shrunk{}, fmt.Errorf("image is empty")
	}
	if maxSide <= 0 {
		maxSide = MaxSide
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Shrunk{}, fmt.Errorf("failed to decode image: %w", err)
	}

	width, height := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Shrunk{}, fmt.Errorf("failed to encode image: %w", err)
	}
	return Shrunk{Data: buf.Bytes(), MIMEType: jpegMIME, Width: width, Height: height}, nil
}

// fitWithin scales width and height down proportionally so neither exceeds maxSide.
func fitWithin(width, height, maxSide int) (int, int) {
	if width <= 0 || height <= 0 {
		return 1, 1
	}
	if width <= maxSide && height <= maxSide {
		return width, height
	}
	if width >= height {
		h := height * maxSide / width
		return maxSide, max(h, 1)
	}
	w := width * maxSide / height
	return max(w, 1), maxSide
}
