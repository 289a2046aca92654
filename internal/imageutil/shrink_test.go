package imageutil

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestShrinkCapsLongestSide(t *testing.T) {
	data := encodePNG(t, 800, 400)
	original := bytes.Clone(data)

	got, err := Shrink(data, MaxSide)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Width != 320 || got.Height != 160 {
		t.Fatalf("unexpected size: %dx%d", got.Width, got.Height)
	}
	if got.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected mime type: %s", got.MIMEType)
	}
	if !bytes.Equal(data, original) {
		t.Fatalf("input image was modified")
	}

	decoded, _, err := image.Decode(bytes.NewReader(got.Data))
	if err != nil {
		t.Fatalf("expected decodable output, got %v", err)
	}
	if decoded.Bounds().Dx() != 320 || decoded.Bounds().Dy() != 160 {
		t.Fatalf("unexpected decoded size: %v", decoded.Bounds())
	}
}

func TestShrinkKeepsSmallImages(t *testing.T) {
	got, err := Shrink(encodePNG(t, 100, 200), MaxSide)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Width != 100 || got.Height != 200 {
		t.Fatalf("unexpected size: %dx%d", got.Width, got.Height)
	}
}

func TestShrinkPortrait(t *testing.T) {
	got, err := Shrink(encodePNG(t, 300, 900), MaxSide)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Width != 106 || got.Height != 320 {
		t.Fatalf("unexpected size: %dx%d", got.Width, got.Height)
	}
}

func TestShrinkRejectsGarbage(t *testing.T) {
	if _, err := Shrink([]byte("definitely not an image"), MaxSide); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Shrink(nil, MaxSide); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestDetectMIME(t *testing.T) {
	mimeType, err := DetectMIME(encodePNG(t, 4, 4))
	if err != nil || mimeType != "image/png" {
		t.Fatalf("expected image/png, got %s (%v)", mimeType, err)
	}
	if _, err := DetectMIME([]byte("hello")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
