package services

import (
	"image"
	"image/color"
	"testing"
)

// textImage draws a light "glyph" block on a dark background, like market text
func textImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	for y := h / 4; y < h*3/4; y++ {
		for x := w / 4; x < w/2; x++ {
			img.Set(x, y, color.RGBA{R: 220, G: 220, B: 200, A: 255})
		}
	}
	return img
}

func TestImagePreprocessorBlackTextOnWhite(t *testing.T) {
	p := &ImagePreprocessor{Scale: 1, Contrast: true}
	out := p.Process(textImage(20, 10))

	if got := out.GrayAt(0, 0).Y; got != 255 {
		t.Errorf("background = %d, want white", got)
	}
	if got := out.GrayAt(7, 5).Y; got != 0 {
		t.Errorf("glyph = %d, want black", got)
	}
}

func TestImagePreprocessorUpscales(t *testing.T) {
	out := NewImagePreprocessor().Process(textImage(20, 10))

	if out.Bounds().Dx() != 60 || out.Bounds().Dy() != 30 {
		t.Errorf("size = %v, want 60x30", out.Bounds().Size())
	}
}

func TestOtsuThreshold(t *testing.T) {
	hist := make([]int, 256)
	hist[30] = 100
	hist[200] = 100

	threshold := otsuThreshold(hist, 200)
	if threshold < 30 || threshold >= 200 {
		t.Errorf("threshold = %d, want between the two peaks", threshold)
	}
}

func TestBlankImageDoesNotPanic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	out := NewImagePreprocessor().Process(img)
	if out.Bounds().Empty() {
		t.Error("expected a non-empty output")
	}
}
