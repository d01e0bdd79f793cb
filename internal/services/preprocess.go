package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
)

// ImagePreprocessor prepares captured market fields for OCR: grayscale,
// contrast stretch, Otsu binarization, black-text-on-white normalization
// and an optional upscale. Tesseract reads small bitmap fonts far better
// after these steps.
type ImagePreprocessor struct {
	Scale    int  // upscale factor, values below 2 disable scaling
	Contrast bool // stretch contrast before thresholding
}

// NewImagePreprocessor creates the preprocessor used for market fields
func NewImagePreprocessor() *ImagePreprocessor {
	return &ImagePreprocessor{Scale: 3, Contrast: true}
}

// Process runs the full pipeline on img
func (p *ImagePreprocessor) Process(img image.Image) *image.Gray {
	gray := toGray(img)
	if p.Contrast {
		gray = enhanceContrast(gray)
	}
	bin := binarize(gray, otsuThreshold(histogram(gray), gray.Bounds().Dx()*gray.Bounds().Dy()))
	bin = blackOnWhite(bin)
	if p.Scale >= 2 {
		bin = upscale(bin, p.Scale)
	}
	return bin
}

// toGray converts to grayscale with the luminosity formula
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			lum := uint8((0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256)
			gray.SetGray(x, y, color.Gray{Y: lum})
		}
	}
	return gray
}

func histogram(gray *image.Gray) []int {
	hist := make([]int, 256)
	bounds := gray.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}
	return hist
}

// otsuThreshold calculates the optimal threshold using Otsu's method
func otsuThreshold(hist []int, totalPixels int) uint8 {
	var sum float64
	for i := 0; i < 256; i++ {
		sum += float64(i * hist[i])
	}

	var sumB float64
	var wB, wF int
	var maxVariance float64
	var threshold uint8

	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF = totalPixels - wB
		if wF == 0 {
			break
		}

		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)

		variance := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if variance > maxVariance {
			maxVariance = variance
			threshold = uint8(t)
		}
	}

	return threshold
}

func binarize(gray *image.Gray, threshold uint8) *image.Gray {
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if gray.GrayAt(x, y).Y > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// blackOnWhite inverts a binary image whose background is dark. The
// background is taken to be the majority color.
func blackOnWhite(bin *image.Gray) *image.Gray {
	bounds := bin.Bounds()
	dark := 0
	for _, v := range bin.Pix {
		if v == 0 {
			dark++
		}
	}
	if dark*2 <= len(bin.Pix) {
		return bin
	}
	out := image.NewGray(bounds)
	for i, v := range bin.Pix {
		out.Pix[i] = 255 - v
	}
	return out
}

// enhanceContrast applies 1%/99% percentile contrast stretching
func enhanceContrast(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	hist := histogram(gray)

	total := bounds.Dx() * bounds.Dy()
	threshold := total / 100
	minVal, maxVal := 0, 255

	count := 0
	for i := 0; i < 256; i++ {
		count += hist[i]
		if count >= threshold {
			minVal = i
			break
		}
	}

	count = 0
	for i := 255; i >= 0; i-- {
		count += hist[i]
		if count >= threshold {
			maxVal = i
			break
		}
	}

	enhanced := image.NewGray(bounds)
	if maxVal <= minVal {
		copy(enhanced.Pix, gray.Pix)
		return enhanced
	}

	scale := 255.0 / float64(maxVal-minVal)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := int(float64(int(gray.GrayAt(x, y).Y)-minVal) * scale)
			enhanced.SetGray(x, y, color.Gray{Y: uint8(max(0, min(255, v)))})
		}
	}
	return enhanced
}

func upscale(gray *image.Gray, factor int) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.CatmullRom.Scale(out, out.Bounds(), gray, b, xdraw.Src, nil)
	return out
}

// encodeImagePNG encodes an image as PNG bytes
func encodeImagePNG(img image.Image) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
