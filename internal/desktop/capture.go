package desktop

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"github.com/tibiamarket/tracker/internal/models"
)

// ScreenCapture grabs screen rectangles from the primary display
type ScreenCapture struct{}

func NewScreenCapture() *ScreenCapture {
	return &ScreenCapture{}
}

func (c *ScreenCapture) Capture(region models.ScreenRegion) (image.Image, error) {
	if region.IsZero() {
		return nil, fmt.Errorf("capture: empty region %s", region)
	}
	img, err := screenshot.CaptureRect(region.Rect())
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", region, err)
	}
	return img, nil
}

// displayBounds returns the primary display rectangle
func displayBounds() image.Rectangle {
	return screenshot.GetDisplayBounds(0)
}
