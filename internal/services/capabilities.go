package services

import (
	"context"
	"image"

	"github.com/tibiamarket/tracker/internal/models"
)

// ScreenMatcher locates reference images on the current screen. ref is the
// reference image identifier (its file name under the images directory).
type ScreenMatcher interface {
	Locate(ref string) (models.ScreenRegion, bool, error)
	LocateAll(ref string) ([]models.ScreenRegion, error)
}

// ScreenCapturer grabs the pixels of a screen rectangle
type ScreenCapturer interface {
	Capture(region models.ScreenRegion) (image.Image, error)
}

// TextRecognizer extracts text from an image. An empty whitelist allows all characters.
type TextRecognizer interface {
	Recognize(img image.Image, whitelist string) (string, error)
}

// InputDriver drives the pointer and keyboard. Every call returns
// models.ErrSafetyAbort once the operator has triggered the fail-safe.
type InputDriver interface {
	Click(x, y int) error
	DoubleClick(x, y int) error
	TypeText(text string) error
	KeyTap(key string, modifiers ...string) error
}

// ProcessLauncher starts and force-stops the game client
type ProcessLauncher interface {
	Start(ctx context.Context, executablePath string) error
	Kill() error
}
