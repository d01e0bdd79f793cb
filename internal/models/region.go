package models

import (
	"fmt"
	"image"
)

// ScreenRegion is a rectangle on screen in pixels.
type ScreenRegion struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionFromRect converts an image rectangle into a ScreenRegion
func RegionFromRect(r image.Rectangle) ScreenRegion {
	return ScreenRegion{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns the region as an image rectangle
func (r ScreenRegion) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Center returns the pixel a click on this region should land on
func (r ScreenRegion) Center() (int, int) {
	return r.Left + r.Width/2, r.Top + r.Height/2
}

// Offset derives a region positioned relative to the top-left corner of r.
func (r ScreenRegion) Offset(dx, dy, width, height int) ScreenRegion {
	return ScreenRegion{Left: r.Left + dx, Top: r.Top + dy, Width: width, Height: height}
}

// IsZero reports whether the region is the "not found" sentinel
func (r ScreenRegion) IsZero() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r ScreenRegion) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.Left, r.Top, r.Width, r.Height)
}
